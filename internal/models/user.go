package models

// NotificationPreferences allows users to control email notifications.
// A nil field means the user never chose, which counts as opted in.
type NotificationPreferences struct {
	Enquiry *bool `bson:"enquiry,omitempty" json:"enquiry,omitempty"`
	Message *bool `bson:"message,omitempty" json:"message,omitempty"`
}

// User is the marketplace user document, reduced to the fields chat reads.
type User struct {
	Base                    `bson:",inline"`
	Name                    string                   `bson:"name" json:"name"`
	Email                   string                   `bson:"email" json:"email"`
	Suspended               bool                     `bson:"suspended" json:"suspended"`
	NotificationPreferences *NotificationPreferences `bson:"notification_preferences,omitempty" json:"notification_preferences,omitempty"`
	Deleted                 bool                     `bson:"deleted" json:"-"`
}

// WantsMessageEmails reports whether chat reminder emails may be sent.
func (u *User) WantsMessageEmails() bool {
	if u.NotificationPreferences == nil || u.NotificationPreferences.Message == nil {
		return true
	}
	return *u.NotificationPreferences.Message
}
