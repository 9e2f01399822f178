package models

// EmailTemplate is a stored email template. Subject and Body are text/template
// sources rendered with snake_case keys, e.g. {{.listing_title}}.
type EmailTemplate struct {
	Base       `bson:",inline"`
	TemplateID string `bson:"template_id" json:"template_id"` // e.g. "chat_unread_reminder"
	Locale     string `bson:"locale" json:"locale"`           // e.g. "en-US"
	Subject    string `bson:"subject" json:"subject"`
	Body       string `bson:"body" json:"body"` // plain text
}
