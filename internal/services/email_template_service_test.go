package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"greendrake/chat/internal/models"
	"greendrake/chat/internal/utils"
)

func reminderData(unread int, title string) map[string]interface{} {
	return map[string]interface{}{
		"name":          "Sel",
		"unread":        unread,
		"listing_title": title,
		"app_name":      "L1",
		"link":          "https://l1.example.com/messages/ABC",
	}
}

func TestEmailTemplateService_DefaultReminder(t *testing.T) {
	svc := NewEmailTemplateService(nil)
	ctx := context.Background()

	subject, body, err := svc.Render(ctx, UnreadReminderTemplate, "", reminderData(1, ""))
	require.NoError(t, err)
	assert.Equal(t, "You have 1 unread message", subject)
	assert.Equal(t, "Hi Sel,\n\nYou have 1 unread message on L1.\nRead and reply: https://l1.example.com/messages/ABC\n", body)

	subject, _, err = svc.Render(ctx, UnreadReminderTemplate, DefaultLocale, reminderData(3, "Road bike"))
	require.NoError(t, err)
	assert.Equal(t, `You have 3 unread messages about "Road bike"`, subject)
}

func TestEmailTemplateService_UnknownTemplate(t *testing.T) {
	svc := NewEmailTemplateService(nil)
	_, err := svc.GetTemplate(context.Background(), "activate_account", DefaultLocale)
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestEmailTemplateService_StoredTemplateWins(t *testing.T) {
	db := utils.SetupTestDB(t, "testdb_chat_email_templates", emailTemplatesCollection)
	svc := NewEmailTemplateService(db)
	ctx := context.Background()

	require.NoError(t, svc.SaveTemplate(ctx, &models.EmailTemplate{
		TemplateID: UnreadReminderTemplate,
		Locale:     DefaultLocale,
		Subject:    "{{.unread}} new on {{.app_name}}",
		Body:       "{{.subject}}: {{.link}}",
	}))
	// a second save updates in place
	require.NoError(t, svc.SaveTemplate(ctx, &models.EmailTemplate{
		TemplateID: UnreadReminderTemplate,
		Locale:     DefaultLocale,
		Subject:    "{{.unread}} unread on {{.app_name}}",
		Body:       "{{.subject}}: {{.link}}",
	}))

	subject, body, err := svc.Render(ctx, UnreadReminderTemplate, DefaultLocale, reminderData(2, "Road bike"))
	require.NoError(t, err)
	assert.Equal(t, "2 unread on L1", subject)
	assert.Equal(t, "2 unread on L1: https://l1.example.com/messages/ABC", body)

	// other locales still fall back to the default
	subject, _, err = svc.Render(ctx, UnreadReminderTemplate, "fr-FR", reminderData(2, ""))
	require.NoError(t, err)
	assert.Equal(t, "You have 2 unread messages", subject)
}
