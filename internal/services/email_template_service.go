package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"text/template"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"greendrake/chat/internal/models"
	"greendrake/chat/internal/utils"
)

const (
	emailTemplatesCollection = "email_templates"

	// DefaultLocale is used when a recipient has no locale of their own.
	DefaultLocale = "en-US"

	// UnreadReminderTemplate is the "you have unread messages" email.
	UnreadReminderTemplate = "chat_unread_reminder"
)

// Default email templates used as fallback when not found in database
var defaultEmailTemplates = map[string]models.EmailTemplate{
	UnreadReminderTemplate: {
		TemplateID: UnreadReminderTemplate,
		Locale:     DefaultLocale,
		Subject:    `You have {{.unread}} unread message{{if ne .unread 1}}s{{end}}{{with .listing_title}} about "{{.}}"{{end}}`,
		Body:       "{{if .name}}Hi {{.name}},{{else}}Hi,{{end}}\n\n{{.subject}} on {{.app_name}}.\nRead and reply: {{.link}}\n",
	},
}

var ErrTemplateNotFound = errors.New("email template not found")

// IEmailTemplateService defines the interface for email template operations.
type IEmailTemplateService interface {
	GetTemplate(ctx context.Context, templateID, locale string) (*models.EmailTemplate, error)
	// Render executes the subject, then the body. The body also sees the rendered
	// subject as {{.subject}}.
	Render(ctx context.Context, templateID, locale string, data map[string]interface{}) (subject, body string, err error)
}

// EmailTemplateService reads templates from Mongo and falls back to the built-in
// defaults. A nil database serves the defaults only.
type EmailTemplateService struct {
	db *mongo.Database
}

func NewEmailTemplateService(db *mongo.Database) *EmailTemplateService {
	return &EmailTemplateService{db: db}
}

// GetTemplate retrieves an email template by ID and locale
func (s *EmailTemplateService) GetTemplate(ctx context.Context, templateID, locale string) (*models.EmailTemplate, error) {
	if locale == "" {
		locale = DefaultLocale
	}
	if s.db != nil {
		filter := bson.M{"template_id": templateID, "locale": locale}
		var tmpl models.EmailTemplate
		err := s.db.Collection(emailTemplatesCollection).FindOne(ctx, filter).Decode(&tmpl)
		if err == nil {
			return &tmpl, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("error retrieving template: %w", err)
		}
	}

	if tmpl, ok := defaultEmailTemplates[templateID]; ok {
		return &tmpl, nil
	}
	return nil, fmt.Errorf("%w: %s (locale: %s)", ErrTemplateNotFound, templateID, locale)
}

func (s *EmailTemplateService) Render(ctx context.Context, templateID, locale string, data map[string]interface{}) (string, string, error) {
	tmpl, err := s.GetTemplate(ctx, templateID, locale)
	if err != nil {
		return "", "", err
	}

	subject, err := execute(tmpl.TemplateID+".subject", tmpl.Subject, data)
	if err != nil {
		return "", "", err
	}

	withSubject := make(map[string]interface{}, len(data)+1)
	for k, v := range data {
		withSubject[k] = v
	}
	withSubject["subject"] = subject

	body, err := execute(tmpl.TemplateID+".body", tmpl.Body, withSubject)
	if err != nil {
		return "", "", err
	}
	return subject, body, nil
}

func execute(name, source string, data map[string]interface{}) (string, error) {
	t, err := template.New(name).Parse(source)
	if err != nil {
		return "", fmt.Errorf("invalid template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering template %s: %w", name, err)
	}
	return buf.String(), nil
}

// SaveTemplate upserts a template by ID and locale.
func (s *EmailTemplateService) SaveTemplate(ctx context.Context, tmpl *models.EmailTemplate) error {
	if s.db == nil {
		return errors.New("email templates need a database")
	}
	filter := bson.M{"template_id": tmpl.TemplateID, "locale": tmpl.Locale}
	// _id is immutable, so it is only written on insert
	update := bson.M{
		"$set":         bson.M{"subject": tmpl.Subject, "body": tmpl.Body},
		"$setOnInsert": bson.M{"_id": utils.NewSixID()},
	}
	if _, err := s.db.Collection(emailTemplatesCollection).UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
		return fmt.Errorf("error saving template: %w", err)
	}
	return nil
}
