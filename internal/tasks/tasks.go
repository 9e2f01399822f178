package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"greendrake/chat/internal/config"
	"greendrake/chat/internal/email"
	"greendrake/chat/internal/logging"
	"greendrake/chat/internal/services"
	"greendrake/chat/internal/store"
	"greendrake/chat/internal/utils"
)

// TaskType defines the type of a background task.
const (
	TypeUnreadReminder = "chat:unread_reminder"
)

// ReminderEmailKind tags reminder emails so mock senders can file them.
const ReminderEmailKind = "chat_unread_reminder"

const defaultQueue = "default"

// --- Task Client (Enqueuing tasks) ---

func redisClientOpt(rdb *redis.Client) asynq.RedisClientOpt {
	opts := rdb.Options()
	return asynq.RedisClientOpt{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}
}

func NewClient(rdb *redis.Client) *asynq.Client {
	return asynq.NewClient(redisClientOpt(rdb))
}

// Enqueuer is the part of *asynq.Client the reminder client uses.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type UnreadReminderPayload struct {
	ThreadID    string `json:"thread_id"`
	RecipientID string `json:"recipient_id"`
}

// ReminderClient schedules unread reminders. At most one reminder per thread and
// recipient is pending at any time.
type ReminderClient struct {
	client Enqueuer
	delay  time.Duration
}

func NewReminderClient(client Enqueuer, delay time.Duration) *ReminderClient {
	return &ReminderClient{client: client, delay: delay}
}

func reminderTaskID(threadID, recipientID utils.SixID) string {
	return fmt.Sprintf("reminder:%s:%s", threadID, recipientID)
}

// ScheduleUnreadReminder implements services.ReminderScheduler.
func (c *ReminderClient) ScheduleUnreadReminder(ctx context.Context, threadID, recipientID utils.SixID) error {
	payload, err := json.Marshal(UnreadReminderPayload{ThreadID: threadID.String(), RecipientID: recipientID.String()})
	if err != nil {
		return fmt.Errorf("failed to marshal reminder payload: %w", err)
	}

	task := asynq.NewTask(TypeUnreadReminder, payload)
	info, err := c.client.EnqueueContext(ctx, task,
		asynq.TaskID(reminderTaskID(threadID, recipientID)),
		asynq.ProcessIn(c.delay),
		asynq.Queue(defaultQueue),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		// already scheduled for this window
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue unread reminder: %w", err)
	}
	logging.Debug().Str("task_id", info.ID).Dur("delay", c.delay).Msg("unread reminder scheduled")
	return nil
}

// --- Task Server (Processing tasks) ---

// TaskProcessor handles the processing of tasks.
// It holds dependencies needed by task handlers.
type TaskProcessor struct {
	cfg         *config.Config
	emailSender email.Sender
	threads     store.ThreadStore
	users       services.IUserService
	listings    services.IListingService
	templates   services.IEmailTemplateService
}

func NewTaskProcessor(
	cfg *config.Config,
	emailSender email.Sender,
	threads store.ThreadStore,
	users services.IUserService,
	listings services.IListingService,
	templates services.IEmailTemplateService,
) *TaskProcessor {
	return &TaskProcessor{
		cfg:         cfg,
		emailSender: emailSender,
		threads:     threads,
		users:       users,
		listings:    listings,
		templates:   templates,
	}
}

// SetupServer configures an Asynq server and its handlers. The caller starts and
// shuts it down.
func SetupServer(rdb *redis.Client, processor *TaskProcessor) (*asynq.Server, *asynq.ServeMux) {
	srv := asynq.NewServer(
		redisClientOpt(rdb),
		asynq.Config{
			Queues: map[string]int{
				"critical":   6,
				defaultQueue: 3,
				"low":        1,
			},
			Logger:   asynqLogger{},
			LogLevel: asynq.WarnLevel,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logging.Error().Err(err).
					Str("task_type", task.Type()).
					Bytes("payload", task.Payload()).
					Msg("task failed")
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeUnreadReminder, processor.HandleUnreadReminderTask)
	logging.Info().Msg("registered background task handlers")

	return srv, mux
}

// --- Task Handlers ---

// HandleUnreadReminderTask emails a participant who still has unread messages in a
// thread once the reminder delay has passed.
func (p *TaskProcessor) HandleUnreadReminderTask(ctx context.Context, t *asynq.Task) error {
	var payload UnreadReminderPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal reminder payload: %v: %w", err, asynq.SkipRetry)
	}

	threadID, err := utils.ParseSixID(payload.ThreadID)
	if err != nil {
		return fmt.Errorf("invalid thread ID in payload: %w", asynq.SkipRetry)
	}
	recipientID, err := utils.ParseSixID(payload.RecipientID)
	if err != nil {
		return fmt.Errorf("invalid recipient ID in payload: %w", asynq.SkipRetry)
	}

	thread, err := p.threads.FindThreadByID(ctx, threadID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("thread %s not found: %w", threadID, asynq.SkipRetry)
	}
	if err != nil {
		return err
	}
	if !thread.IsParticipant(recipientID) {
		return fmt.Errorf("user %s is not in thread %s: %w", recipientID, threadID, asynq.SkipRetry)
	}

	unread := thread.UnreadFor(recipientID)
	if unread == 0 {
		logging.Debug().Str("thread_id", threadID.String()).Msg("reminder skipped, messages already read")
		return nil
	}

	user, err := p.users.FindByID(ctx, recipientID)
	if errors.Is(err, services.ErrUserNotFound) {
		return fmt.Errorf("recipient %s not found: %w", recipientID, asynq.SkipRetry)
	}
	if err != nil {
		return err
	}
	if user.Email == "" || !user.WantsMessageEmails() {
		logging.Debug().Str("user_id", recipientID.String()).Msg("reminder skipped, user opted out")
		return nil
	}

	listingTitle := ""
	if p.listings != nil {
		if ref, err := p.listings.FindListingRef(ctx, thread.ListingID); err == nil {
			listingTitle = ref.Title
		}
	}

	msg, err := p.reminderMessage(ctx, user.Email, user.Name, listingTitle, threadID, unread)
	if err != nil {
		return fmt.Errorf("failed to render reminder email: %v: %w", err, asynq.SkipRetry)
	}
	if err := p.emailSender.Send(ctx, []string{user.Email}, msg.Subject, msg.Render(time.Now())); err != nil {
		logging.Warn().Err(err).Str("thread_id", threadID.String()).Msg("reminder email failed, will retry")
		return err
	}

	logging.Info().Str("thread_id", threadID.String()).Str("user_id", recipientID.String()).Int("unread", unread).Msg("unread reminder sent")
	return nil
}

func (p *TaskProcessor) reminderMessage(ctx context.Context, to, name, listingTitle string, threadID utils.SixID, unread int) (email.Message, error) {
	subject, body, err := p.templates.Render(ctx, services.UnreadReminderTemplate, services.DefaultLocale, map[string]interface{}{
		"name":          name,
		"unread":        unread,
		"listing_title": listingTitle,
		"app_name":      appName(p.cfg),
		"link":          fmt.Sprintf("%s/messages/%s", p.cfg.WebBaseURL, threadID),
	})
	if err != nil {
		return email.Message{}, err
	}

	from := p.cfg.SmtpFromAddress
	if from == "" {
		from = "noreply@example.com"
	}

	return email.Message{
		From:    from,
		To:      to,
		Subject: subject,
		Kind:    ReminderEmailKind,
		Body:    body,
	}, nil
}

func appName(cfg *config.Config) string {
	if cfg.AppName == "" {
		return "L1"
	}
	return cfg.AppName
}

// asynqLogger routes asynq's internal logging through zerolog.
type asynqLogger struct{}

func (asynqLogger) Debug(args ...interface{}) { logging.Debug().Msg(fmt.Sprint(args...)) }
func (asynqLogger) Info(args ...interface{}) { logging.Info().Msg(fmt.Sprint(args...)) }
func (asynqLogger) Warn(args ...interface{}) { logging.Warn().Msg(fmt.Sprint(args...)) }
func (asynqLogger) Error(args ...interface{}) { logging.Error().Msg(fmt.Sprint(args...)) }
func (asynqLogger) Fatal(args ...interface{}) { logging.Fatal().Msg(fmt.Sprint(args...)) }
