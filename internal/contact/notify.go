package contact

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"portfolio/internal/database"
	"portfolio/internal/mailer"
	"portfolio/internal/tasks"
)

type correlationKey struct{}

// WithCorrelationID 将 Correlation ID 放入 context，供异步任务串联日志。
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

func correlationIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueNotifier 将通知邮件投递到 asynq，由 worker 发送。
type QueueNotifier struct {
	client taskEnqueuer
}

// NewQueueNotifier 构造队列通知方。
func NewQueueNotifier(client taskEnqueuer) *QueueNotifier {
	return &QueueNotifier{client: client}
}

// NotifyContact 实现 Notifier。
func (n *QueueNotifier) NotifyContact(ctx context.Context, msg database.ContactMessage) error {
	task, err := tasks.NewContactNotifyTask(msg.ID, correlationIDFrom(ctx))
	if err != nil {
		return fmt.Errorf("build contact notify task: %w", err)
	}
	if _, err := n.client.EnqueueContext(ctx, task, asynq.MaxRetry(5), asynq.Timeout(30*time.Second)); err != nil {
		return fmt.Errorf("enqueue contact notify task: %w", err)
	}
	return nil
}

// MailNotifier 在没有任务队列时直接在后台发送邮件，不阻塞请求。
type MailNotifier struct {
	sender mailer.Sender
	to     string
	logger *slog.Logger
}

// NewMailNotifier 构造直接发送的通知方。
func NewMailNotifier(sender mailer.Sender, to string, logger *slog.Logger) *MailNotifier {
	return &MailNotifier{sender: sender, to: to, logger: logger}
}

// NotifyContact 实现 Notifier。
func (n *MailNotifier) NotifyContact(ctx context.Context, msg database.ContactMessage) error {
	email, err := mailer.NewContactEmail(n.to, notificationFor(msg))
	if err != nil {
		return err
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	go func() {
		defer cancel()
		if err := n.sender.Send(sendCtx, email); err != nil {
			n.logger.Error("send contact email failed",
				slog.String("message_id", msg.ID),
				slog.Any("error", err),
			)
		}
	}()
	return nil
}

func notificationFor(msg database.ContactMessage) mailer.ContactNotification {
	return mailer.ContactNotification{
		Name:      msg.Name,
		Email:     msg.Email,
		Message:   msg.Message,
		CreatedAt: msg.CreatedAt,
	}
}
