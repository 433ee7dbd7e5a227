package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"gorm.io/gorm"

	"portfolio/internal/database"
	"portfolio/internal/mailer"
	"portfolio/internal/tasks"
)

// ContactNotifyHandler 负责消费留言通知任务并发送邮件。
type ContactNotifyHandler struct {
	db     *gorm.DB
	sender mailer.Sender
	to     string
	events failurePublisher
	logger *slog.Logger
}

// failurePublisher 在最后一次重试失败时通知后台页面。
type failurePublisher interface {
	PublishNotifyFailed(ctx context.Context, messageID string, reason string) error
}

// NewContactNotifyHandler 创建任务处理器。events 可以为 nil。
func NewContactNotifyHandler(db *gorm.DB, sender mailer.Sender, to string, events failurePublisher, logger *slog.Logger) *ContactNotifyHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ContactNotifyHandler{
		db:     db,
		sender: sender,
		to:     to,
		events: events,
		logger: logger,
	}
}

// ProcessTask 实现 asynq.Handler。
func (h *ContactNotifyHandler) ProcessTask(ctx context.Context, t *asynq.Task) (retErr error) {
	var payload tasks.ContactNotifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.logger.Error("unmarshal task payload failed", slog.Any("error", err))
		return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}

	log := h.logger.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.String("message_id", payload.MessageID),
	)

	var msg database.ContactMessage
	if err := h.db.WithContext(ctx).First(&msg, "id = ?", payload.MessageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn("contact message not found, skipping task")
			return nil
		}
		log.Error("query contact message failed", slog.Any("error", err))
		return err
	}

	defer func() {
		if retErr == nil || h.events == nil || !isFinalAsynqAttempt(ctx) {
			return
		}
		if err := h.events.PublishNotifyFailed(ctx, msg.ID, retErr.Error()); err != nil {
			log.Error("publish notify failure event failed", slog.Any("error", err))
		}
	}()

	email, err := mailer.NewContactEmail(h.to, mailer.ContactNotification{
		Name:      msg.Name,
		Email:     msg.Email,
		Message:   msg.Message,
		CreatedAt: msg.CreatedAt,
	})
	if err != nil {
		log.Error("render contact email failed", slog.Any("error", err))
		return fmt.Errorf("render email: %w: %w", err, asynq.SkipRetry)
	}

	if err := h.sender.Send(ctx, email); err != nil {
		log.Error("send contact email failed", slog.Any("error", err))
		return err
	}

	log.Info("contact notification sent")
	return nil
}

func isFinalAsynqAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}
