package contact

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"portfolio/internal/database"
)

// AdminNotifyChannel 是后台实时推送使用的 Redis 频道。
const AdminNotifyChannel = "admin_notify"

// 事件类型。
const (
	EventContactCreated      = "contact.created"
	EventContactNotifyFailed = "contact.notify_failed"
)

// AdminEvent 是推送给后台 WebSocket 客户端的消息。
type AdminEvent struct {
	Type string       `json:"type"`
	Data EventMessage `json:"data"`
}

// EventMessage 是事件中的留言摘要，不包含访客 IP。
type EventMessage struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
	Error     string    `json:"error,omitempty"`
}

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// EventPublisher 通过 Redis Pub/Sub 通知在线的后台页面。
type EventPublisher struct {
	client publisher
}

// NewEventPublisher 构造实时事件通知方。
func NewEventPublisher(client publisher) *EventPublisher {
	return &EventPublisher{client: client}
}

// NotifyContact 实现 Notifier。
func (p *EventPublisher) NotifyContact(ctx context.Context, msg database.ContactMessage) error {
	return p.publish(ctx, AdminEvent{
		Type: EventContactCreated,
		Data: EventMessage{ID: msg.ID, Name: msg.Name, Email: msg.Email, CreatedAt: msg.CreatedAt},
	})
}

// PublishNotifyFailed 在通知邮件最终发送失败时提醒后台。
func (p *EventPublisher) PublishNotifyFailed(ctx context.Context, messageID string, reason string) error {
	return p.publish(ctx, AdminEvent{
		Type: EventContactNotifyFailed,
		Data: EventMessage{ID: messageID, Error: reason},
	})
}

func (p *EventPublisher) publish(ctx context.Context, event AdminEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal admin event: %w", err)
	}
	if err := p.client.Publish(ctx, AdminNotifyChannel, data).Err(); err != nil {
		return fmt.Errorf("publish admin event %q: %w", event.Type, err)
	}
	return nil
}
