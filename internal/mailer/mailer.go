// Package mailer 负责发送站点通知邮件。
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/resend/resend-go/v2"
)

// Email 是一封待发送的邮件。
type Email struct {
	To      string
	ReplyTo string
	Subject string
	HTML    string
}

// Sender 发送邮件。
type Sender interface {
	Send(ctx context.Context, email Email) error
}

// Resend 通过 Resend API 发送邮件。
type Resend struct {
	client *resend.Client
	from   string
}

// NewResend 构造 Resend 发送器。
func NewResend(apiKey, from string) *Resend {
	return &Resend{client: resend.NewClient(apiKey), from: from}
}

// Send 实现 Sender。
func (r *Resend) Send(ctx context.Context, email Email) error {
	req := &resend.SendEmailRequest{
		From:    r.from,
		To:      []string{email.To},
		Subject: email.Subject,
		Html:    email.HTML,
		ReplyTo: email.ReplyTo,
	}
	if _, err := r.client.Emails.SendWithContext(ctx, req); err != nil {
		return fmt.Errorf("send email via resend: %w", err)
	}
	return nil
}

// ContactNotification 描述一条新留言通知。
type ContactNotification struct {
	Name      string
	Email     string
	Message   string
	CreatedAt time.Time
}

var contactTemplate = template.Must(template.New("contact").Parse(
	`<p><strong>Name:</strong> {{.Name}}</p>
<p><strong>Email:</strong> {{.Email}}</p>
<p><strong>Received:</strong> {{.CreatedAt.Format "2006-01-02 15:04 MST"}}</p>
<p><strong>Message:</strong></p>
<p style="white-space: pre-wrap">{{.Message}}</p>
`))

// NewContactEmail 渲染发给站长的留言通知邮件，访客内容会被转义。
func NewContactEmail(to string, n ContactNotification) (Email, error) {
	var buf bytes.Buffer
	if err := contactTemplate.Execute(&buf, n); err != nil {
		return Email{}, fmt.Errorf("render contact email: %w", err)
	}
	return Email{
		To:      to,
		ReplyTo: n.Email,
		Subject: "New Contact Form Message",
		HTML:    buf.String(),
	}, nil
}
