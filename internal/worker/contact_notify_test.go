package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"portfolio/internal/database"
	"portfolio/internal/mailer"
	"portfolio/internal/tasks"
)

type recordingSender struct {
	sent []mailer.Email
	err  error
}

func (s *recordingSender) Send(_ context.Context, email mailer.Email) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, email)
	return nil
}

func newWorkerTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&database.ContactMessage{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestContactNotifyHandler_SendsEmail(t *testing.T) {
	db := newWorkerTestDB(t)
	msg := database.ContactMessage{
		Name:      "Ada",
		Email:     "ada@example.com",
		Message:   "Hello there, nice portfolio!",
		CreatedAt: time.Now().UTC(),
	}
	if err := db.Create(&msg).Error; err != nil {
		t.Fatalf("seed message: %v", err)
	}

	sender := &recordingSender{}
	h := NewContactNotifyHandler(db, sender, "owner@example.com", nil, nil)

	task, err := tasks.NewContactNotifyTask(msg.ID, "corr-1")
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := h.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("process task: %v", err)
	}

	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(sender.sent))
	}
	got := sender.sent[0]
	if got.To != "owner@example.com" || got.ReplyTo != "ada@example.com" {
		t.Fatalf("unexpected recipients: %+v", got)
	}
	if !strings.Contains(got.HTML, "Hello there") {
		t.Fatalf("email body missing message: %s", got.HTML)
	}
}

func TestContactNotifyHandler_MissingMessageIsSkipped(t *testing.T) {
	db := newWorkerTestDB(t)
	sender := &recordingSender{}
	h := NewContactNotifyHandler(db, sender, "owner@example.com", nil, nil)

	task, _ := tasks.NewContactNotifyTask("does-not-exist", "")
	if err := h.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("expected no email")
	}
}

func TestContactNotifyHandler_SendFailureIsRetried(t *testing.T) {
	db := newWorkerTestDB(t)
	msg := database.ContactMessage{Name: "Bob", Email: "bob@example.com", Message: "A message long enough", CreatedAt: time.Now().UTC()}
	if err := db.Create(&msg).Error; err != nil {
		t.Fatalf("seed message: %v", err)
	}

	sender := &recordingSender{err: errors.New("provider down")}
	h := NewContactNotifyHandler(db, sender, "owner@example.com", nil, nil)

	task, _ := tasks.NewContactNotifyTask(msg.ID, "")
	err := h.ProcessTask(context.Background(), task)
	if err == nil {
		t.Fatalf("expected error")
	}
	if errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("send failure must be retried, got %v", err)
	}
}

func TestContactNotifyHandler_BadPayloadSkipsRetry(t *testing.T) {
	h := NewContactNotifyHandler(newWorkerTestDB(t), &recordingSender{}, "owner@example.com", nil, nil)

	err := h.ProcessTask(context.Background(), asynq.NewTask(tasks.TypeContactNotify, []byte("{")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
}
