// Package contact 实现访客留言的接收管线与后台查询。
package contact

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/mail"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"portfolio/internal/apperr"
	"portfolio/internal/captcha"
	"portfolio/internal/database"
	"portfolio/internal/metrics"
	"portfolio/internal/ratelimit"
)

const (
	minNameLen    = 2
	maxNameLen    = 128
	maxEmailLen   = 255
	minMessageLen = 10
	maxMessageLen = 5000
)

// 对外可区分的拒绝原因。
var (
	ErrSpam               = apperr.E(apperr.KindValidation, "Spam detected", nil)
	ErrRateLimited        = apperr.E(apperr.KindRateLimited, "Too many requests, please wait.", nil)
	ErrVerificationFailed = apperr.E(apperr.KindValidation, "Failed reCAPTCHA verification", nil)
)

// Submission 是公开表单提交的内容。Honeypot 为隐藏字段，正常浏览器不会填写。
type Submission struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Message        string `json:"message"`
	Honeypot       string `json:"honeypot"`
	RecaptchaToken string `json:"recaptchaToken"`
}

// Notifier 在留言保存后被调用，失败不会回滚保存。
type Notifier interface {
	NotifyContact(ctx context.Context, msg database.ContactMessage) error
}

// Service 串联校验、防滥用、持久化与通知。
type Service struct {
	db        *gorm.DB
	limiter   ratelimit.Limiter
	verifier  captcha.Verifier
	notifiers []Notifier
	logger    *slog.Logger
	now       func() time.Time
}

// Option 配置 Service。
type Option func(*Service)

// WithVerifier 启用人机验证。
func WithVerifier(v captcha.Verifier) Option {
	return func(s *Service) { s.verifier = v }
}

// WithNotifiers 追加保存后的通知方。
func WithNotifiers(n ...Notifier) Option {
	return func(s *Service) { s.notifiers = append(s.notifiers, n...) }
}

// WithLogger 设置日志。
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock 替换时间来源，便于测试。
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService 构造留言服务。
func NewService(db *gorm.DB, limiter ratelimit.Limiter, opts ...Option) *Service {
	s := &Service{
		db:      db,
		limiter: limiter,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit 处理一次公开提交并返回已保存的留言。
func (s *Service) Submit(ctx context.Context, sub Submission, clientIP string) (*database.ContactMessage, error) {
	msg, err := s.submit(ctx, sub, clientIP)
	metrics.ObserveContactSubmission(outcomeOf(err))
	return msg, err
}

func (s *Service) submit(ctx context.Context, sub Submission, clientIP string) (*database.ContactMessage, error) {
	sub.Name = strings.TrimSpace(sub.Name)
	sub.Email = strings.TrimSpace(sub.Email)
	sub.Message = strings.TrimSpace(sub.Message)

	if err := Validate(sub); err != nil {
		return nil, err
	}

	if strings.TrimSpace(sub.Honeypot) != "" {
		s.logger.Info("contact submission rejected by honeypot", slog.String("client_ip", clientIP))
		return nil, ErrSpam
	}

	if clientIP == "" {
		clientIP = "unknown"
	}
	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, clientIP)
		if err != nil {
			s.logger.Warn("contact rate limiter unavailable, allowing request", slog.Any("error", err))
		} else if !allowed {
			return nil, ErrRateLimited
		}
	}

	if s.verifier != nil {
		ok, err := s.verifier.Verify(ctx, sub.RecaptchaToken, clientIP)
		if err != nil {
			return nil, apperr.E(apperr.KindUpstream, "Verification service unavailable", err)
		}
		if !ok {
			return nil, ErrVerificationFailed
		}
	}

	msg := database.ContactMessage{
		Name:      sub.Name,
		Email:     sub.Email,
		Message:   sub.Message,
		IP:        clientIP,
		CreatedAt: s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return nil, apperr.E(apperr.KindPersistence, "Failed to save message", err)
	}

	for _, n := range s.notifiers {
		if err := n.NotifyContact(ctx, msg); err != nil {
			s.logger.Error("contact notification failed",
				slog.String("message_id", msg.ID),
				slog.Any("error", err),
			)
		}
	}

	return &msg, nil
}

// Validate 校验字段，返回列出全部违规字段的校验错误。
func Validate(sub Submission) error {
	fields := map[string]string{}

	nameLen := utf8.RuneCountInString(sub.Name)
	switch {
	case nameLen < minNameLen:
		fields["name"] = "Name is too short"
	case nameLen > maxNameLen:
		fields["name"] = "Name is too long"
	}

	if len(sub.Email) > maxEmailLen || !validEmail(sub.Email) {
		fields["email"] = "Invalid email"
	}

	msgLen := utf8.RuneCountInString(sub.Message)
	switch {
	case msgLen < minMessageLen:
		fields["message"] = "Message is too short"
	case msgLen > maxMessageLen:
		fields["message"] = "Message is too long"
	}

	if len(fields) == 0 {
		return nil
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return apperr.Validation("Invalid input: "+strings.Join(names, ", "), fields)
}

func validEmail(email string) bool {
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}
	return addr.Address == email && strings.Contains(email[strings.LastIndex(email, "@"):], ".")
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, ErrSpam):
		return "spam"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrVerificationFailed):
		return "verification_failed"
	case apperr.Is(err, apperr.KindValidation):
		return "invalid"
	default:
		return "error"
	}
}

// ListQuery 是后台列表的搜索与分页参数。
type ListQuery struct {
	Q     string
	Page  int
	Limit int
}

// Pagination 描述分页结果。
type Pagination struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"totalPages"`
}

// ListResult 是后台列表的响应体。
type ListResult struct {
	Data       []database.ContactMessage `json:"data"`
	Pagination Pagination                `json:"pagination"`
}

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
	// maxPage 保证 (page-1)*limit 不会溢出。
	maxPage = 1_000_000
)

// List 按时间倒序返回留言，q 对姓名、邮箱、内容做不区分大小写的子串匹配。
func (s *Service) List(ctx context.Context, q ListQuery) (*ListResult, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Page > maxPage {
		q.Page = maxPage
	}
	if q.Limit < 1 {
		q.Limit = defaultPageLimit
	}
	if q.Limit > maxPageLimit {
		q.Limit = maxPageLimit
	}

	base := s.db.WithContext(ctx).Model(&database.ContactMessage{})
	if term := strings.TrimSpace(q.Q); term != "" {
		pattern := "%" + escapeLike(strings.ToLower(term)) + "%"
		base = base.Where(
			`LOWER(name) LIKE ? ESCAPE '\' OR LOWER(email) LIKE ? ESCAPE '\' OR LOWER(message) LIKE ? ESCAPE '\'`,
			pattern, pattern, pattern,
		)
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, apperr.E(apperr.KindPersistence, "Failed to fetch messages", err)
	}

	messages := make([]database.ContactMessage, 0, q.Limit)
	if err := base.Session(&gorm.Session{}).
		Order("created_at desc").
		Order("id desc").
		Offset((q.Page - 1) * q.Limit).
		Limit(q.Limit).
		Find(&messages).Error; err != nil {
		return nil, apperr.E(apperr.KindPersistence, "Failed to fetch messages", err)
	}

	return &ListResult{
		Data: messages,
		Pagination: Pagination{
			Total:      total,
			Page:       q.Page,
			Limit:      q.Limit,
			TotalPages: int(math.Ceil(float64(total) / float64(q.Limit))),
		},
	}, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Get 按 ID 读取留言。
func (s *Service) Get(ctx context.Context, id string) (*database.ContactMessage, error) {
	var msg database.ContactMessage
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&msg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Message not found")
		}
		return nil, apperr.E(apperr.KindPersistence, "Failed to fetch message", err)
	}
	return &msg, nil
}

// SetRead 标记留言已读/未读，这是留言唯一可修改的字段。
func (s *Service) SetRead(ctx context.Context, id string, read bool) (*database.ContactMessage, error) {
	msg, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(msg).Update("is_read", read).Error; err != nil {
		return nil, apperr.E(apperr.KindPersistence, "Failed to update message", err)
	}
	msg.Read = read
	return msg, nil
}

// Delete 删除留言。
func (s *Service) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&database.ContactMessage{})
	if res.Error != nil {
		return apperr.E(apperr.KindPersistence, "Failed to delete message", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("Message not found")
	}
	return nil
}
