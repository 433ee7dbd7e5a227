package api

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"portfolio/internal/auth"
	"portfolio/internal/contact"
	"portfolio/internal/database"
	"portfolio/internal/ratelimit"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeStorage struct {
	mu       sync.Mutex
	uploaded map[string][]byte
	types    map[string]string
	deleted  []string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{uploaded: map[string][]byte{}, types: map[string]string{}}
}

func (s *fakeStorage) PutObject(_ context.Context, objectKey string, reader io.Reader, _ int64, contentType string) (string, error) {
	b, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploaded[objectKey] = b
	s.types[objectKey] = contentType
	return "https://cdn.example.test/portfolio/" + objectKey, nil
}

func (s *fakeStorage) DeleteObject(_ context.Context, objectKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, objectKey)
	delete(s.uploaded, objectKey)
	return nil
}

func (s *fakeStorage) deletedKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deleted...)
}

type fakeScanner struct {
	clean bool
}

func (f fakeScanner) Scan(_ context.Context, r io.Reader) (bool, error) {
	_, _ = io.Copy(io.Discard, r)
	return f.clean, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []database.ContactMessage
}

func (n *recordingNotifier) NotifyContact(_ context.Context, msg database.ContactMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	return nil
}

type testEnv struct {
	router   *gin.Engine
	db       *gorm.DB
	tokens   *auth.AuthService
	users    *auth.Users
	storage  *fakeStorage
	notifier *recordingNotifier
}

type envOption func(*Deps)

func withScanner(s virusScanner) envOption {
	return func(d *Deps) { d.Scanner = s }
}

func withMaxUpload(n int64) envOption {
	return func(d *Deps) { d.MaxUpload = n }
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestTokens(t *testing.T) *auth.AuthService {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	svc, err := auth.NewAuthService(privPEM, pubPEM, 15*time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("new auth service: %v", err)
	}
	return svc
}

// steppingClock 每次调用前进一秒，保证留言的 created_at 严格递增。
func steppingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Second)
		return current
	}
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	db := newTestDB(t)
	tokens := newTestTokens(t)
	store := newFakeStorage()
	notifier := &recordingNotifier{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	service := contact.NewService(db, ratelimit.NewMemory(ratelimit.DefaultContactPolicy),
		contact.WithNotifiers(notifier),
		contact.WithLogger(log),
		contact.WithClock(steppingClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))),
	)

	users := auth.NewUsers(db)
	deps := Deps{
		DB:          db,
		Logger:      log,
		Storage:     store,
		MaxUpload:   5 * 1024 * 1024,
		Contact:     service,
		AuthService: tokens,
		Users:       users,
		Sessions: auth.NewSessions(auth.NewMemoryKV(), auth.SessionPolicy{
			LoginRatePerHour: 100,
			LockThreshold:    5,
			LockTTL:          time.Minute,
		}),
		AuthOptions: AuthOptions{SuccessRedirect: "http://localhost:3000/admin"},
	}
	for _, opt := range opts {
		opt(&deps)
	}

	router, err := NewRouter(log, "", nil)
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	RegisterRoutes(router, deps)

	return &testEnv{
		router:   router,
		db:       db,
		tokens:   tokens,
		users:    users,
		storage:  store,
		notifier: notifier,
	}
}

func (e *testEnv) token(t *testing.T, role string, mustChange bool) string {
	t.Helper()
	pair, err := e.tokens.GenerateTokenPair(auth.Principal{UserID: "user-" + role, Role: role, MustChangePassword: mustChange})
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return pair.AccessToken
}

func (e *testEnv) adminToken(t *testing.T) string {
	return e.token(t, database.RoleAdmin, false)
}

func (e *testEnv) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.RemoteAddr = "192.0.2.10:4321"
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d, body=%s", w.Code, want, w.Body.String())
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/health", nil, "")
	expectStatus(t, w, http.StatusOK)
	if got := w.Header().Get("X-Correlation-ID"); got == "" {
		t.Fatalf("expected correlation id header")
	}
}

func TestMetricsRequiresInternalSecretWhenConfigured(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	router, err := NewRouter(log, "s3cret", nil)
	if err != nil {
		t.Fatalf("new router: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	expectStatus(t, w, http.StatusUnauthorized)

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("X-Internal-Secret", "s3cret")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	expectStatus(t, w, http.StatusOK)
}

func TestNewRouterRejectsInvalidTrustedProxy(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := NewRouter(log, "", []string{"not-an-ip"}); err == nil {
		t.Fatalf("expected error for invalid proxy")
	}
	if _, err := NewRouter(log, "", []string{"10.0.0.0/8"}); err != nil {
		t.Fatalf("valid cidr rejected: %v", err)
	}
}

func TestAdminGate(t *testing.T) {
	env := newTestEnv(t)
	skill := map[string]any{"name": "Go", "category": "Backend", "level": 90}

	w := env.do(t, http.MethodPost, "/skills", skill, "")
	expectStatus(t, w, http.StatusUnauthorized)
	if got := decode[map[string]string](t, w)["error"]; got != "Unauthorized" {
		t.Fatalf("error = %q", got)
	}

	w = env.do(t, http.MethodPost, "/skills", skill, "not-a-jwt")
	expectStatus(t, w, http.StatusUnauthorized)

	w = env.do(t, http.MethodPost, "/skills", skill, env.token(t, database.RoleUser, false))
	expectStatus(t, w, http.StatusForbidden)

	w = env.do(t, http.MethodPost, "/skills", skill, env.token(t, database.RoleAdmin, true))
	expectStatus(t, w, http.StatusForbidden)

	w = env.do(t, http.MethodPost, "/skills", skill, env.adminToken(t))
	expectStatus(t, w, http.StatusCreated)

	// 公开读取无需登录。
	w = env.do(t, http.MethodGet, "/skills", nil, "")
	expectStatus(t, w, http.StatusOK)

	w = env.do(t, http.MethodGet, "/contact", nil, "")
	expectStatus(t, w, http.StatusUnauthorized)
}

func TestAdminGate_ForbiddenRequestsWriteNothing(t *testing.T) {
	env := newTestEnv(t)
	userToken := env.token(t, database.RoleUser, false)

	w := env.do(t, http.MethodPost, "/skills", map[string]any{"name": "Go", "category": "Backend", "level": 90}, userToken)
	expectStatus(t, w, http.StatusForbidden)
	if body := w.Body.String(); body != `{"error":"Forbidden"}` {
		t.Fatalf("body = %s", body)
	}
	var skills int64
	if err := env.db.Model(&database.Skill{}).Count(&skills).Error; err != nil {
		t.Fatalf("count skills: %v", err)
	}
	if skills != 0 {
		t.Fatalf("skills = %d, want 0", skills)
	}

	msg := database.ContactMessage{Name: "Ada", Email: "ada@example.com", Message: "hello there, friend"}
	if err := env.db.Create(&msg).Error; err != nil {
		t.Fatalf("seed message: %v", err)
	}
	w = env.do(t, http.MethodDelete, "/contact/"+msg.ID, nil, userToken)
	expectStatus(t, w, http.StatusForbidden)
	w = env.do(t, http.MethodGet, "/contact", nil, userToken)
	expectStatus(t, w, http.StatusForbidden)

	var messages int64
	if err := env.db.Model(&database.ContactMessage{}).Count(&messages).Error; err != nil {
		t.Fatalf("count messages: %v", err)
	}
	if messages != 1 {
		t.Fatalf("messages = %d, want 1", messages)
	}
}
