package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"portfolio/internal/contact"
	"portfolio/internal/database"
)

func validSubmission(name string) map[string]any {
	return map[string]any{
		"name":    name,
		"email":   fmt.Sprintf("%s@example.com", name),
		"message": "Hello, I would like to talk about a project.",
	}
}

func TestContactSubmitRejectsHoneypot(t *testing.T) {
	env := newTestEnv(t)
	body := validSubmission("bot")
	body["honeypot"] = "http://spam.example"

	w := env.do(t, http.MethodPost, "/contact", body, "")
	expectStatus(t, w, http.StatusBadRequest)
	if got := decode[map[string]string](t, w)["error"]; got != "Spam detected" {
		t.Fatalf("error = %q", got)
	}

	var count int64
	env.db.Model(&database.ContactMessage{}).Count(&count)
	if count != 0 {
		t.Fatalf("honeypot submission persisted")
	}
}

func TestContactSubmitValidation(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/contact", map[string]any{"name": "A", "email": "nope", "message": "short"}, "")
	expectStatus(t, w, http.StatusBadRequest)

	body := decode[struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}](t, w)
	for _, field := range []string{"name", "email", "message"} {
		if _, ok := body.Fields[field]; !ok {
			t.Errorf("missing field error for %s: %+v", field, body)
		}
	}
}

func TestContactSubmitRateLimitedOnFourthAttempt(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 3; i++ {
		w := env.do(t, http.MethodPost, "/contact", validSubmission(fmt.Sprintf("visitor%d", i)), "")
		expectStatus(t, w, http.StatusOK)
	}

	w := env.do(t, http.MethodPost, "/contact", validSubmission("visitor3"), "")
	expectStatus(t, w, http.StatusTooManyRequests)
	if got := decode[map[string]string](t, w)["error"]; got != "Too many requests, please wait." {
		t.Fatalf("error = %q", got)
	}
}

func TestContactSubmitThenAdminList(t *testing.T) {
	env := newTestEnv(t)
	token := env.adminToken(t)

	var ids []string
	for _, name := range []string{"alice", "bob"} {
		w := env.do(t, http.MethodPost, "/contact", validSubmission(name), "")
		expectStatus(t, w, http.StatusOK)
		resp := decode[struct {
			Success bool   `json:"success"`
			ID      string `json:"id"`
		}](t, w)
		if !resp.Success || resp.ID == "" {
			t.Fatalf("unexpected submit response %+v", resp)
		}
		ids = append(ids, resp.ID)
	}
	if len(env.notifier.msgs) != 2 {
		t.Fatalf("notifier called %d times", len(env.notifier.msgs))
	}

	w := env.do(t, http.MethodGet, "/contact", nil, token)
	expectStatus(t, w, http.StatusOK)
	list := decode[contact.ListResult](t, w)
	if list.Pagination.Total != 2 || len(list.Data) != 2 {
		t.Fatalf("unexpected list %+v", list)
	}
	if list.Data[0].ID != ids[1] {
		t.Fatalf("expected newest first, got %s", list.Data[0].Name)
	}

	w = env.do(t, http.MethodGet, "/contact?q=ALICE@EXAMPLE", nil, token)
	list = decode[contact.ListResult](t, w)
	if len(list.Data) != 1 || list.Data[0].Name != "alice" {
		t.Fatalf("search result %+v", list.Data)
	}

	w = env.do(t, http.MethodGet, "/contact?page=2&limit=1", nil, token)
	list = decode[contact.ListResult](t, w)
	if list.Pagination.TotalPages != 2 || len(list.Data) != 1 || list.Data[0].ID != ids[0] {
		t.Fatalf("pagination %+v", list)
	}

	w = env.do(t, http.MethodPut, "/contact/"+ids[0], map[string]any{"read": true}, token)
	expectStatus(t, w, http.StatusOK)
	if msg := decode[database.ContactMessage](t, w); !msg.Read {
		t.Fatalf("message not marked read")
	}

	w = env.do(t, http.MethodPut, "/contact/"+ids[0], map[string]any{"name": "changed"}, token)
	expectStatus(t, w, http.StatusBadRequest)

	w = env.do(t, http.MethodDelete, "/contact/"+ids[0], nil, token)
	expectStatus(t, w, http.StatusOK)
	if got := decode[map[string]string](t, w)["message"]; got != "Message deleted successfully" {
		t.Fatalf("delete message = %q", got)
	}

	w = env.do(t, http.MethodGet, "/contact/"+ids[0], nil, token)
	expectStatus(t, w, http.StatusNotFound)
}

func TestContactRateLimitIgnoresForwardedFor(t *testing.T) {
	env := newTestEnv(t)
	submit := func(i int) *httptest.ResponseRecorder {
		data, err := json.Marshal(validSubmission(fmt.Sprintf("visitor%d", i)))
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		req := httptest.NewRequest(http.MethodPost, "/contact", bytes.NewReader(data))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i+1))
		req.RemoteAddr = "192.0.2.10:4321"
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		return w
	}

	for i := 0; i < 3; i++ {
		expectStatus(t, submit(i), http.StatusOK)
	}
	expectStatus(t, submit(3), http.StatusTooManyRequests)

	var ips []string
	env.db.Model(&database.ContactMessage{}).Distinct().Pluck("ip", &ips)
	if len(ips) != 1 || ips[0] != "192.0.2.10" {
		t.Fatalf("stored ips = %v, want [192.0.2.10]", ips)
	}
}
