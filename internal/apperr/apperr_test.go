package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatusFollowsWrappedKind(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{Validation("invalid", nil), http.StatusBadRequest},
		{fmt.Errorf("load: %w", NotFound("missing")), http.StatusNotFound},
		{E(KindRateLimited, "slow down", nil), http.StatusTooManyRequests},
		{E(KindTooLarge, "too large", nil), http.StatusRequestEntityTooLarge},
		{E(KindUnsupported, "bad type", nil), http.StatusUnsupportedMediaType},
		{E(KindPersistence, "failed", errors.New("pq: boom")), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := Status(tc.err); got != tc.want {
			t.Fatalf("Status(%v) = %d want %d", tc.err, got, tc.want)
		}
	}
}

func TestPublicHidesCause(t *testing.T) {
	err := E(KindPersistence, "failed to save message", errors.New("pq: password authentication failed"))
	if got := Public(err, "internal error"); got != "failed to save message" {
		t.Fatalf("unexpected public message %q", got)
	}
	if got := Public(errors.New("raw"), "internal error"); got != "internal error" {
		t.Fatalf("unexpected fallback %q", got)
	}
}
