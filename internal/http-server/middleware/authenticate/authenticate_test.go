package authenticate

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"mentorhub/entity"
	"mentorhub/lib/api/cont"
)

type fakeVerifier struct {
	session *entity.Session
	err     error
}

func (f *fakeVerifier) VerifyToken(token string) (*entity.Session, error) {
	return f.session, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMissingTokenRejected(t *testing.T) {
	handler := New(discardLogger(), &fakeVerifier{})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/messages", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestInvalidTokenRejected(t *testing.T) {
	verifier := &fakeVerifier{err: entity.ErrTokenMalformed}
	handler := New(discardLogger(), verifier)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/messages", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestValidTokenPutsSession(t *testing.T) {
	session := &entity.Session{SubjectID: "user-1", Role: entity.RoleUser}
	verifier := &fakeVerifier{session: session}

	var seen *entity.Session
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = cont.GetSession(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := New(discardLogger(), verifier)(next)

	req := httptest.NewRequest(http.MethodGet, "/v1/messages", nil)
	req.Header.Set("Authorization", "Bearer token")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if seen == nil || seen.SubjectID != "user-1" {
		t.Fatalf("expected session in context, got %+v", seen)
	}
}

func TestQueryTokenAccepted(t *testing.T) {
	session := &entity.Session{SubjectID: "user-1", Role: entity.RoleUser}
	handler := New(discardLogger(), &fakeVerifier{session: session})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/events?token=abc", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestAdminGateRejectsUser(t *testing.T) {
	handler := Admin(discardLogger())(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/messages", nil)
	session := &entity.Session{SubjectID: "user-1", Role: entity.RoleUser}
	req = req.WithContext(cont.PutSession(req.Context(), session))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestAdminGateAllowsAdmin(t *testing.T) {
	handler := Admin(discardLogger())(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/messages", nil)
	session := &entity.Session{SubjectID: "admin-1", Role: entity.RoleAdmin}
	req = req.WithContext(cont.PutSession(req.Context(), session))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestAdminGateRejectsGuestSessionless(t *testing.T) {
	handler := Admin(discardLogger())(okHandler())

	// no session in context resolves to a guest session
	req := httptest.NewRequest(http.MethodGet, "/v1/admin/messages", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}
