package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/api/middleware"
)

func TestUserIDMiddleware(t *testing.T) {
	t.Run("stores a valid user id", func(t *testing.T) {
		var got string
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, _ = middleware.UserID(r.Context())
			w.WriteHeader(http.StatusOK)
		})

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(middleware.UserIDHeader, "550e8400-e29b-41d4-a716-446655440000")
		w := httptest.NewRecorder()

		middleware.UserIDMiddleware(next).ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Expected 200, got %d", w.Code)
		}
		if got != "550e8400-e29b-41d4-a716-446655440000" {
			t.Errorf("Expected user id in context, got %q", got)
		}
	})

	for name, header := range map[string]string{
		"missing": "",
		"invalid": "user-1",
	} {
		t.Run("returns 400 for "+name+" user id", func(t *testing.T) {
			handlerCalled := false
			next := http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
				handlerCalled = true
			})

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if header != "" {
				req.Header.Set(middleware.UserIDHeader, header)
			}
			w := httptest.NewRecorder()

			middleware.UserIDMiddleware(next).ServeHTTP(w, req)

			if handlerCalled {
				t.Error("Expected next handler NOT to be called")
			}
			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d", w.Code)
			}
		})
	}
}
