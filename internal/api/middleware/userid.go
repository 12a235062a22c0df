package middleware

import (
	"context"
	"net/http"

	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/api/response"
	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/validation"
)

// UserIDHeader carries the id of the user a request acts for.
const UserIDHeader = "X-User-ID"

type contextKey string

const userIDKey contextKey = "userID"

// UserIDMiddleware requires a valid UUID in the X-User-ID header and stores it in
// the request context. Returns 400 Bad Request otherwise.
func UserIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(UserIDHeader)
		if userID == "" {
			response.RespondError(w, http.StatusBadRequest, "user ID is required", "missing "+UserIDHeader+" header")
			return
		}
		if err := validation.ValidateUUID(userID); err != nil {
			response.RespondError(w, http.StatusBadRequest, "invalid user ID", err.Error())
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

// WithUserID returns a copy of ctx carrying userID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserID returns the user id stored by UserIDMiddleware.
func UserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey).(string)
	return userID, ok && userID != ""
}
