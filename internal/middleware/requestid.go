package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type ctxKey int

const ridKey ctxKey = iota

const requestIDHeader = "X-Request-ID"

// RequestID tags every request with a correlation id, minting one when the
// caller did not supply a usable value. The id is echoed back on the
// response and picked up by the request logger.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get(requestIDHeader)
		if rid == "" || len(rid) > 64 {
			rid = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, rid)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ridKey, rid)))
	})
}

// RequestIDFrom extracts the correlation id; empty when untagged.
func RequestIDFrom(ctx context.Context) string {
	rid, _ := ctx.Value(ridKey).(string)
	return rid
}
