package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/onnwee/bhtree/internal/apierr"
	"github.com/onnwee/bhtree/internal/errorreporting"
	"github.com/onnwee/bhtree/internal/logger"
)

// RecoverWithSentry turns a handler panic into a SYSTEM_INTERNAL response and
// reports it. http.ErrAbortHandler is re-raised so net/http can abort the
// connection as intended.
func RecoverWithSentry(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			stack := debug.Stack()
			logger.ErrorContext(r.Context(), "Panic recovered",
				"error", rec,
				"stack", string(stack),
				"method", r.Method,
				"path", r.URL.Path,
			)
			errorreporting.CapturePanic(r, rec, apierr.GetRequestID(r.Context()), stack)
			apierr.WriteErrorWithContext(w, r, apierr.SystemInternal(""))
		}()

		next.ServeHTTP(w, r)
	})
}
