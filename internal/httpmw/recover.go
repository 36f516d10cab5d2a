package httpmw

import (
	"fmt"
	"net/http"

	"github.com/keithlinneman/smallbiz-web/internal/log"
	"github.com/keithlinneman/smallbiz-web/internal/xerrors"
)

// Recover turns a handler panic into a 500, logs it with the request method
// and path, and calls onPanic (may be nil), e.g. to bump a metric.
// http.ErrAbortHandler is re-panicked so net/http can abort the connection.
func Recover(logger log.Logger, onPanic func()) func(http.Handler) http.Handler {
	if logger == nil {
		logger = log.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				var err error
				if e, ok := rec.(error); ok {
					err = xerrors.Wrap(e, "panic")
				} else {
					err = xerrors.New(fmt.Sprintf("panic: %v", rec))
				}

				logger.With("method", r.Method, "path", r.URL.Path).
					Error(r.Context(), err, "httpserver panic recovered")
				if onPanic != nil {
					onPanic()
				}
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
