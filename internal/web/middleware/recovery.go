package middleware

import (
	"fmt"
	"net/http"

	"github.com/conduit-lang/nestwrite/internal/web/response"
	"go.uber.org/zap"
)

// Recovery turns a panic in a handler into a 500 response and logs it with its
// stack. Transactions opened by the handler have already rolled back by the time
// the panic reaches here.
func Recovery(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if recovered := recover(); recovered != nil {
					if recovered == http.ErrAbortHandler {
						panic(recovered)
					}
					Logger(r.Context(), logger).Error("panic recovered",
						zap.Any("panic", recovered),
						zap.Stack("stack"),
					)
					response.RenderInternalError(w, fmt.Errorf("an unexpected error occurred"))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
