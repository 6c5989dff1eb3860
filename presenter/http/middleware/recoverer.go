package middleware

import (
	"net/http"

	"github.com/nomad-xyz/nomad-monitor/logging"
	"github.com/nomad-xyz/nomad-monitor/presenter/http/render"
)

type ErrPanic struct {
	Value interface{}
}

func (e ErrPanic) Error() string {
	return "handler panicked"
}

func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				logger := logging.LoggerFromContext(r.Context())
				if err2, ok := err.(error); ok {
					logger = logger.WithError(err2)
				} else {
					logger = logger.WithField("recovered", err)
				}
				logger.Error("recovered error from the http handler")
				render.Error(w, r, ErrPanic{Value: err})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
