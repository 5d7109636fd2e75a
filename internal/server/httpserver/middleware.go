package httpserver

import (
	"fmt"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/gridmesh-go/internal/server/httpserver/handler"
	"github.com/yndnr/gridmesh-go/internal/telemetry/logger"
)

type middleware func(http.Handler) http.Handler

// wrap applies mw so that mw[0] sees the request first.
func wrap(h http.Handler, mw ...middleware) http.Handler {
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}

// requestScope echoes X-Request-ID, minting a ULID when the caller sent
// none, and puts a logger tagged with it on the request context.
func requestScope(log logger.Logger) middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(handler.RequestIDHeader)
			if id == "" {
				id = "req-" + ulid.Make().String()
			}
			w.Header().Set(handler.RequestIDHeader, id)
			ctx := logger.NewContext(r.Context(), log.With("request_id", id))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// accessLog logs successful requests at debug, since probes and scrapes
// arrive every few seconds, and failures at warn or error.
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		log := logger.FromContext(r.Context())
		emit := log.Debug
		switch {
		case rec.status >= 500:
			emit = log.Error
		case rec.status >= 400:
			emit = log.Warn
		}
		emit("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"elapsed", time.Since(start),
			"remote", r.RemoteAddr,
		)
	})
}

// recoverPanic answers GRID-SYS-5000 when a handler panics.
func recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				logger.FromContext(r.Context()).Error("http handler panic",
					"path", r.URL.Path,
					"panic", fmt.Sprint(v),
				)
				handler.WriteError(w, r, http.StatusInternalServerError, "GRID-SYS-5000", "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
