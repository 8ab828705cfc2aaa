package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/effective-security/librarian/pkg/metricskey"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
)

func requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		sw := &statusWriter{ResponseWriter: w}

		r.Body = http.MaxBytesReader(sw, r.Body, MaxRequestBodyBytes)
		next.ServeHTTP(sw, r)

		// the mux sets the matched pattern on the request
		route := values.StringsCoalesce(r.Pattern, "not_found")
		status := sw.statusCode()
		metricskey.StatsHTTPRequests.IncrCounter(1, route, strconv.Itoa(status))

		level := xlog.DEBUG
		if status >= http.StatusInternalServerError {
			level = xlog.ERROR
		}
		logger.ContextKV(r.Context(), level,
			"method", r.Method,
			"path", r.URL.Path,
			"route", route,
			"status", status,
			"bytes", sw.bytes,
			"duration_ms", time.Since(started).Milliseconds(),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += n
	return n, err
}

func (w *statusWriter) statusCode() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}
