package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/aegisid/aegisid/pkg/servermon"
)

// statusWriter captures the response code for the duration histogram.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// ResponseTime records request durations labelled by route template, method,
// and status code. The status is only known after the handler runs, so the
// observation happens inline rather than through servermon.DurationObserver.
func ResponseTime(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(sw, r)

		route := "unmatched"
		if current := mux.CurrentRoute(r); current != nil {
			if template, err := current.GetPathTemplate(); err == nil {
				route = template
			}
		}
		servermon.ResponseTimeHistogram.
			WithLabelValues(route, r.Method, strconv.Itoa(sw.status)).
			Observe(time.Since(start).Seconds())
	})
}
