package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Logger logs one line per request with the response status, size and
// duration. Installers identify themselves in the User-Agent header
// (pip, uv, poetry), so that is captured to show who is pulling
// packages through the proxy.
type Logger struct {
	log  *slog.Logger
	next http.Handler
}

func NewLogger(log *slog.Logger, next http.Handler) *Logger {
	return &Logger{
		log:  log,
		next: next,
	}
}

// statusWriter records the status code and body size of a response. A
// zero status means nothing has been written yet.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status != 0 {
		return
	}
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func (l *Logger) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	msg := fmt.Sprintf("%s %s", r.Method, r.URL.Path)
	sw := &statusWriter{
		ResponseWriter: w,
	}

	defer func() {
		ms := time.Since(start).Milliseconds()
		if rec := recover(); rec != nil {
			l.log.Error(msg, slog.Any("panic", rec), slog.Int("status", http.StatusInternalServerError), slog.Int64("ms", ms))
			if sw.status == 0 {
				http.Error(sw, "internal server error", http.StatusInternalServerError)
			}
			return
		}
		l.log.Info(msg, slog.Int("status", sw.status), slog.Int("bytes", sw.bytes), slog.Int64("ms", ms), slog.String("userAgent", r.UserAgent()))
	}()

	l.next.ServeHTTP(sw, r)
}
