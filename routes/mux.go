package routes

import (
	"log/slog"
	"net/http"

	"github.com/a-h/retread/config"
	"github.com/a-h/retread/handlers"
	"github.com/a-h/retread/handlers/simple"
	"github.com/a-h/retread/metrics"
	"github.com/a-h/retread/upstream"
)

func New(log *slog.Logger, client *upstream.Client, cfg config.Config, m metrics.Metrics) http.Handler {
	mux := http.NewServeMux()

	sh := simple.New(log, client, cfg, m)
	mux.Handle("/simple/", sh)
	mux.Handle("/simple", sh)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, "/simple/", http.StatusFound)
	})

	return handlers.NewLogger(log, mux)
}
