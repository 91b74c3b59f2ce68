package metrics

import (
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewServer returns a standalone server for scrapes on addr. It serves
// /metrics from the default registry and a plain /healthz.
func NewServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           newMux(prometheus.DefaultGatherer),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func newMux(g prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok")
	})
	return mux
}
