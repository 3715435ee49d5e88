package http

import (
	"net/http"

	metrics "github.com/hashicorp/go-metrics"
	"github.com/stephnangue/vortex/logger"
)

// HealthResponse is returned by GET /v1/sys/health
type HealthResponse struct {
	Status string `json:"status"`
}

func handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondOk(w, &HealthResponse{Status: "ok"})
	}
}

func handleMetrics(sink *metrics.InmemSink, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := sink.DisplayMetrics(w, r)
		if err != nil {
			log.Error("failed to render metrics", logger.Err(err))
			respondError(w, http.StatusInternalServerError, "failed to render metrics")
			return
		}
		respondOk(w, summary)
	}
}
