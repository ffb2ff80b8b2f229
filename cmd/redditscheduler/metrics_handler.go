package main

import (
	"encoding/json"
	"net/http"

	"redditscheduler/internal/database"
	"redditscheduler/internal/metrics"
	"redditscheduler/internal/service"
	"redditscheduler/internal/tracing"

	"github.com/sirupsen/logrus"
)

// handleMetrics returns current application metrics
func (s *Server) handleMetrics() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestInfo := tracing.GetRequestInfo(r.Context())

		if counts, err := s.health.CountPosts(r.Context()); err == nil {
			postsPendingGauge(counts)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")

		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")

		if err := encoder.Encode(metrics.GetSnapshot()); err != nil {
			s.logger.WithFields(logrus.Fields{
				service.LogFieldRequestID: requestInfo.RequestID,
				service.LogFieldTraceID:   requestInfo.TraceID,
				"error":                   err,
			}).Error("Failed to encode metrics response")

			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
	}
}

func postsPendingGauge(counts database.PostCounts) {
	metrics.SetGauge(metrics.PendingPosts, float64(counts.Pending), nil, "Posts waiting to be submitted")
	metrics.SetGauge(metrics.PendingPosts, float64(counts.Erroring), map[string]string{"state": "erroring"}, "Pending posts whose last attempt failed")
}
