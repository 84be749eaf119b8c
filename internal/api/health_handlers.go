package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

type AdmissionStatus struct {
	Capacity int `json:"capacity"`
	InFlight int `json:"in_flight"`
	Waiting  int `json:"waiting"`
}

type HealthResponse struct {
	Status    string           `json:"status"`
	Database  string           `json:"database"`
	Admission *AdmissionStatus `json:"admission,omitempty"`
}

func (s *Server) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Database: "ok"}
	code := http.StatusOK

	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Error("Health check failed to ping store", zap.Error(err))
		resp.Status = "degraded"
		resp.Database = "unreachable"
		code = http.StatusServiceUnavailable
	}

	if s.admission != nil {
		resp.Admission = &AdmissionStatus{
			Capacity: s.admission.Capacity(),
			InFlight: s.admission.InFlight(),
			Waiting:  s.admission.Waiting(),
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(resp)
}
