package api

import (
	"net/http"
)

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, s.healthSvc.Status())
}

func (s *Server) handleDelayedJobs(w http.ResponseWriter, r *http.Request) {
	status, err := s.healthSvc.BuildDelayedJobsStatus(r.Context())
	if err != nil {
		s.logger.Error("build delayed jobs status", "error", err, "request_id", requestIDFromContext(r.Context()))
		jsonError(w, "job queue store unavailable", http.StatusInternalServerError)
		return
	}
	jsonResponse(w, http.StatusOK, status)
}
