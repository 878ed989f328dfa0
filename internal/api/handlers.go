package api

import (
	"net/http"

	"recommend-workers/internal/common/database"
	apperrors "recommend-workers/internal/common/errors"
	"recommend-workers/internal/recommendation/pipeline"
)

func (s *Server) getRecommendations(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := validateStruct(&recommendationsQuery{Category: q.Category}); err != nil {
		s.writeError(w, r, err)
		return
	}

	req, err := q.toRequest()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp, err := s.recommender.Run(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getSections(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	req, err := q.toRequest()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp, err := s.recommender.RunSections(r.Context(), &pipeline.SectionsRequest{Request: *req, Keys: q.Sections})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	failures := database.CheckAll(r.Context(), readyTimeout, s.backends...)
	if len(failures) > 0 {
		s.logger.Warn("readiness check failed", map[string]interface{}{"failures": failures})
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":   "not_ready",
			"failures": failures,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type errorBody struct {
	RequestID string      `json:"requestId,omitempty"`
	Error     errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	stdErr := apperrors.AsStandardError(err)
	status := apperrors.HTTPStatus(stdErr.Code)

	fields := map[string]interface{}{
		"path":      r.URL.Path,
		"errorCode": string(stdErr.Code),
		"details":   stdErr.Details,
		"status":    status,
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", fields)
	} else {
		s.logger.Info("request rejected", fields)
	}

	body := errorBody{
		RequestID: requestID(r),
		Error: errorDetail{
			Code:    string(stdErr.Code),
			Message: stdErr.Message,
		},
	}
	// backend details stay in the logs
	if status < http.StatusInternalServerError {
		body.Error.Details = stdErr.Details
	}
	writeJSON(w, status, body)
}
