package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"leadcaller/config"
	"leadcaller/correlation"
	"leadcaller/models"
	"leadcaller/services"
	"leadcaller/storage"
	"leadcaller/voice"
)

type searchRequest struct {
	SearchTerm string `json:"search_term"`
	Message    string `json:"message"`
	Criterion  string `json:"criterion"`
	Total      int    `json:"total,omitempty"`
}

type dispatchErrorBody struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code,omitempty"`
}

type searchResponse struct {
	CycleID       string              `json:"cycle_id"`
	SearchTerm    string              `json:"search_term"`
	PageStatus    string              `json:"page_status"`
	Columns       []string            `json:"columns"`
	Records       []map[string]string `json:"records"`
	CallID        string              `json:"call_id,omitempty"`
	DispatchError *dispatchErrorBody  `json:"dispatch_error,omitempty"`
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := s.searcher.Run(r.Context(), services.SearchRequest{
		SearchTerm: req.SearchTerm,
		Message:    req.Message,
		Criterion:  req.Criterion,
		Total:      req.Total,
	})
	var ve *services.ValidationError
	switch {
	case errors.As(err, &ve):
		respondError(w, http.StatusBadRequest, ve.Error())
		return
	case errors.Is(err, services.ErrCycleInProgress):
		respondError(w, http.StatusConflict, "a search is already running")
		return
	case err != nil:
		s.logger.Z().Error("search cycle failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "search failed")
		return
	}

	body := searchResponse{
		CycleID:    res.Cycle.ID,
		SearchTerm: res.Cycle.SearchTerm,
		PageStatus: res.PageStatus.String(),
		Columns:    res.Dataset.PresentColumns(),
		Records:    res.Dataset.Records(),
	}
	if res.Call != nil {
		body.CallID = res.Call.CallID
	}
	if res.DispatchErr != nil {
		body.DispatchError = &dispatchErrorBody{Code: string(voice.CodeTransport), Message: res.DispatchErr.Error()}
		var de *voice.DispatchError
		if errors.As(res.DispatchErr, &de) {
			body.DispatchError.Code = string(de.Code)
			body.DispatchError.StatusCode = de.StatusCode
		}
	}
	respondJSON(w, http.StatusOK, body)
}

func (s *Server) webhook(w http.ResponseWriter, r *http.Request) {
	var ev models.WebhookEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		respondError(w, http.StatusBadRequest, "invalid webhook payload")
		return
	}

	res, err := s.events.Handle(r.Context(), &ev)
	switch {
	case correlation.IsMalformed(err):
		respondError(w, http.StatusBadRequest, "invalid webhook payload")
		return
	case err != nil:
		s.logger.Z().Error("webhook handling failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "webhook handling failed")
		return
	}

	switch res.Outcome {
	case correlation.OutcomeWritten:
		respondJSON(w, http.StatusOK, map[string]any{
			"message":         "lead updated",
			"outcome":         res.Outcome,
			"qualified_leads": res.Snapshot.Leads,
		})
	case correlation.OutcomeJudgeFailed:
		respondJSON(w, http.StatusBadGateway, map[string]any{
			"message": "event received",
			"outcome": res.Outcome,
			"error":   res.JudgeErr.Error(),
		})
	default:
		respondJSON(w, http.StatusOK, map[string]any{
			"message": "event received",
			"outcome": res.Outcome,
		})
	}
}

func (s *Server) qualifiedLeads(w http.ResponseWriter, r *http.Request) {
	snap, err := s.qualified.Current(r.Context())
	if errors.Is(err, storage.ErrNoSnapshot) {
		respondJSON(w, http.StatusNotFound, map[string]string{"message": "no qualified leads available"})
		return
	}
	if err != nil {
		s.logger.Z().Error("qualified leads unavailable", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "qualified leads unavailable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"cycle_id":        snap.CycleID,
		"updated_at":      snap.UpdatedAt.Format(time.RFC3339),
		"qualified_leads": snap.Leads,
	})
}

type telephonyRequest struct {
	AccountSID     string `json:"twilioAccountSid"`
	AuthToken      string `json:"twilioAuthToken"`
	PhoneNumber    string `json:"twilioPhoneNumber"`
	CustomerNumber string `json:"customerPhoneNumber"`
}

func (s *Server) setTelephony(w http.ResponseWriter, r *http.Request) {
	var req telephonyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	err := s.telephony.SetTelephony(config.TelephonyConfig{
		AccountSID:     req.AccountSID,
		AuthToken:      req.AuthToken,
		PhoneNumber:    req.PhoneNumber,
		CustomerNumber: req.CustomerNumber,
	})
	if err != nil {
		respondError(w, http.StatusBadRequest, "twilioAccountSid, twilioAuthToken and twilioPhoneNumber are required")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "telephony configuration saved"})
}
