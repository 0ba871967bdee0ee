package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/postal-cli/internal/enrich"
	"github.com/sells-group/postal-cli/internal/model"
	"github.com/sells-group/postal-cli/internal/store"
)

const maxBodyBytes = 1 << 16

// Response messages shared with the HTTP client.
const (
	MsgNotFound       = "Postal code not found"
	MsgAPIKeyRequired = "API key is required."
	MsgInvalidCode    = "Invalid postal code format. Use xxxx-xxx."
	MsgInvalidBody    = "invalid request body"
	MsgInternal       = "internal server error"
)

type updateRequest struct {
	APIKey string `json:"api_key"`
}

// UpdateResponse is the body of a successful POST /postal-codes/update.
type UpdateResponse struct {
	Message    string `json:"message"`
	Updated    int    `json:"updated"`
	Candidates int    `json:"candidates"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	recs, err := s.store.GetAll(r.Context())
	if err != nil {
		s.internalError(w, r, "list postal codes", err)
		return
	}

	if s.opts.ListShape == ShapeList {
		if recs == nil {
			recs = []model.PostalRecord{}
		}
		writeJSON(w, http.StatusOK, recs)
		return
	}

	out := make(map[string][2]string, len(recs))
	for _, rec := range recs {
		out[rec.PostalCode] = [2]string{rec.Concelho, rec.Distrito}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if !model.ValidPostalCode(code) {
		writeError(w, http.StatusBadRequest, MsgInvalidCode)
		return
	}

	rec, err := s.store.Get(r.Context(), code)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, MsgNotFound)
		return
	}
	if err != nil {
		s.internalError(w, r, "get postal code", err, zap.String("postal_code", code))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req)
	if err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, MsgInvalidBody)
		return
	}
	apiKey := strings.TrimSpace(req.APIKey)
	if apiKey == "" {
		writeError(w, http.StatusBadRequest, MsgAPIKeyRequired)
		return
	}

	// A client disconnect must not abandon a half-finished batch.
	ctx := context.WithoutCancel(r.Context())
	res, err := s.updater.BulkUpdate(ctx, apiKey)
	if errors.Is(err, enrich.ErrMissingAPIKey) {
		writeError(w, http.StatusBadRequest, MsgAPIKeyRequired)
		return
	}
	if err != nil {
		s.internalError(w, r, "bulk update", err, zap.Int("updated", res.Updated))
		return
	}

	writeJSON(w, http.StatusOK, UpdateResponse{
		Message:    fmt.Sprintf("%d postal codes updated successfully.", res.Updated),
		Updated:    res.Updated,
		Candidates: res.Candidates,
	})
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, action string, err error, fields ...zap.Field) {
	fields = append(fields,
		zap.String("request_id", requestID(r)),
		zap.Error(err),
	)
	zap.L().Error("api: "+action+" failed", fields...)
	writeError(w, http.StatusInternalServerError, MsgInternal)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
