// Package api exposes the query engine over a small JSON HTTP surface.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	qerrors "github.com/veldt-labs/sqlbridge/errors"
	"github.com/veldt-labs/sqlbridge/logger"
	"github.com/veldt-labs/sqlbridge/sql"
	"github.com/veldt-labs/sqlbridge/types"
)

type RESTHandler struct {
	engine *sql.Engine
}

func NewRESTHandler(engine *sql.Engine) *RESTHandler {
	return &RESTHandler{engine: engine}
}

func (h *RESTHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/query", h.Query)
		r.Post("/explain", h.Explain)
		r.Post("/script", h.Script)
	})
}

type QueryRequest struct {
	SQL     string       `json:"sql"`
	Options QueryOptions `json:"options,omitempty"`
}

type QueryOptions struct {
	MaxRows      int64 `json:"max_rows,omitempty"`
	PageSize     int   `json:"page_size,omitempty"`
	PoolCapacity int   `json:"pool_capacity,omitempty"`
	Confirmed    bool  `json:"confirmed,omitempty"`
	DryRun       bool  `json:"dry_run,omitempty"`
	NoLimit      bool  `json:"no_limit,omitempty"`
	RowCap       int64 `json:"row_cap,omitempty"`
}

type ExplainResponse struct {
	Plan string `json:"plan"`
}

type ScriptResponse struct {
	Results []*types.QueryResult `json:"results"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (h *RESTHandler) Query(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}
	result, err := h.engine.Execute(r.Context(), req.SQL, executeOptions(req.Options))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *RESTHandler) Explain(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}
	plan, err := h.engine.Explain(r.Context(), req.SQL, executeOptions(req.Options))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ExplainResponse{Plan: plan})
}

func (h *RESTHandler) Script(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}
	results, err := h.engine.RunScript(r.Context(), req.SQL, executeOptions(req.Options))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ScriptResponse{Results: results})
}

func decodeRequest(w http.ResponseWriter, r *http.Request) (QueryRequest, bool) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body: " + err.Error(),
			Code:  qerrors.CodeParse,
		})
		return req, false
	}
	if req.SQL == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "missing sql field",
			Code:  qerrors.CodeParse,
		})
		return req, false
	}
	return req, true
}

func executeOptions(opts QueryOptions) sql.ExecuteOptions {
	return sql.ExecuteOptions{
		MaxRows:      opts.MaxRows,
		PageSize:     opts.PageSize,
		PoolCapacity: opts.PoolCapacity,
		Confirmed:    opts.Confirmed,
		DryRun:       opts.DryRun,
		NoLimit:      opts.NoLimit,
		RowCap:       opts.RowCap,
	}
}

// writeError maps the structured error taxonomy onto HTTP status codes
func writeError(w http.ResponseWriter, err error) {
	code := qerrors.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case qerrors.CodeParse:
		status = http.StatusBadRequest
	case qerrors.CodeDmlBlocked, qerrors.CodeDmlRowCapExceeded:
		status = http.StatusForbidden
	case qerrors.CodePlanTimeout:
		status = http.StatusGatewayTimeout
	}
	var pe *qerrors.ParseError
	if errors.As(err, &pe) {
		status = http.StatusBadRequest
		code = qerrors.CodeParse
	}
	logger.Warn("request failed", "code", code, "error", err)
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: code})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}
