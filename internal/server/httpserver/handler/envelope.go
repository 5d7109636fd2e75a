package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/yndnr/gridmesh-go/internal/core/grid"
	"github.com/yndnr/gridmesh-go/internal/telemetry/logger"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// CodeOK is the envelope code of successful responses. Failures carry a
// GRID-* error code.
const CodeOK = "OK"

// Envelope wraps every JSON body served on the operational port.
type Envelope struct {
	Code      string    `json:"code"`
	Message   string    `json:"message,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Time      time.Time `json:"time"`
	Data      any       `json:"data,omitempty"`
}

// StatusBody is the data of GET /status.
type StatusBody struct {
	Version     string     `json:"version"`
	Commit      string     `json:"commit,omitempty"`
	ClusterName string     `json:"cluster_name"`
	Uptime      string     `json:"uptime"`
	Sessions    int        `json:"sessions"`
	Grid        grid.Stats `json:"grid"`
}

// WriteData answers with data under CodeOK.
func WriteData(w http.ResponseWriter, r *http.Request, status int, data any) {
	write(w, r, status, Envelope{Code: CodeOK, Data: data})
}

// WriteError answers with a GRID-* code, which is also set in X-Error-Code.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("X-Error-Code", code)
	write(w, r, status, Envelope{Code: code, Message: message})
}

func write(w http.ResponseWriter, r *http.Request, status int, env Envelope) {
	env.RequestID = w.Header().Get(RequestIDHeader)
	if env.RequestID == "" {
		env.RequestID = r.Header.Get(RequestIDHeader)
	}
	env.Time = time.Now().UTC()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		logger.FromContext(r.Context()).Warn("write response", "error", err)
	}
}
