package httpapi

import (
	"context"
	"net/http"
	"strconv"

	goahttp "goa.design/goa/v3/http"
	"goa.design/goa/v3/middleware"

	"fusioncam/internal/eventlog"
	"fusioncam/internal/pipeline"
)

// DefaultRecent is the number of entries /api/recent returns without ?n=
const DefaultRecent = 10

// StatsSource reports driver counters
type StatsSource interface {
	Stats() pipeline.Stats
}

// LogReader is the read side of the detection log
type LogReader interface {
	Len() int
	Recent(n int) []eventlog.Entry
	Summarize(window int) []eventlog.KindCount
}

// CommandSubmitter accepts operator commands
type CommandSubmitter interface {
	SubmitText(text string) bool
}

// HealthReporter reports per-detector health
type HealthReporter interface {
	Health() map[string]bool
}

// API implements the JSON endpoints
type API struct {
	stats         StatsSource
	log           LogReader
	commands      CommandSubmitter
	detectors     HealthReporter
	summaryWindow int
}

// NewAPI creates the JSON API. detectors may be nil.
func NewAPI(stats StatsSource, logReader LogReader, commands CommandSubmitter, detectors HealthReporter, summaryWindow int) *API {
	if summaryWindow <= 0 {
		summaryWindow = 20
	}
	return &API{
		stats:         stats,
		log:           logReader,
		commands:      commands,
		detectors:     detectors,
		summaryWindow: summaryWindow,
	}
}

// StatusResponse is returned by /api/status
type StatusResponse struct {
	pipeline.Stats
	Detectors map[string]bool `json:"detectors,omitempty"`
}

// SummaryResponse is returned by /api/summary
type SummaryResponse struct {
	TotalEntries int                  `json:"total_entries"`
	Window       int                  `json:"window"`
	Counts       []eventlog.KindCount `json:"counts"`
}

// CommandRequest is the body of POST /api/commands
type CommandRequest struct {
	Command string `json:"command"`
}

// CommandResponse acknowledges a command
type CommandResponse struct {
	Command  string `json:"command"`
	Accepted bool   `json:"accepted"`
}

// ErrorResponse is the body of failed requests
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// Health reports liveness
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	encode(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}

// Status reports driver counters and detector health
func (a *API) Status(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{Stats: a.stats.Stats()}
	if a.detectors != nil {
		resp.Detectors = a.detectors.Health()
	}
	encode(r.Context(), w, http.StatusOK, resp)
}

// Summary reports per-kind counts over the recent window (?window= overrides)
func (a *API) Summary(w http.ResponseWriter, r *http.Request) {
	window, err := intParam(r, "window", a.summaryWindow)
	if err != nil {
		encodeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}
	encode(r.Context(), w, http.StatusOK, SummaryResponse{
		TotalEntries: a.log.Len(),
		Window:       window,
		Counts:       a.log.Summarize(window),
	})
}

// Recent returns the last ?n= log entries
func (a *API) Recent(w http.ResponseWriter, r *http.Request) {
	n, err := intParam(r, "n", DefaultRecent)
	if err != nil {
		encodeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}
	encode(r.Context(), w, http.StatusOK, a.log.Recent(n))
}

// Command queues an operator command for the next frame
func (a *API) Command(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := goahttp.RequestDecoder(r).Decode(&req); err != nil {
		encodeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	accepted := a.commands.SubmitText(req.Command)
	status := http.StatusAccepted
	if !accepted {
		status = http.StatusUnprocessableEntity
	}
	encode(r.Context(), w, status, CommandResponse{Command: req.Command, Accepted: accepted})
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &paramError{name: name, value: raw}
	}
	return v, nil
}

type paramError struct {
	name  string
	value string
}

func (e *paramError) Error() string {
	return "invalid " + e.name + " parameter: " + strconv.Quote(e.value)
}

func encode(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := goahttp.ResponseEncoder(ctx, w).Encode(v); err != nil {
		id, _ := ctx.Value(middleware.RequestIDKey).(string)
		w.Write([]byte("[" + id + "] encoding: " + err.Error()))
	}
}

func encodeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	id, _ := ctx.Value(middleware.RequestIDKey).(string)
	encode(ctx, w, status, ErrorResponse{Error: err.Error(), RequestID: id})
}
