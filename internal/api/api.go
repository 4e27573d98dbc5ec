// ABOUTME: Agent-facing HTTP API: blocking input requests, status, transcript export.
// ABOUTME: All /api routes require the static bearer token from the config store.

package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/2389/handoff-bridge/internal/auth"
	"github.com/2389/handoff-bridge/internal/broker"
	"github.com/2389/handoff-bridge/internal/export"
)

// Broker is the subset of broker operations the API depends on.
type Broker interface {
	RequestInput(ctx context.Context, req broker.InputRequest) (*broker.Answer, error)
	Status() *broker.Snapshot
}

// Exporter writes a conversation transcript to local files.
type Exporter interface {
	Export(conv export.Conversation) ([]string, error)
}

// API serves the agent-facing HTTP surface.
type API struct {
	broker   Broker
	exporter Exporter // nil disables /api/export
	logger   *slog.Logger
}

// New creates the API handler set.
func New(b Broker, exporter Exporter, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		broker:   b,
		exporter: exporter,
		logger:   logger.With("component", "api"),
	}
}

// RegisterRoutes mounts the API on the router. Health stays unauthenticated;
// everything under /api requires the bearer token.
func (a *API) RegisterRoutes(r *mux.Router, apiToken string) {
	r.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)

	sub := r.PathPrefix("/api").Subrouter()
	sub.Use(auth.APITokenMiddleware(apiToken))
	sub.HandleFunc("/input-request", a.handleInputRequest).Methods(http.MethodPost)
	sub.HandleFunc("/status", a.handleStatus).Methods(http.MethodGet)
	sub.HandleFunc("/export", a.handleExport).Methods(http.MethodPost)
}

// inputRequestBody is the wire shape of an agent's "ask the human" call.
type inputRequestBody struct {
	Prompt         string   `json:"prompt"`
	Options        []string `json:"options"`
	InputType      string   `json:"input_type"`
	TimeoutSeconds int      `json:"timeout_seconds"`
	ProjectTag     string   `json:"project_tag"`
}

// inputResponseBody is returned once a device answers.
type inputResponseBody struct {
	Answer      string `json:"answer"`
	RespondedBy string `json:"responded_by"`
	ElapsedMs   int64  `json:"elapsed_ms"`
}

func (a *API) handleInputRequest(w http.ResponseWriter, r *http.Request) {
	var body inputRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(body.Prompt) == "" {
		writeJSONError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	req := broker.InputRequest{
		Prompt:     body.Prompt,
		Options:    body.Options,
		Shape:      parseShape(body.InputType),
		ProjectTag: body.ProjectTag,
	}
	if body.TimeoutSeconds > 0 {
		req.Timeout = time.Duration(body.TimeoutSeconds) * time.Second
	}

	answer, err := a.broker.RequestInput(r.Context(), req)
	if err != nil {
		a.writeBrokerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, inputResponseBody{
		Answer:      answer.Value,
		RespondedBy: answer.RespondedBy,
		ElapsedMs:   answer.Elapsed.Milliseconds(),
	})
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.broker.Status())
}

// exportResponseBody lists the files written for one conversation.
type exportResponseBody struct {
	Files []string `json:"files"`
}

func (a *API) handleExport(w http.ResponseWriter, r *http.Request) {
	if a.exporter == nil {
		writeJSONError(w, http.StatusNotImplemented, "export not configured")
		return
	}

	var conv export.Conversation
	if err := json.NewDecoder(r.Body).Decode(&conv); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid conversation body")
		return
	}

	files, err := a.exporter.Export(conv)
	if err != nil {
		a.logger.Error("export failed", "title", conv.Title, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "export failed")
		return
	}
	writeJSON(w, http.StatusOK, exportResponseBody{Files: files})
}

// handleHealth returns 200 OK if the server is alive.
func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// writeBrokerError maps broker failures to HTTP statuses. Push delivery
// failures never reach here; they are advisory.
func (a *API) writeBrokerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, broker.ErrNoRecipients):
		writeJSONError(w, http.StatusServiceUnavailable, "no connected or push-capable devices")
	case errors.Is(err, broker.ErrTimeout):
		writeJSONError(w, http.StatusRequestTimeout, "no answer before the deadline")
	case errors.Is(err, broker.ErrCancelled):
		writeJSONError(w, http.StatusRequestTimeout, "input request cancelled")
	case errors.Is(err, broker.ErrShuttingDown):
		writeJSONError(w, http.StatusServiceUnavailable, "server shutting down")
	default:
		a.logger.Error("input request failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

// parseShape maps the wire input_type to an answer shape hint.
func parseShape(inputType string) broker.AnswerShape {
	switch inputType {
	case "number", "numeric":
		return broker.ShapeNumber
	case "yes_no", "yesno":
		return broker.ShapeYesNo
	default:
		return broker.ShapeText
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
