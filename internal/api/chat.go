package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/polo52/polochat/internal/chat"
	"github.com/polo52/polochat/internal/config"
	"github.com/polo52/polochat/internal/conversation"
	"github.com/polo52/polochat/internal/rowset"
)

const maxChatBodyBytes = 1 << 20

type chatRequest struct {
	Message string                  `json:"message"`
	History []conversation.Exchange `json:"history"`
}

type chatResponse struct {
	TurnID          string       `json:"turn_id"`
	Reply           string       `json:"reply"`
	DBResults       []rowset.Row `json:"db_results"`
	Columns         []string     `json:"columns"`
	Truncated       bool         `json:"truncated,omitempty"`
	CorrectedEntity string       `json:"corrected_entity"`
	ErrorKind       string       `json:"error_kind,omitempty"`
}

func handleChat(cfg config.ChatConfig, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Chat == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CHAT_NOT_CONFIGURED", "chat pipeline is not configured", false, nil)
		return
	}

	var req chatRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(r.Context(), w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "chat request body is too large", false, map[string]any{"limit_bytes": tooLarge.Limit})
			return
		}
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid chat request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "MESSAGE_REQUIRED", "message is required", false, nil)
		return
	}
	if cfg.MaxMessageBytes > 0 && len(req.Message) > cfg.MaxMessageBytes {
		writeError(r.Context(), w, http.StatusBadRequest, "MESSAGE_TOO_LONG", "message exceeds the configured size limit", false, map[string]any{"limit_bytes": cfg.MaxMessageBytes})
		return
	}

	ctx := r.Context()
	if cfg.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.TurnTimeout)
		defer cancel()
	}

	outcome := deps.Chat.HandleTurn(ctx, chat.Request{
		Message: req.Message,
		History: conversation.FromExchanges(req.History),
	})
	writeJSON(w, http.StatusOK, newChatResponse(outcome, deps.Chat.Redactor()))
}

func newChatResponse(outcome chat.Outcome, redactor *chat.Redactor) chatResponse {
	results := outcome.Rows
	if redactor != nil {
		results = redactor.Apply(results)
	}
	response := chatResponse{
		TurnID:          outcome.TurnID,
		Reply:           outcome.Answer,
		DBResults:       results.Rows,
		Columns:         results.Columns,
		Truncated:       results.Truncated,
		CorrectedEntity: outcome.CorrectedEntity,
	}
	if response.DBResults == nil {
		response.DBResults = []rowset.Row{}
	}
	if response.Columns == nil {
		response.Columns = []string{}
	}
	if outcome.Err != nil {
		response.ErrorKind = string(*outcome.Err)
	}
	return response
}

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Schema == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SCHEMA_NOT_CONFIGURED", "schema introspection is not configured", false, nil)
		return
	}
	description, err := deps.Schema.Describe(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "SCHEMA_UNAVAILABLE", "failed to load schema", true, map[string]any{"details": err.Error()})
		return
	}

	tables := make([]string, 0, len(description.Tables))
	for _, table := range description.Tables {
		tables = append(tables, table.Name)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"table_count": len(description.Tables),
		"tables":      tables,
		"schema":      description.Render(),
	})
}
