package nl2sql

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/polo52/polochat/internal/conversation"
	"github.com/polo52/polochat/internal/llm"
)

// ErrPlanningFailure covers a failed model call and any reply that does not honour the
// plan contract.
var ErrPlanningFailure = errors.New("query planning failed")

// Plan is the planner's decision for one utterance. A plan either asks the user a question
// or carries a query, never both.
type Plan struct {
	NeedsClarification    bool   `json:"needs_more_info"`
	SQL                   string `json:"sql_query"`
	CorrectedEntity       string `json:"corrected_entity"`
	ClarificationQuestion string `json:"question"`
}

type Planner struct {
	generator llm.Generator
}

func NewPlanner(generator llm.Generator) *Planner {
	return &Planner{generator: generator}
}

func (p *Planner) Plan(ctx context.Context, schemaText string, history conversation.History, utterance string) (Plan, error) {
	if p == nil || p.generator == nil {
		return Plan{}, fmt.Errorf("%w: generator is not configured", ErrPlanningFailure)
	}

	prompt := BuildPlannerPrompt(schemaText, history, utterance)
	reply, err := p.generator.Generate(ctx, prompt)
	if err != nil {
		return Plan{}, fmt.Errorf("%w: %w", ErrPlanningFailure, err)
	}
	plan, err := ParsePlan(reply)
	if err != nil {
		return Plan{}, fmt.Errorf("%w: %w", ErrPlanningFailure, err)
	}
	return plan, nil
}

var planKeys = []string{"needs_more_info", "sql_query", "corrected_entity", "question"}

// ParsePlan extracts and validates the plan object from a raw model reply.
func ParsePlan(reply string) (Plan, error) {
	object, err := extractJSONObject(reply)
	if err != nil {
		return Plan{}, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(object), &fields); err != nil {
		return Plan{}, fmt.Errorf("decode plan: %w", err)
	}
	for _, key := range planKeys {
		if _, ok := fields[key]; !ok {
			return Plan{}, fmt.Errorf("plan is missing %q", key)
		}
	}

	var plan Plan
	if err := json.Unmarshal(fields["needs_more_info"], &plan.NeedsClarification); err != nil {
		return Plan{}, fmt.Errorf("needs_more_info must be a boolean: %w", err)
	}
	if plan.SQL, err = optionalString(fields["sql_query"]); err != nil {
		return Plan{}, fmt.Errorf("sql_query: %w", err)
	}
	if plan.CorrectedEntity, err = optionalString(fields["corrected_entity"]); err != nil {
		return Plan{}, fmt.Errorf("corrected_entity: %w", err)
	}
	if plan.ClarificationQuestion, err = optionalString(fields["question"]); err != nil {
		return Plan{}, fmt.Errorf("question: %w", err)
	}

	if plan.NeedsClarification {
		if plan.ClarificationQuestion == "" {
			return Plan{}, errors.New("clarification plan without a question")
		}
		plan.SQL = ""
		return plan, nil
	}
	if plan.SQL == "" {
		return Plan{}, errors.New("plan has neither a query nor a question")
	}
	return plan, nil
}

// optionalString accepts a JSON string or null.
func optionalString(raw json.RawMessage) (string, error) {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return "", nil
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", fmt.Errorf("must be a string or null: %w", err)
	}
	return strings.TrimSpace(value), nil
}
