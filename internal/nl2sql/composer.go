package nl2sql

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/polo52/polochat/internal/conversation"
	"github.com/polo52/polochat/internal/llm"
	"github.com/polo52/polochat/internal/rowset"
)

// FollowUpInvitation closes every answer that does not already end in a question.
const FollowUpInvitation = "¿Puedo ayudarte con algo más?"

const DefaultSummaryThreshold = 6

var ErrComposeFailure = errors.New("answer composition failed")

// ComposeRequest carries results that were already stripped of sensitive columns.
type ComposeRequest struct {
	Utterance       string
	History         conversation.History
	Results         rowset.ResultSet
	CorrectedEntity string
}

type Composer struct {
	generator        llm.Generator
	summaryThreshold int
}

func NewComposer(generator llm.Generator, summaryThreshold int) *Composer {
	if summaryThreshold < 1 {
		summaryThreshold = DefaultSummaryThreshold
	}
	return &Composer{generator: generator, summaryThreshold: summaryThreshold}
}

func (c *Composer) SummaryThreshold() int {
	return c.summaryThreshold
}

func (c *Composer) Compose(ctx context.Context, req ComposeRequest) (string, error) {
	if req.Results.Empty() {
		return EmptyResultAnswer(req.CorrectedEntity), nil
	}
	if c == nil || c.generator == nil {
		return "", fmt.Errorf("%w: generator is not configured", ErrComposeFailure)
	}

	if req.Results.Len() > c.summaryThreshold || req.Results.Truncated {
		prompt := buildSummaryPrompt(req.Utterance, req.Results.Len(), req.Results.Truncated, req.Results.Columns, req.CorrectedEntity)
		reply, err := c.generator.Generate(ctx, prompt)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrComposeFailure, err)
		}
		answer := Polish(reply)
		if enumerates(answer, c.summaryThreshold) {
			return SummaryAnswer(req.Results.Len(), req.Results.Truncated, req.CorrectedEntity), nil
		}
		return answer, nil
	}

	rowsJSON, err := req.Results.MarshalRows()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrComposeFailure, err)
	}
	reply, err := c.generator.Generate(ctx, buildAnswerPrompt(req.Utterance, req.History, rowsJSON, req.CorrectedEntity))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrComposeFailure, err)
	}
	answer := Polish(reply)
	if answer == "" || answer == FollowUpInvitation {
		return "", fmt.Errorf("%w: model returned an empty answer", ErrComposeFailure)
	}
	return answer, nil
}

// EmptyResultAnswer is used without consulting the model so nothing can be invented.
func EmptyResultAnswer(correctedEntity string) string {
	if correctedEntity != "" {
		return fmt.Sprintf("No encontré datos sobre %q en la base del parque. %s", correctedEntity, FollowUpInvitation)
	}
	return "No encontré datos que coincidan con tu consulta en la base del parque. " + FollowUpInvitation
}

func SummaryAnswer(rowCount int, truncated bool, correctedEntity string) string {
	var b strings.Builder
	if correctedEntity != "" {
		fmt.Fprintf(&b, "Busqué por %q. ", correctedEntity)
	}
	fmt.Fprintf(&b, "Encontré %s, demasiados para detallarlos aquí. ", resultCount(rowCount, truncated))
	b.WriteString("¿Podrías indicarme un criterio más específico, como un rubro, un nombre o una fecha?")
	return b.String()
}

// resultCount phrases a row count. A truncated result only proves a lower bound.
func resultCount(rowCount int, truncated bool) string {
	if truncated {
		return fmt.Sprintf("más de %d resultados", rowCount)
	}
	return fmt.Sprintf("%d resultados", rowCount)
}

var listItemPattern = regexp.MustCompile(`^\s*(?:-\s|\d+[.)]\s)`)

// enumerates reports whether answer lists more items than the summary threshold allows.
func enumerates(answer string, threshold int) bool {
	items := 0
	for _, line := range strings.Split(answer, "\n") {
		if listItemPattern.MatchString(line) {
			items++
		}
	}
	return items > threshold
}

// Polish normalizes bullets to "- ", drops every remaining asterisk and appends the
// follow-up invitation when the answer does not already end with a question.
func Polish(answer string) string {
	lines := strings.Split(strings.ReplaceAll(answer, "\r\n", "\n"), "\n")
	for i, line := range lines {
		body := strings.TrimLeft(line, " \t")
		indent := line[:len(line)-len(body)]
		switch {
		case strings.HasPrefix(body, "* "):
			lines[i] = indent + "- " + strings.TrimSpace(body[2:])
		case strings.HasPrefix(body, "•"):
			lines[i] = indent + "- " + strings.TrimSpace(strings.TrimPrefix(body, "•"))
		}
	}
	polished := strings.TrimSpace(strings.ReplaceAll(strings.Join(lines, "\n"), "*", ""))
	if polished == "" {
		return FollowUpInvitation
	}
	if !strings.HasSuffix(polished, "?") {
		polished += "\n\n" + FollowUpInvitation
	}
	return polished
}
