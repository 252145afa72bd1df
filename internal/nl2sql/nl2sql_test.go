package nl2sql

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polo52/polochat/internal/conversation"
	"github.com/polo52/polochat/internal/rowset"
)

type scriptedGenerator struct {
	replies []string
	err     error
	prompts []string
}

func (s *scriptedGenerator) Generate(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	if len(s.replies) == 0 {
		return "", errors.New("no scripted reply")
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return reply, nil
}

func TestNormalizeUtterance(t *testing.T) {
	assert.Equal(t, "¿que empresas hay en el rubro logistica?", NormalizeUtterance("  ¿Qué   EMPRESAS hay en el rubro Logística? "))
	assert.Equal(t, "vehiculos de metalurgica nunez", NormalizeUtterance("Vehículos de Metalúrgica Núñez"))
}

func TestExtractJSONObject(t *testing.T) {
	cases := map[string]string{
		"fenced":       "```json\n{\"a\": 1}\n```",
		"prose":        "Claro, aquí está: {\"a\": 1} espero que sirva",
		"brace in str": `{"a": "x } y", "b": {"c": "\"{"}}`,
	}
	want := map[string]string{
		"fenced":       `{"a": 1}`,
		"prose":        `{"a": 1}`,
		"brace in str": `{"a": "x } y", "b": {"c": "\"{"}}`,
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := extractJSONObject(input)
			require.NoError(t, err)
			assert.Equal(t, want[name], got)
		})
	}

	_, err := extractJSONObject("no object here")
	require.Error(t, err)
	_, err = extractJSONObject(`{"a": {"b": 1}`)
	require.Error(t, err)
}

func TestParsePlan(t *testing.T) {
	plan, err := ParsePlan("```json\n{\"needs_more_info\": false, \"sql_query\": \"SELECT nombre FROM empresa\", \"corrected_entity\": null, \"question\": \"\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, Plan{SQL: "SELECT nombre FROM empresa"}, plan)

	plan, err = ParsePlan(`{"needs_more_info": true, "sql_query": "SELECT 1", "corrected_entity": "", "question": "¿Sobre qué empresa?"}`)
	require.NoError(t, err)
	assert.True(t, plan.NeedsClarification)
	assert.Empty(t, plan.SQL)
	assert.Equal(t, "¿Sobre qué empresa?", plan.ClarificationQuestion)
}

func TestParsePlanRejectsContractViolations(t *testing.T) {
	cases := map[string]string{
		"missing key":         `{"needs_more_info": false, "sql_query": "SELECT 1", "question": ""}`,
		"bool as string":      `{"needs_more_info": "false", "sql_query": "SELECT 1", "corrected_entity": "", "question": ""}`,
		"sql as number":       `{"needs_more_info": false, "sql_query": 1, "corrected_entity": "", "question": ""}`,
		"clarify no question": `{"needs_more_info": true, "sql_query": "", "corrected_entity": "", "question": " "}`,
		"nothing to do":       `{"needs_more_info": false, "sql_query": "", "corrected_entity": "", "question": ""}`,
		"not json":            `SELECT * FROM empresa`,
	}
	for name, reply := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePlan(reply)
			require.Error(t, err)
		})
	}
}

func TestPlannerBuildsPromptInOrder(t *testing.T) {
	generator := &scriptedGenerator{replies: []string{`{"needs_more_info": false, "sql_query": "SELECT nombre FROM empresa", "corrected_entity": "", "question": ""}`}}
	planner := NewPlanner(generator)

	history := conversation.History{
		{Speaker: conversation.SpeakerUser, Text: "hola"},
		{Speaker: conversation.SpeakerAssistant, Text: "¿En qué te ayudo?"},
	}
	plan, err := planner.Plan(context.Background(), "TABLE empresa\n  nombre text NOT NULL\n", history, "¿Qué empresas hay?")
	require.NoError(t, err)
	assert.Equal(t, "SELECT nombre FROM empresa", plan.SQL)

	require.Len(t, generator.prompts, 1)
	prompt := generator.prompts[0]
	schemaAt := strings.Index(prompt, "TABLE empresa")
	historyAt := strings.Index(prompt, "user: hola\nassistant: ¿En qué te ayudo?")
	utteranceAt := strings.Index(prompt, "¿que empresas hay?")
	require.True(t, schemaAt > 0 && historyAt > schemaAt && utteranceAt > historyAt, prompt)
	assert.Contains(t, prompt, "ILIKE")
	assert.Contains(t, prompt, "LEFT JOIN")
}

func TestPlannerWrapsFailures(t *testing.T) {
	planner := NewPlanner(&scriptedGenerator{err: errors.New("timeout")})
	_, err := planner.Plan(context.Background(), "TABLE empresa\n", nil, "hola")
	assert.ErrorIs(t, err, ErrPlanningFailure)

	planner = NewPlanner(&scriptedGenerator{replies: []string{"lo siento, no puedo"}})
	_, err = planner.Plan(context.Background(), "TABLE empresa\n", nil, "hola")
	assert.ErrorIs(t, err, ErrPlanningFailure)
}

func companies(n int) rowset.ResultSet {
	result := rowset.ResultSet{Columns: []string{"nombre", "rubro"}}
	for i := 0; i < n; i++ {
		result.Rows = append(result.Rows, rowset.Row{"nombre": fmt.Sprintf("Empresa %d", i+1), "rubro": "metalurgia"})
	}
	return result
}

func TestComposeEmptyResultsSkipsModel(t *testing.T) {
	generator := &scriptedGenerator{}
	composer := NewComposer(generator, 6)

	answer, err := composer.Compose(context.Background(), ComposeRequest{Utterance: "empresas de Acme", Results: rowset.ResultSet{Columns: []string{"nombre"}}, CorrectedEntity: "ACME SA"})
	require.NoError(t, err)
	assert.Empty(t, generator.prompts)
	assert.Contains(t, answer, "No encontré datos")
	assert.Contains(t, answer, "ACME SA")
	assert.True(t, strings.HasSuffix(answer, FollowUpInvitation))
}

func TestComposeSmallResultSendsRowsAndPolishes(t *testing.T) {
	generator := &scriptedGenerator{replies: []string{"Estas son las empresas:\n* **Empresa 1** (metalurgia)\n• Empresa 2"}}
	composer := NewComposer(generator, 6)

	answer, err := composer.Compose(context.Background(), ComposeRequest{Utterance: "qué empresas hay", Results: companies(2)})
	require.NoError(t, err)

	require.Len(t, generator.prompts, 1)
	assert.Contains(t, generator.prompts[0], `"nombre":"Empresa 2"`)
	assert.Equal(t, "Estas son las empresas:\n- Empresa 1 (metalurgia)\n- Empresa 2\n\n"+FollowUpInvitation, answer)
	assert.NotContains(t, answer, "*")
}

func TestComposeAboveThresholdNeverSendsRows(t *testing.T) {
	generator := &scriptedGenerator{replies: []string{"Encontré 12 empresas. ¿Querés filtrar por rubro?"}}
	composer := NewComposer(generator, 6)

	answer, err := composer.Compose(context.Background(), ComposeRequest{Utterance: "empresas con polo en el nombre", Results: companies(12)})
	require.NoError(t, err)

	require.Len(t, generator.prompts, 1)
	assert.NotContains(t, generator.prompts[0], "Empresa 7")
	assert.Contains(t, generator.prompts[0], "12 resultados")
	assert.Equal(t, "Encontré 12 empresas. ¿Querés filtrar por rubro?", answer)
}

func TestComposeAboveThresholdFallsBackWhenModelEnumerates(t *testing.T) {
	var listing strings.Builder
	for i := 1; i <= 12; i++ {
		fmt.Fprintf(&listing, "%d. Empresa %d\n", i, i)
	}
	composer := NewComposer(&scriptedGenerator{replies: []string{listing.String()}}, 6)

	answer, err := composer.Compose(context.Background(), ComposeRequest{Utterance: "empresas", Results: companies(12)})
	require.NoError(t, err)
	assert.Equal(t, SummaryAnswer(12, false, ""), answer)
	assert.Less(t, strings.Count(answer, "\n"), 3)
}

func TestComposeTruncatedResultReportsLowerBound(t *testing.T) {
	var listing strings.Builder
	for i := 1; i <= 12; i++ {
		fmt.Fprintf(&listing, "- Empresa %d\n", i)
	}
	generator := &scriptedGenerator{replies: []string{listing.String()}}
	composer := NewComposer(generator, 6)

	results := companies(200)
	results.Truncated = true
	answer, err := composer.Compose(context.Background(), ComposeRequest{Utterance: "todas las empresas", Results: results})
	require.NoError(t, err)

	require.Len(t, generator.prompts, 1)
	assert.Contains(t, generator.prompts[0], "más de 200 resultados")
	assert.Equal(t, SummaryAnswer(200, true, ""), answer)
	assert.Contains(t, answer, "Encontré más de 200 resultados")
}

func TestComposeTruncatedBelowThresholdStillSummarizes(t *testing.T) {
	generator := &scriptedGenerator{replies: []string{"Hay más de 3 empresas. ¿Querés filtrar por rubro?"}}
	composer := NewComposer(generator, 6)

	results := companies(3)
	results.Truncated = true
	_, err := composer.Compose(context.Background(), ComposeRequest{Utterance: "empresas", Results: results})
	require.NoError(t, err)

	require.Len(t, generator.prompts, 1)
	assert.Contains(t, generator.prompts[0], "más de 3 resultados")
	assert.NotContains(t, generator.prompts[0], "Empresa 2")
}

func TestComposeFailure(t *testing.T) {
	composer := NewComposer(&scriptedGenerator{err: errors.New("quota")}, 6)
	_, err := composer.Compose(context.Background(), ComposeRequest{Utterance: "empresas", Results: companies(1)})
	assert.ErrorIs(t, err, ErrComposeFailure)

	composer = NewComposer(&scriptedGenerator{replies: []string{"***"}}, 6)
	_, err = composer.Compose(context.Background(), ComposeRequest{Utterance: "empresas", Results: companies(1)})
	assert.ErrorIs(t, err, ErrComposeFailure)
}

func TestPolishKeepsTrailingQuestion(t *testing.T) {
	assert.Equal(t, "¿Buscás otra empresa?", Polish("  ¿Buscás otra empresa?  "))
	assert.Equal(t, "Lista:\n  - anidado\n\n"+FollowUpInvitation, Polish("Lista:\n  * anidado"))
	assert.Equal(t, 6, NewComposer(nil, 0).SummaryThreshold())
}
