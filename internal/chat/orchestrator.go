package chat

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/polo52/polochat/internal/conversation"
	"github.com/polo52/polochat/internal/nl2sql"
	"github.com/polo52/polochat/internal/observability"
	"github.com/polo52/polochat/internal/rowset"
	"github.com/polo52/polochat/internal/schema"
)

type State string

const (
	StateStart        State = "start"
	StateSchemaLoaded State = "schema_loaded"
	StatePlanned      State = "planned"
	StateClarifying   State = "clarifying"
	StateExecuted     State = "executed"
	StateComposed     State = "composed"
	StateDone         State = "done"
	StateErrored      State = "errored"
)

const emptyMessagePrompt = "¡Hola! Soy POLO, el asistente del Parque Industrial Polo 52. ¿Qué te gustaría consultar sobre las empresas del parque?"

type SchemaDescriber interface {
	Describe(ctx context.Context) (schema.Description, error)
}

type QueryPlanner interface {
	Plan(ctx context.Context, schemaText string, history conversation.History, utterance string) (nl2sql.Plan, error)
}

type QueryExecutor interface {
	Execute(ctx context.Context, query string) (rowset.ResultSet, error)
}

type AnswerComposer interface {
	Compose(ctx context.Context, req nl2sql.ComposeRequest) (string, error)
}

type Request struct {
	Message string
	History conversation.History
}

// Outcome is the result of one turn. Answer is always user-presentable. Rows are the
// unredacted query results; callers that expose them must redact first.
type Outcome struct {
	TurnID          string
	Answer          string
	Rows            rowset.ResultSet
	CorrectedEntity string
	State           State
	Path            []State
	Err             *ErrorKind
}

func (o Outcome) Failed() bool {
	return o.Err != nil
}

type Options struct {
	Logger          *slog.Logger
	Redactor        *Redactor
	MaxHistoryTurns int
}

type Orchestrator struct {
	describer       SchemaDescriber
	planner         QueryPlanner
	executor        QueryExecutor
	composer        AnswerComposer
	redactor        *Redactor
	logger          *slog.Logger
	maxHistoryTurns int
}

func NewOrchestrator(describer SchemaDescriber, planner QueryPlanner, executor QueryExecutor, composer AnswerComposer, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	redactor := opts.Redactor
	if redactor == nil {
		redactor = NewRedactor()
	}
	return &Orchestrator{
		describer:       describer,
		planner:         planner,
		executor:        executor,
		composer:        composer,
		redactor:        redactor,
		logger:          logger,
		maxHistoryTurns: opts.MaxHistoryTurns,
	}
}

func (o *Orchestrator) Redactor() *Redactor {
	return o.redactor
}

// HandleTurn runs one utterance through schema, plan, guarded query and composition.
// It never returns an error: failures become a fixed apology and Err names the kind.
func (o *Orchestrator) HandleTurn(ctx context.Context, req Request) Outcome {
	turnID := uuid.NewString()
	ctx = observability.ContextWithTurnID(ctx, turnID)
	logger := observability.LoggerFromContext(ctx, o.logger)
	started := time.Now()

	path := []State{StateStart}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		observability.ObserveChatTurn("empty_message")
		return Outcome{TurnID: turnID, Answer: emptyMessagePrompt, State: StateClarifying, Path: append(path, StateClarifying)}
	}
	history := req.History.Last(o.maxHistoryTurns)

	stageStart := time.Now()
	description, err := o.describer.Describe(ctx)
	observability.ObserveChatStage("schema", time.Since(stageStart))
	if err != nil {
		return o.fail(ctx, logger, Outcome{TurnID: turnID, Path: path}, "schema", classify(err, ErrorSchemaUnavailable), err)
	}

	path = append(path, StateSchemaLoaded)

	stageStart = time.Now()
	plan, err := o.planner.Plan(ctx, description.Render(), history, message)
	observability.ObserveChatStage("plan", time.Since(stageStart))
	if err != nil {
		return o.fail(ctx, logger, Outcome{TurnID: turnID, Path: path}, "plan", classify(err, ErrorPlanningFailure), err)
	}

	path = append(path, StatePlanned)

	if plan.NeedsClarification {
		observability.ObserveChatTurn("clarification")
		logger.InfoContext(ctx, "chat_turn_clarification",
			slog.String("question", plan.ClarificationQuestion),
			slog.Duration("duration", time.Since(started)),
		)
		return Outcome{
			TurnID:          turnID,
			Answer:          plan.ClarificationQuestion,
			CorrectedEntity: plan.CorrectedEntity,
			State:           StateClarifying,
			Path:            append(path, StateClarifying),
		}
	}

	stageStart = time.Now()
	results, err := o.executor.Execute(ctx, plan.SQL)
	observability.ObserveChatStage("execute", time.Since(stageStart))
	if err != nil {
		logger = logger.With(slog.String("sql", plan.SQL))
		return o.fail(ctx, logger, Outcome{TurnID: turnID, CorrectedEntity: plan.CorrectedEntity, Path: path}, "execute", classify(err, ErrorQueryExecutionFailed), err)
	}

	path = append(path, StateExecuted)

	stageStart = time.Now()
	answer, err := o.composer.Compose(ctx, nl2sql.ComposeRequest{
		Utterance:       message,
		History:         history,
		Results:         o.redactor.Apply(results),
		CorrectedEntity: plan.CorrectedEntity,
	})
	observability.ObserveChatStage("compose", time.Since(stageStart))
	if err != nil {
		partial := Outcome{TurnID: turnID, Rows: results, CorrectedEntity: plan.CorrectedEntity, Path: path}
		return o.fail(ctx, logger, partial, "compose", classify(err, ErrorComposeFailure), err)
	}

	path = append(path, StateComposed, StateDone)

	observability.ObserveChatTurn("answered")
	logger.InfoContext(ctx, "chat_turn_completed",
		slog.Int("rows", results.Len()),
		slog.String("corrected_entity", plan.CorrectedEntity),
		slog.Duration("duration", time.Since(started)),
	)
	return Outcome{
		TurnID:          turnID,
		Answer:          answer,
		Rows:            results,
		CorrectedEntity: plan.CorrectedEntity,
		State:           StateDone,
		Path:            path,
	}
}

func (o *Orchestrator) fail(ctx context.Context, logger *slog.Logger, outcome Outcome, stage string, kind ErrorKind, err error) Outcome {
	observability.ObserveChatTurn(string(kind))
	attrs := []any{
		slog.String("stage", stage),
		slog.String("error_kind", string(kind)),
		slog.String("error", err.Error()),
	}
	if ctx.Err() != nil {
		logger.WarnContext(ctx, "chat_turn_cancelled", attrs...)
	} else {
		logger.ErrorContext(ctx, "chat_turn_failed", attrs...)
	}

	outcome.Answer = kind.Apology()
	outcome.State = StateErrored
	outcome.Path = append(outcome.Path, StateErrored)
	outcome.Err = &kind
	return outcome
}
