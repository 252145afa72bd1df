package chat

import (
	"errors"

	"github.com/polo52/polochat/internal/nl2sql"
	"github.com/polo52/polochat/internal/schema"
	"github.com/polo52/polochat/internal/sqlguard"
)

type ErrorKind string

const (
	ErrorSchemaUnavailable    ErrorKind = "schema_unavailable"
	ErrorPlanningFailure      ErrorKind = "planning_failure"
	ErrorQueryExecutionFailed ErrorKind = "query_execution_failed"
	ErrorComposeFailure       ErrorKind = "compose_failure"
)

var apologies = map[ErrorKind]string{
	ErrorSchemaUnavailable:    "Lo siento, en este momento no puedo acceder a la información del parque. Intenta nuevamente en unos minutos.",
	ErrorPlanningFailure:      "Lo siento, no pude interpretar tu consulta. ¿Podrías reformularla con otras palabras?",
	ErrorQueryExecutionFailed: "Lo siento, tuve un problema al consultar la base de datos. ¿Podrías reformular la pregunta o ser más específico?",
	ErrorComposeFailure:       "Encontré resultados para tu consulta pero no pude redactar la respuesta. ¿Quieres que lo intente de nuevo?",
}

// Apology is the fixed user-facing message for kind. It never contains error details.
func (k ErrorKind) Apology() string {
	if message, ok := apologies[k]; ok {
		return message
	}
	return "Lo siento, ocurrió un error inesperado. ¿Puedo ayudarte con otra consulta?"
}

// classify maps a pipeline error onto the kind the caller sees. fallback is used for
// errors that carry no known sentinel.
func classify(err error, fallback ErrorKind) ErrorKind {
	switch {
	case errors.Is(err, schema.ErrSchemaUnavailable):
		return ErrorSchemaUnavailable
	case errors.Is(err, nl2sql.ErrPlanningFailure):
		return ErrorPlanningFailure
	case errors.Is(err, sqlguard.ErrRejected), errors.Is(err, sqlguard.ErrExecution):
		return ErrorQueryExecutionFailed
	case errors.Is(err, nl2sql.ErrComposeFailure):
		return ErrorComposeFailure
	default:
		return fallback
	}
}
