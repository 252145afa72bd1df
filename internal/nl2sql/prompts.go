package nl2sql

import (
	"fmt"
	"strings"

	"github.com/polo52/polochat/internal/conversation"
)

const persona = "Eres POLO, el asistente virtual del Parque Industrial Polo 52. " +
	"Ayudas al personal administrativo a consultar la base de datos del parque " +
	"(empresas, usuarios, vehículos, lotes, servicios y contactos)."

const plannerInstructions = persona + `

Tu tarea es traducir la pregunta del usuario a UNA consulta SQL de solo lectura sobre el esquema que sigue.

Responde ÚNICAMENTE con un objeto JSON con exactamente estas claves:
{"needs_more_info": false, "sql_query": "SELECT ...", "corrected_entity": "", "question": ""}

Reglas:
- sql_query debe ser una sola sentencia SELECT. Nunca INSERT, UPDATE, DELETE, DDL ni varias sentencias.
- Usa solo tablas y columnas que aparecen en el esquema.
- Para filtrar por texto usa coincidencia parcial sin distinguir mayúsculas: columna ILIKE '%valor%'.
- Nunca uses ILIKE sobre columnas numéricas, de fecha ni identificadores.
- Cuando la pregunta involucre tablas relacionadas, une por las claves foráneas con LEFT JOIN.
- No selecciones contraseñas, tokens ni números de CUIL/CUIT/DNI.
- Si el usuario escribió mal el nombre de una entidad, usa el nombre corregido y ponlo en corrected_entity.
- Usa needs_more_info=true solo si ninguna tabla ni columna del esquema se relaciona con la pregunta; en ese caso deja sql_query vacío y escribe en question una pregunta breve en español para el usuario.
- Usa el historial para resolver referencias como "esa empresa" o "y sus vehículos".`

// BuildPlannerPrompt assembles instructions, schema, history and the normalized utterance
// in that order.
func BuildPlannerPrompt(schemaText string, history conversation.History, utterance string) string {
	var b strings.Builder
	b.WriteString(plannerInstructions)
	b.WriteString("\n\nEsquema:\n")
	b.WriteString(strings.TrimRight(schemaText, "\n"))
	b.WriteString("\n\nHistorial:\n")
	if len(history) == 0 {
		b.WriteString("(sin historial)\n")
	} else {
		b.WriteString(history.Render())
	}
	b.WriteString("\nPregunta:\n")
	b.WriteString(NormalizeUtterance(utterance))
	b.WriteString("\n")
	return b.String()
}

const composerRules = `Reglas de respuesta:
- Responde en español, en tono claro y profesional.
- Usa solo los datos provistos; no inventes empresas, personas ni valores.
- No menciones SQL, tablas, columnas técnicas ni detalles internos.
- No uses negritas ni asteriscos. Para listas usa líneas que empiecen con "- ".
- Si se corrigió el nombre de una entidad, indícalo al comienzo de la respuesta.`

func buildAnswerPrompt(utterance string, history conversation.History, rowsJSON string, correctedEntity string) string {
	var b strings.Builder
	b.WriteString(persona)
	b.WriteString("\n\n")
	b.WriteString(composerRules)
	if correctedEntity != "" {
		fmt.Fprintf(&b, "\n\nEntidad corregida: %s", correctedEntity)
	}
	if len(history) > 0 {
		b.WriteString("\n\nHistorial:\n")
		b.WriteString(history.Render())
	}
	b.WriteString("\n\nDatos (JSON):\n")
	b.WriteString(rowsJSON)
	b.WriteString("\n\nPregunta del usuario:\n")
	b.WriteString(strings.TrimSpace(utterance))
	b.WriteString("\n")
	return b.String()
}

func buildSummaryPrompt(utterance string, rowCount int, truncated bool, columns []string, correctedEntity string) string {
	var b strings.Builder
	b.WriteString(persona)
	b.WriteString("\n\n")
	b.WriteString(composerRules)
	fmt.Fprintf(&b, "\n\nLa consulta devolvió %s con los campos: %s.", resultCount(rowCount, truncated), strings.Join(columns, ", "))
	if truncated {
		b.WriteString("\nEl total exacto no se conoce: no inventes una cifra precisa y di que son más de esa cantidad.")
	}
	b.WriteString("\nNo listes los resultados. Informa la cantidad encontrada y pide al usuario un criterio más específico para acotar la búsqueda (por ejemplo rubro, nombre o fecha).")
	if correctedEntity != "" {
		fmt.Fprintf(&b, "\nEntidad corregida: %s", correctedEntity)
	}
	b.WriteString("\n\nPregunta del usuario:\n")
	b.WriteString(strings.TrimSpace(utterance))
	b.WriteString("\n")
	return b.String()
}
