package polochatctl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/polo52/polochat/internal/conversation"
)

const (
	prompt              = "polo52> "
	maxSessionExchanges = 20
)

// LineReader is the subset of a readline instance the chat session needs.
type LineReader interface {
	Readline() (string, error)
	Close() error
}

func newReadlineReader(historyFile string) (LineReader, error) {
	instance, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     historyFile,
		AutoComplete:    newCommandCompleter(),
		InterruptPrompt: "^C",
		EOFPrompt:       ".salir",
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func newCommandCompleter() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem(".ayuda"),
		readline.PcItem(".esquema"),
		readline.PcItem(".historial"),
		readline.PcItem(".nueva"),
		readline.PcItem(".filas"),
		readline.PcItem(".salir"),
	)
}

// session keeps the conversation on the client side; the API is stateless and receives
// the exchanges with every message.
type session struct {
	api      *apiClient
	reader   LineReader
	stdout   io.Writer
	stderr   io.Writer
	showRows bool
	history  []conversation.Exchange
}

func (s *session) run(ctx context.Context) int {
	_, _ = fmt.Fprintln(s.stdout, "Asistente del Parque Industrial Polo 52. Escribe .ayuda para ver los comandos.")
	for {
		line, err := s.reader.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return 0
		}
		if err != nil {
			_, _ = fmt.Fprintf(s.stderr, "read input: %v\n", err)
			return 1
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, ".") {
			if quit := s.handleCommand(ctx, line); quit {
				return 0
			}
			continue
		}

		reply, err := s.api.chat(ctx, line, s.history)
		if err != nil {
			_, _ = fmt.Fprintf(s.stderr, "chat failed: %v\n", err)
			if ctx.Err() != nil {
				return 1
			}
			continue
		}
		printReply(s.stdout, s.stderr, reply, s.showRows)
		s.remember(line, reply.Reply)
	}
}

func (s *session) handleCommand(ctx context.Context, line string) bool {
	command := strings.ToLower(strings.Fields(line)[0])
	switch command {
	case ".salir", ".quit", ".exit":
		return true
	case ".ayuda", ".help":
		writeSessionHelp(s.stdout)
	case ".esquema", ".schema":
		_ = runSchema(ctx, s.api, s.stdout, s.stderr)
	case ".historial":
		for _, exchange := range s.history {
			_, _ = fmt.Fprintf(s.stdout, "tú: %s\nasistente: %s\n", exchange.User, exchange.Assistant)
		}
	case ".nueva":
		s.history = nil
		_, _ = fmt.Fprintln(s.stdout, "Conversación reiniciada.")
	case ".filas":
		s.showRows = !s.showRows
		_, _ = fmt.Fprintf(s.stdout, "Mostrar filas: %v\n", s.showRows)
	default:
		_, _ = fmt.Fprintf(s.stderr, "comando desconocido %s (usa .ayuda)\n", command)
	}
	return false
}

func (s *session) remember(user, assistant string) {
	s.history = append(s.history, conversation.Exchange{User: user, Assistant: assistant})
	if len(s.history) > maxSessionExchanges {
		s.history = append([]conversation.Exchange(nil), s.history[len(s.history)-maxSessionExchanges:]...)
	}
}

func writeSessionHelp(w io.Writer) {
	_, _ = fmt.Fprintln(w, `
Comandos:
  .ayuda       Muestra esta ayuda
  .esquema     Muestra las tablas que ve el asistente
  .historial   Muestra la conversación actual
  .nueva       Empieza una conversación nueva
  .filas       Activa o desactiva la impresión de resultados
  .salir       Termina la sesión`)
}
