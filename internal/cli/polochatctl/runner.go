package polochatctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/polo52/polochat/internal/conversation"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
	// NewLineReader opens the interactive prompt used by the chat command. Defaults to a
	// readline terminal.
	NewLineReader func(historyFile string) (LineReader, error)
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("polochatctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "polochat API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 90*time.Second), "HTTP timeout (e.g. 90s)")
	showRows := fs.Bool("rows", false, "print db_results after each chat reply")
	historyFile := fs.String("history-file", "", "readline history file for the chat command")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}
	api := &apiClient{http: client, baseURL: strings.TrimRight(*baseURL, "/"), apiKey: strings.TrimSpace(*apiKey)}

	command := strings.TrimSpace(fs.Arg(0))
	switch command {
	case "health":
		return printEndpoint(ctx, api, "/v1/health", stdout, stderr)
	case "ready":
		return printEndpoint(ctx, api, "/v1/ready", stdout, stderr)
	case "schema":
		return runSchema(ctx, api, stdout, stderr)
	case "ask":
		message := strings.TrimSpace(strings.Join(fs.Args()[1:], " "))
		if message == "" {
			_, _ = fmt.Fprintln(stderr, "ask needs a message")
			return 2
		}
		reply, err := api.chat(ctx, message, nil)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "chat failed: %v\n", err)
			return 1
		}
		printReply(stdout, stderr, reply, *showRows)
		if reply.ErrorKind != "" {
			return 1
		}
		return 0
	case "chat":
		newReader := defaults.NewLineReader
		if newReader == nil {
			newReader = newReadlineReader
		}
		reader, err := newReader(*historyFile)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "open prompt: %v\n", err)
			return 1
		}
		defer func() { _ = reader.Close() }()
		session := &session{api: api, reader: reader, stdout: stdout, stderr: stderr, showRows: *showRows}
		return session.run(ctx)
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}
}

type apiClient struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

type chatReply struct {
	TurnID          string           `json:"turn_id"`
	Reply           string           `json:"reply"`
	DBResults       []map[string]any `json:"db_results"`
	CorrectedEntity string           `json:"corrected_entity"`
	ErrorKind       string           `json:"error_kind"`
}

func (c *apiClient) chat(ctx context.Context, message string, history []conversation.Exchange) (chatReply, error) {
	payload, err := json.Marshal(map[string]any{"message": message, "history": history})
	if err != nil {
		return chatReply{}, err
	}
	code, body, err := c.do(ctx, http.MethodPost, "/v1/chat", payload)
	if err != nil {
		return chatReply{}, err
	}
	if code >= 400 {
		return chatReply{}, fmt.Errorf("http %d: %s", code, strings.TrimSpace(string(body)))
	}
	var reply chatReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return chatReply{}, fmt.Errorf("decode chat response: %w", err)
	}
	return reply, nil
}

func (c *apiClient) do(ctx context.Context, method, path string, payload []byte) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, responseBody, nil
}

func printEndpoint(ctx context.Context, api *apiClient, path string, stdout, stderr io.Writer) int {
	code, body, err := api.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}
	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(body)))
		return 1
	}
	if pretty, ok := prettyJSON(body); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(body) > 0 {
		_, _ = fmt.Fprintln(stdout, string(body))
	}
	return 0
}

func runSchema(ctx context.Context, api *apiClient, stdout, stderr io.Writer) int {
	code, body, err := api.do(ctx, http.MethodGet, "/v1/chat/schema", nil)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}
	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(body)))
		return 1
	}
	var response struct {
		TableCount int    `json:"table_count"`
		Schema     string `json:"schema"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		_, _ = fmt.Fprintf(stderr, "decode schema response: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "%d tables\n\n%s", response.TableCount, response.Schema)
	return 0
}

func printReply(stdout, stderr io.Writer, reply chatReply, showRows bool) {
	_, _ = fmt.Fprintln(stdout, reply.Reply)
	if reply.ErrorKind != "" {
		_, _ = fmt.Fprintf(stderr, "[%s turn=%s]\n", reply.ErrorKind, reply.TurnID)
	}
	if showRows && len(reply.DBResults) > 0 {
		if formatted, err := json.MarshalIndent(reply.DBResults, "", "  "); err == nil {
			_, _ = fmt.Fprintln(stdout, string(formatted))
		}
	}
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: polochatctl [flags] <command>")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health           GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready            GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  schema           GET /v1/chat/schema")
	_, _ = fmt.Fprintln(w, "  ask <message>    POST /v1/chat with a single message")
	_, _ = fmt.Fprintln(w, "  chat             interactive conversation")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
