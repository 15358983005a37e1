package classifier

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const defaultOllamaURL = "http://localhost:11434"

// Ollama talks to a local Ollama server through /api/chat.
type Ollama struct {
	url     string
	model   string
	options map[string]any
	do      func(*http.Request) (*http.Response, error)
}

// NewOllama builds a client; the base URL falls back to $OLLAMA_HOST, then localhost.
func NewOllama(opts Options) (*Ollama, error) {
	if strings.TrimSpace(opts.Model) == "" {
		return nil, fmt.Errorf("ollama: model is required")
	}
	base := opts.BaseURL
	if base == "" {
		base = os.Getenv("OLLAMA_HOST")
	}
	if base == "" {
		base = defaultOllamaURL
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	hc := &http.Client{Timeout: timeout}
	return &Ollama{
		url:     strings.TrimRight(base, "/") + "/api/chat",
		model:   opts.Model,
		options: opts.ModelOptions,
		do:      hc.Do,
	}, nil
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaReq struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   json.RawMessage `json:"format,omitempty"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaResp struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	EvalDuration int64  `json:"eval_duration"` // nanoseconds
	Error        string `json:"error"`
}

// Classify sends one clip and parses the structured answer.
func (c *Ollama) Classify(ctx context.Context, req Request) (Response, error) {
	body, err := json.Marshal(&ollamaReq{
		Model: c.model,
		Messages: []ollamaMessage{{
			Role:    role(req.Role),
			Content: req.Prompt,
			Images:  []string{base64.StdEncoding.EncodeToString(req.Image)},
		}},
		Stream:  false,
		Format:  req.Schema,
		Options: c.options,
	})
	if err != nil {
		return Response{}, fmt.Errorf("ollama encode: %w: %w", ErrBackend, err)
	}

	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("ollama request: %w: %w", ErrBackend, err)
	}
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set("Accept", "application/json")

	resp, err := c.do(hreq)
	if err != nil {
		return Response{}, fmt.Errorf("ollama: %w: %w", ErrBackend, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return Response{}, fmt.Errorf("%w: ollama upstream %d: %s", ErrBackend, resp.StatusCode, strings.TrimSpace(string(slurp)))
	}

	var or ollamaResp
	if err := json.NewDecoder(resp.Body).Decode(&or); err != nil {
		return Response{}, fmt.Errorf("%w: ollama decode: %w", ErrResponseInvalid, err)
	}
	if or.Error != "" {
		return Response{}, fmt.Errorf("%w: ollama: %s", ErrBackend, or.Error)
	}

	choice, why, err := parseAnswer(or.Message.Content)
	if err != nil {
		return Response{}, err
	}
	return Response{
		Choice:   choice,
		Why:      why,
		Duration: time.Duration(or.EvalDuration),
	}, nil
}
