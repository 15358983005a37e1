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

// OpenAI talks to any OpenAI-compatible /chat/completions endpoint with vision input.
type OpenAI struct {
	url    string
	apiKey string
	model  string
	temp   *float64
	do     func(*http.Request) (*http.Response, error)
}

func NewOpenAI(opts Options) (*OpenAI, error) {
	base := opts.BaseURL
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	model := opts.Model
	if model == "" {
		model = "gpt-4.1-mini"
	}
	keyEnv := opts.APIKeyEnv
	if keyEnv == "" {
		keyEnv = "OPENAI_API_KEY"
	}
	key := opts.APIKey
	if key == "" {
		key = os.Getenv(keyEnv)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	c := &OpenAI{
		url:    strings.TrimRight(base, "/") + "/chat/completions",
		apiKey: key,
		model:  model,
	}
	if v, ok := opts.ModelOptions["temperature"].(float64); ok {
		c.temp = &v
	}
	c.do = (&http.Client{Timeout: timeout}).Do
	return c, nil
}

type oaPart struct {
	Type     string      `json:"type"`
	Text     string      `json:"text,omitempty"`
	ImageURL *oaImageURL `json:"image_url,omitempty"`
}

type oaImageURL struct {
	URL string `json:"url"`
}

type oaMessage struct {
	Role    string   `json:"role"`
	Content []oaPart `json:"content"`
}

type oaJSONSchema struct {
	Name   string          `json:"name"`
	Schema json.RawMessage `json:"schema"`
	Strict bool            `json:"strict,omitempty"`
}

type oaResponseFormat struct {
	Type       string        `json:"type"`
	JSONSchema *oaJSONSchema `json:"json_schema,omitempty"`
}

type oaReq struct {
	Model          string            `json:"model"`
	Messages       []oaMessage       `json:"messages"`
	Temperature    *float64          `json:"temperature,omitempty"`
	ResponseFormat *oaResponseFormat `json:"response_format,omitempty"`
}

type oaResp struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Classify sends one clip as a data URI. Duration is the measured round trip.
func (c *OpenAI) Classify(ctx context.Context, req Request) (Response, error) {
	r := oaReq{
		Model: c.model,
		Messages: []oaMessage{{
			Role: role(req.Role),
			Content: []oaPart{
				{Type: "text", Text: req.Prompt},
				{Type: "image_url", ImageURL: &oaImageURL{URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(req.Image)}},
			},
		}},
		Temperature: c.temp,
	}
	if len(req.Schema) > 0 {
		r.ResponseFormat = &oaResponseFormat{
			Type:       "json_schema",
			JSONSchema: &oaJSONSchema{Name: "region_verdict", Schema: req.Schema, Strict: true},
		}
	}
	body, err := json.Marshal(&r)
	if err != nil {
		return Response{}, fmt.Errorf("openai encode: %w: %w", ErrBackend, err)
	}

	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("openai request: %w: %w", ErrBackend, err)
	}
	if c.apiKey != "" {
		hreq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.do(hreq)
	if err != nil {
		return Response{}, fmt.Errorf("openai: %w: %w", ErrBackend, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return Response{}, fmt.Errorf("%w: openai upstream %d: %s", ErrBackend, resp.StatusCode, strings.TrimSpace(string(slurp)))
	}

	var or oaResp
	if err := json.NewDecoder(resp.Body).Decode(&or); err != nil {
		return Response{}, fmt.Errorf("%w: openai decode: %w", ErrResponseInvalid, err)
	}
	elapsed := time.Since(start)
	if len(or.Choices) == 0 {
		return Response{}, fmt.Errorf("%w: no choices", ErrResponseInvalid)
	}

	choice, why, err := parseAnswer(or.Choices[0].Message.Content)
	if err != nil {
		return Response{}, err
	}
	return Response{Choice: choice, Why: why, Duration: elapsed}, nil
}
