package classifier

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestOllamaClassify(t *testing.T) {
	var got ollamaReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message":{"role":"assistant","content":"{\"choice\": 2, \"why\": \"exposed\"}"},"eval_duration":1500000,"done":true}`))
	}))
	defer srv.Close()

	c, err := NewOllama(Options{BaseURL: srv.URL, Model: "llava", ModelOptions: map[string]any{"temperature": 0.0}})
	if err != nil {
		t.Fatalf("NewOllama failed: %v", err)
	}

	png := []byte{0x89, 'P', 'N', 'G'}
	resp, err := c.Classify(context.Background(), Request{Prompt: "rules", Image: png, Schema: SchemaChoiceWhy})
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}

	if resp.Choice != 2 || resp.Why != "exposed" {
		t.Errorf("Unexpected answer %+v", resp)
	}
	if resp.Duration != 1500*time.Microsecond {
		t.Errorf("Expected 1.5ms, got %v", resp.Duration)
	}

	if got.Model != "llava" || got.Stream {
		t.Errorf("Unexpected request header fields: %+v", got)
	}
	if len(got.Messages) != 1 || got.Messages[0].Role != "user" || got.Messages[0].Content != "rules" {
		t.Fatalf("Unexpected messages: %+v", got.Messages)
	}
	if len(got.Messages[0].Images) != 1 || got.Messages[0].Images[0] != base64.StdEncoding.EncodeToString(png) {
		t.Errorf("Image not sent as base64")
	}
	if string(got.Format) != string(SchemaChoiceWhy) {
		t.Errorf("Schema not forwarded: %s", got.Format)
	}
	if _, ok := got.Options["temperature"]; !ok {
		t.Errorf("Model options not forwarded: %v", got.Options)
	}
}

func TestOllamaErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		invalid bool
	}{
		{"upstream 500", http.StatusInternalServerError, `model crashed`, false},
		{"error field", http.StatusOK, `{"error":"model not found"}`, false},
		{"not json content", http.StatusOK, `{"message":{"content":"I cannot answer"}}`, true},
		{"missing choice", http.StatusOK, `{"message":{"content":"{\"why\":\"x\"}"}}`, true},
		{"empty content", http.StatusOK, `{"message":{"content":""}}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c, _ := NewOllama(Options{BaseURL: srv.URL, Model: "m"})
			_, err := c.Classify(context.Background(), Request{Prompt: "p", Schema: SchemaChoice})
			if !errors.Is(err, ErrBackend) {
				t.Fatalf("Expected ErrBackend, got %v", err)
			}
			if tt.invalid && !errors.Is(err, ErrResponseInvalid) {
				t.Errorf("Expected ErrResponseInvalid, got %v", err)
			}
		})
	}
}

func TestOllamaUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, _ := NewOllama(Options{BaseURL: url, Model: "m"})
	_, err := c.Classify(context.Background(), Request{Prompt: "p"})
	if !errors.Is(err, ErrBackend) {
		t.Errorf("Expected ErrBackend for a closed server, got %v", err)
	}
}

func TestOllamaRequiresModel(t *testing.T) {
	if _, err := NewOllama(Options{BaseURL: "http://localhost:1"}); err == nil {
		t.Error("Expected an error without a model")
	}
}

func TestOpenAIClassify(t *testing.T) {
	var got oaReq
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"choices":[{"message":{"content":"{\"choice\":1}"}}]}`))
	}))
	defer srv.Close()

	c, err := NewOpenAI(Options{BaseURL: srv.URL + "/v1", APIKey: "sk-test", Model: "gpt-test"})
	if err != nil {
		t.Fatalf("NewOpenAI failed: %v", err)
	}

	resp, err := c.Classify(context.Background(), Request{Prompt: "rules", Role: "system", Image: []byte("img"), Schema: SchemaChoice})
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if resp.Choice != 1 || resp.Why != "" {
		t.Errorf("Unexpected answer %+v", resp)
	}
	if resp.Duration <= 0 {
		t.Errorf("Expected a measured duration, got %v", resp.Duration)
	}

	if auth != "Bearer sk-test" {
		t.Errorf("Unexpected auth header %q", auth)
	}
	if got.Model != "gpt-test" || len(got.Messages) != 1 || got.Messages[0].Role != "system" {
		t.Fatalf("Unexpected request %+v", got)
	}
	parts := got.Messages[0].Content
	if len(parts) != 2 || parts[0].Text != "rules" || parts[1].ImageURL == nil {
		t.Fatalf("Unexpected content parts %+v", parts)
	}
	if parts[1].ImageURL.URL != "data:image/png;base64,"+base64.StdEncoding.EncodeToString([]byte("img")) {
		t.Errorf("Unexpected data URI %q", parts[1].ImageURL.URL)
	}
	if got.ResponseFormat == nil || got.ResponseFormat.Type != "json_schema" || !got.ResponseFormat.JSONSchema.Strict {
		t.Errorf("Expected strict json_schema response format, got %+v", got.ResponseFormat)
	}
}

func TestOpenAINoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c, _ := NewOpenAI(Options{BaseURL: srv.URL})
	_, err := c.Classify(context.Background(), Request{Prompt: "p"})
	if !errors.Is(err, ErrResponseInvalid) {
		t.Errorf("Expected ErrResponseInvalid, got %v", err)
	}
}

func TestDecodeErrorKeepsCause(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":{"content":`))
	}))
	defer srv.Close()

	ollama, _ := NewOllama(Options{BaseURL: srv.URL, Model: "m"})
	openai, _ := NewOpenAI(Options{BaseURL: srv.URL})

	for name, c := range map[string]Backend{"ollama": ollama, "openai": openai} {
		_, err := c.Classify(context.Background(), Request{Prompt: "p"})
		if !errors.Is(err, ErrResponseInvalid) {
			t.Errorf("%s: expected ErrResponseInvalid, got %v", name, err)
		}
		if !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Errorf("%s: expected the decoder error to be kept, got %v", name, err)
		}
	}
}

func TestMockScript(t *testing.T) {
	m := NewMock(Options{Script: []int{0, 4}, Why: "scripted"})

	want := []int{0, 4, 0, 4}
	for i, w := range want {
		resp, err := m.Classify(context.Background(), Request{Prompt: "p"})
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if resp.Choice != w || resp.Why != "scripted" {
			t.Errorf("call %d: expected %d, got %+v", i, w, resp)
		}
	}
	if m.Calls() != 4 {
		t.Errorf("Expected 4 calls, got %d", m.Calls())
	}
}

func TestNewRegistry(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			b, err := New(name, Options{Model: "m", BaseURL: "http://127.0.0.1:1"})
			if err != nil || b == nil {
				t.Errorf("New(%q) failed: %v", name, err)
			}
		})
	}

	if _, err := New("bogus", Options{}); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("Expected ErrUnknownBackend, got %v", err)
	}
}

func TestSchemaFor(t *testing.T) {
	var s struct {
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(SchemaFor(true), &s); err != nil {
		t.Fatalf("schema is not valid JSON: %v", err)
	}
	if len(s.Required) != 2 {
		t.Errorf("Expected choice and why to be required, got %v", s.Required)
	}
	if err := json.Unmarshal(SchemaFor(false), &s); err != nil || len(s.Required) != 1 {
		t.Errorf("Expected only choice to be required, got %v (%v)", s.Required, err)
	}
}
