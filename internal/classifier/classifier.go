package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Minimal error taxonomy for backends.
var (
	ErrBackend         = errors.New("classification backend failed")
	ErrResponseInvalid = fmt.Errorf("%w: response invalid", ErrBackend)
	ErrUnknownBackend  = errors.New("unknown backend")
)

// Request is a single region submitted for classification.
type Request struct {
	Prompt string
	Role   string // chat role of the message; "user" when empty
	Image  []byte // PNG encoded clip
	Schema json.RawMessage
}

// Response is the parsed structured answer of a backend.
type Response struct {
	Choice   int
	Why      string
	Duration time.Duration
}

// Backend classifies one clip per call. Calls are synchronous and must honour ctx.
type Backend interface {
	Classify(ctx context.Context, req Request) (Response, error)
}

// Structured-output schemas: with or without a rationale field.
var (
	SchemaChoice = json.RawMessage(`{"type":"object","title":"RegionVerdict","properties":{"choice":{"type":"integer","title":"Choice"}},"required":["choice"],"additionalProperties":false}`)

	SchemaChoiceWhy = json.RawMessage(`{"type":"object","title":"RegionVerdictWhy","properties":{"choice":{"type":"integer","title":"Choice"},"why":{"type":"string","title":"Why"}},"required":["choice","why"],"additionalProperties":false}`)
)

// SchemaFor picks the schema matching whether rationales are captured.
func SchemaFor(withWhy bool) json.RawMessage {
	if withWhy {
		return SchemaChoiceWhy
	}
	return SchemaChoice
}

type answer struct {
	Choice *int   `json:"choice"`
	Why    string `json:"why"`
}

// parseAnswer decodes the model's JSON content.
func parseAnswer(content string) (int, string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return 0, "", fmt.Errorf("%w: empty content", ErrResponseInvalid)
	}
	var a answer
	if err := json.Unmarshal([]byte(content), &a); err != nil {
		return 0, "", fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	if a.Choice == nil {
		return 0, "", fmt.Errorf("%w: missing choice", ErrResponseInvalid)
	}
	return *a.Choice, a.Why, nil
}

func role(r string) string {
	if strings.TrimSpace(r) == "" {
		return "user"
	}
	return r
}
