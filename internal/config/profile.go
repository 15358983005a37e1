package config

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Message is the chat message the prompt is delivered in.
type Message struct {
	Role    string `json:"role" yaml:"role"`
	Content string `json:"content,omitempty" yaml:"content,omitempty"`
}

// Profile is the classification profile: the rule list and the prompt pieces.
type Profile struct {
	Instruct      string         `json:"instruct" yaml:"instruct"`
	ChoicePhrase  string         `json:"choice_phrase" yaml:"choice_phrase"`
	Rules         []string       `json:"nsfw_rule" yaml:"nsfw_rule"`
	OutputFormat0 string         `json:"output_format_0" yaml:"output_format_0"`
	OutputFormat1 string         `json:"output_format_1" yaml:"output_format_1"`
	Pretrained    string         `json:"pretrained" yaml:"pretrained"`
	Option        map[string]any `json:"option,omitempty" yaml:"option,omitempty"`
	MsgTemplate   Message        `json:"msg_template" yaml:"msg_template"`
}

// LoadProfile reads a profile from disk. YAML is picked by extension;
// otherwise the content is plain JSON or base64-encoded JSON.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	p, err := DecodeProfile(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// DecodeProfile parses profile bytes; ext is a file extension hint such as ".yaml".
func DecodeProfile(data []byte, ext string) (*Profile, error) {
	var p Profile

	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("%w: yaml: %v", ErrInvalidConfig, err)
		}
		return &p, nil
	}

	trimmed := bytes.TrimSpace(data)
	if !bytes.HasPrefix(trimmed, []byte("{")) {
		decoded, err := base64.StdEncoding.DecodeString(string(trimmed))
		if err != nil {
			return nil, fmt.Errorf("%w: neither JSON nor base64: %v", ErrInvalidConfig, err)
		}
		trimmed = decoded
	}

	if err := json.Unmarshal(trimmed, &p); err != nil {
		return nil, fmt.Errorf("%w: json: %v", ErrInvalidConfig, err)
	}
	return &p, nil
}

// EncodeConf turns a JSON profile into the base64 .conf form.
func EncodeConf(raw []byte) ([]byte, error) {
	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: json: %v", ErrInvalidConfig, err)
	}
	out := make([]byte, base64.StdEncoding.EncodedLen(len(raw)))
	base64.StdEncoding.Encode(out, raw)
	return out, nil
}

// RenderPrompt builds the instruction text. Each rule is rendered through
// choice_phrase with (n, rule, n), the lines are joined with newlines and
// substituted into instruct together with the output format.
func (p *Profile) RenderPrompt(keep bool) (string, error) {
	lines := make([]string, 0, len(p.Rules))
	for i, rule := range p.Rules {
		n := strconv.Itoa(i + 1)
		line, err := Format(p.ChoicePhrase, n, rule, n)
		if err != nil {
			return "", fmt.Errorf("choice_phrase: %w", err)
		}
		lines = append(lines, line)
	}

	format := p.OutputFormat0
	if keep {
		format = p.OutputFormat1
	}

	prompt, err := Format(p.Instruct, strings.Join(lines, "\n"), format)
	if err != nil {
		return "", fmt.Errorf("instruct: %w", err)
	}
	return prompt, nil
}

// Choices bounds the accepted answers: anything outside [0, len(rules)) counts as safe.
func (p *Profile) Choices() int {
	return len(p.Rules)
}
