package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/autoresumefiller/autofill/internal/model"
)

const extractionSystemPrompt = `You extract structured data from text. Reply with a single JSON object that conforms to the JSON schema you are given. Do not add commentary or code fences. Use null for values the text does not contain.`

const extractionMaxTokens = 1024

func extractionRequest(text string, schema map[string]any) (GenerateRequest, error) {
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return GenerateRequest{}, eris.Wrap(err, "provider: marshal extraction schema")
	}
	return GenerateRequest{
		System:    extractionSystemPrompt,
		Prompt:    fmt.Sprintf("JSON schema:\n%s\n\nText:\n%s", schemaJSON, text),
		MaxTokens: extractionMaxTokens,
		JSON:      true,
	}, nil
}

// extractWith runs a structured extraction through any Adapter's Generate.
func extractWith(ctx context.Context, a Adapter, text string, schema map[string]any) (*Extraction, error) {
	req, err := extractionRequest(text, schema)
	if err != nil {
		return nil, err
	}

	answer, err := a.Generate(ctx, req)
	if err != nil {
		return nil, err
	}

	data, err := ExtractJSON(answer.Text, schema)
	if err != nil {
		return nil, &Error{Kind: model.ErrProvider, Provider: a.Name(), Model: answer.ModelName, Err: err}
	}
	return &Extraction{Data: data, Answer: answer}, nil
}

// ExtractJSON pulls the first JSON object out of model output and validates
// it against schema. Code fences and surrounding prose are tolerated.
func ExtractJSON(text string, schema map[string]any) (map[string]any, error) {
	raw := stripFences(text)
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return nil, eris.New("extract: no JSON object in response")
	}
	raw = raw[start : end+1]

	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, eris.Wrap(err, "extract: decode response")
	}

	if len(schema) > 0 {
		compiled, err := compileSchema(schema)
		if err != nil {
			return nil, err
		}
		if err := compiled.Validate(doc); err != nil {
			return nil, eris.Wrap(err, "extract: response does not match schema")
		}
	}

	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, eris.New("extract: response is not an object")
	}
	return obj, nil
}

func compileSchema(schema map[string]any) (*jsonschema.Schema, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, eris.Wrap(err, "extract: marshal schema")
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("extraction.json", bytes.NewReader(data)); err != nil {
		return nil, eris.Wrap(err, "extract: add schema")
	}
	compiled, err := compiler.Compile("extraction.json")
	if err != nil {
		return nil, eris.Wrap(err, "extract: compile schema")
	}
	return compiled, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSuffix(strings.TrimSpace(s), "```")
}
