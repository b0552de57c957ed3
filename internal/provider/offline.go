package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/autoresumefiller/autofill/internal/config"
	"github.com/autoresumefiller/autofill/internal/model"
)

const offlineModel = "offline-template"

// Offline answers from fixed templates without any network call. It is
// free and deterministic, which makes it useful for demos and dry runs.
type Offline struct {
	base
}

// NewOffline returns the template adapter.
func NewOffline(pc config.ProviderConfig, opts Options) *Offline {
	if pc.Model == "" {
		pc.Model = offlineModel
	}
	pc.RequestsPerSecond = 0
	return &Offline{base: newBase("offline", pc, opts)}
}

func newOfflineFactory(name string, pc config.ProviderConfig, opts Options) (Adapter, error) {
	o := NewOffline(pc, opts)
	o.name = name
	return o, nil
}

var offlineTemplates = map[model.Purpose]string{
	model.PurposeCoverLetter:     "I am excited to apply for this position. %s I would welcome the chance to discuss how I can contribute to the team.",
	model.PurposeWhyCompany:      "I admire the company's work and mission. %s",
	model.PurposeWhyRole:         "This role matches the work I do best. %s",
	model.PurposeStrengths:       "My main strengths are clear communication and steady delivery. %s",
	model.PurposeWeakness:        "I sometimes take on too much myself, and I have learned to delegate earlier.",
	model.PurposeExperience:      "In a recent project I took ownership of a difficult problem and saw it through to a measurable result. %s",
	model.PurposeSalary:          "I am open to a competitive salary in line with the market for this role.",
	model.PurposeAvailability:    "I can start two weeks after an offer.",
	model.PurposeAdditionalInfo:  "Thank you for considering my application.",
}

func (o *Offline) Generate(ctx context.Context, req GenerateRequest) (*model.AIAnswer, error) {
	return o.generate(ctx, req, func(ctx context.Context, modelName string, req GenerateRequest) (*completion, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		text := o.render(req)
		return &completion{
			Text:             text,
			Model:            modelName,
			PromptTokens:     countTokens(req.System) + countTokens(req.Context) + countTokens(req.Prompt),
			CompletionTokens: countTokens(text),
		}, nil
	})
}

func (o *Offline) render(req GenerateRequest) string {
	if req.JSON {
		return "{}"
	}

	background := firstSentence(req.Context)
	if background != "" {
		background = "Background: " + background
	}

	tmpl, ok := offlineTemplates[req.Purpose]
	if !ok {
		if req.Label == "" {
			return strings.TrimSpace("Please see my resume for details. " + background)
		}
		return strings.TrimSpace(fmt.Sprintf("Regarding %q: please see my resume for details. %s", req.Label, background))
	}
	if !strings.Contains(tmpl, "%s") {
		return tmpl
	}
	return strings.TrimSpace(fmt.Sprintf(tmpl, background))
}

func (o *Offline) Extract(ctx context.Context, text string, schema map[string]any) (*Extraction, error) {
	return extractWith(ctx, o, text, schema)
}

func (o *Offline) ValidateCredentials(context.Context) (bool, error) {
	return true, nil
}

func (o *Offline) ListModels(context.Context) ([]string, error) {
	return []string{o.model}, nil
}

// countTokens approximates tokens as whitespace-separated words.
func countTokens(s string) int {
	return len(strings.Fields(s))
}

func firstSentence(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if i := strings.IndexAny(s, ".\n"); i >= 0 {
		s = s[:i+1]
	}
	s = strings.TrimSpace(s)
	if !strings.HasSuffix(s, ".") {
		s += "."
	}
	return s
}
