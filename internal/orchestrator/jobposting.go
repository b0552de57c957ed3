package orchestrator

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/autoresumefiller/autofill/internal/model"
	"github.com/autoresumefiller/autofill/internal/provider"
)

// JobPosting is the structured form of a pasted job description.
type JobPosting struct {
	Title        string          `json:"title"`
	Company      string          `json:"company"`
	Location     string          `json:"location"`
	Summary      string          `json:"summary"`
	Requirements []string        `json:"requirements"`
	Usage        *model.AIAnswer `json:"usage,omitempty"`
}

// PromptContext seeds a prompt context for the posting.
func (p JobPosting) PromptContext(profileSummary string) model.PromptContext {
	desc := p.Summary
	if len(p.Requirements) > 0 {
		desc = strings.TrimSpace(desc + "\nRequirements:\n- " + strings.Join(p.Requirements, "\n- "))
	}
	return model.PromptContext{
		ProfileSummary: profileSummary,
		JobDescription: desc,
		Company:        p.Company,
		JobTitle:       p.Title,
	}
}

var nullableString = map[string]any{"type": []any{"string", "null"}}

var jobPostingSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"title":    nullableString,
		"company":  nullableString,
		"location": nullableString,
		"summary":  nullableString,
		"requirements": map[string]any{
			"type":  []any{"array", "null"},
			"items": map[string]any{"type": "string"},
		},
	},
}

// ExtractJobPosting asks the active provider to structure a job description.
func (o *Orchestrator) ExtractJobPosting(ctx context.Context, text string) (*JobPosting, error) {
	if strings.TrimSpace(text) == "" {
		return nil, eris.New("orchestrator: empty job description")
	}

	adapter, err := o.registry.Active(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "orchestrator: resolve provider")
	}

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
	defer cancel()

	ext, err := adapter.Extract(callCtx, text, jobPostingSchema)
	if err != nil {
		zap.L().Error("orchestrator: job posting extraction failed",
			zap.String("provider", adapter.Name()),
			zap.String("kind", string(provider.KindOf(err))),
			zap.Error(err),
		)
		return nil, eris.Wrap(err, "orchestrator: extract job posting")
	}
	if ext.Answer != nil {
		o.recordUsage(ctx, "", adapter, ext.Answer)
	}

	posting := &JobPosting{
		Title:        stringField(ext.Data, "title"),
		Company:      stringField(ext.Data, "company"),
		Location:     stringField(ext.Data, "location"),
		Summary:      stringField(ext.Data, "summary"),
		Requirements: stringsField(ext.Data, "requirements"),
		Usage:        ext.Answer,
	}
	return posting, nil
}

func stringField(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return strings.TrimSpace(s)
}

func stringsField(data map[string]any, key string) []string {
	items, _ := data[key].([]any)
	var out []string
	for _, it := range items {
		if s, ok := it.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}
