package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// PromptContext is everything besides the field itself that shapes a
// generated answer.
type PromptContext struct {
	ProfileSummary string            `json:"profile_summary"`
	JobDescription string            `json:"job_description"`
	Company        string            `json:"company,omitempty"`
	JobTitle       string            `json:"job_title,omitempty"`
	PriorAnswers   map[string]string `json:"prior_answers,omitempty"` // normalized label -> text
}

// WithPriorAnswers returns a copy whose prior answers are the union of c's
// and extra, with extra winning on conflicts. Keys are normalized.
func (c PromptContext) WithPriorAnswers(extra map[string]string) PromptContext {
	merged := make(map[string]string, len(c.PriorAnswers)+len(extra))
	for k, v := range c.PriorAnswers {
		merged[NormalizeLabel(k)] = v
	}
	for k, v := range extra {
		merged[NormalizeLabel(k)] = v
	}
	c.PriorAnswers = merged
	return c
}

// Fingerprint returns a stable digest of the context as seen by the field
// with the given label. The field's own prior answer is excluded so a
// regenerated answer does not change its own key.
func (c PromptContext) Fingerprint(label string) string {
	own := NormalizeLabel(label)
	prior := make(map[string]string, len(c.PriorAnswers))
	for k, v := range c.PriorAnswers {
		nk := NormalizeLabel(k)
		if nk == own || v == "" {
			continue
		}
		prior[nk] = v
	}

	// encoding/json writes map keys sorted, which makes the output canonical.
	data, _ := json.Marshal(struct {
		Profile string            `json:"p"`
		Job     string            `json:"j"`
		Company string            `json:"c"`
		Title   string            `json:"t"`
		Prior   map[string]string `json:"a"`
	}{c.ProfileSummary, c.JobDescription, c.Company, c.JobTitle, prior})

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
