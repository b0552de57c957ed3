// Package classify maps detected form fields to a purpose and decides
// whether each can be answered by lookup or must be generated.
package classify

import (
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/autoresumefiller/autofill/internal/model"
)

const (
	// MinConfidence is the score below which a field is treated as unknown.
	MinConfidence = 0.5

	// secondaryPenalty is subtracted when only the name or placeholder match.
	secondaryPenalty = 0.1

	// typeHintBonus is added when the input type agrees with the rule.
	typeHintBonus = 0.1
)

// Classifier applies an ordered rule table to field descriptors.
type Classifier struct {
	rules []Rule
}

// New creates a Classifier over rules, or DefaultRules when rules is nil.
func New(rules []Rule) *Classifier {
	if rules == nil {
		rules = DefaultRules
	}
	return &Classifier{rules: rules}
}

// Classify returns the classification for one field. It is pure: the same
// descriptor always yields the same result.
func (c *Classifier) Classify(f model.FieldDescriptor) model.Classification {
	label := model.NormalizeLabel(f.Label)
	secondary := []string{
		model.NormalizeLabel(splitCamel(f.Name)),
		model.NormalizeLabel(f.Placeholder),
	}
	inputType := strings.ToLower(strings.TrimSpace(f.InputType))

	best := -1
	bestScore := 0.0
	for i, r := range c.rules {
		score := r.score(label, secondary, inputType)
		if score > bestScore {
			best, bestScore = i, score
		}
	}

	if best < 0 || bestScore < MinConfidence {
		return model.Classification{
			Purpose:            model.PurposeUnknown,
			Template:           model.TemplateGeneric,
			RequiresGeneration: true,
			Confidence:         bestScore,
		}
	}

	r := c.rules[best]
	return model.Classification{
		Purpose:            r.Purpose,
		DataPath:           r.DataPath,
		Template:           r.Template,
		RequiresGeneration: r.RequiresGeneration,
		Confidence:         bestScore,
	}
}

// ClassifyAll classifies fields in order.
func (c *Classifier) ClassifyAll(fields []model.FieldDescriptor) []model.Classification {
	out := make([]model.Classification, len(fields))
	for i, f := range fields {
		out[i] = c.Classify(f)
		zap.L().Debug("classify: field",
			zap.String("field_id", f.ID),
			zap.String("purpose", string(out[i].Purpose)),
			zap.Float64("confidence", out[i].Confidence),
			zap.Bool("requires_generation", out[i].RequiresGeneration),
		)
	}
	return out
}

func (r Rule) score(label string, secondary []string, inputType string) float64 {
	score := 0.0
	if label != "" && r.matches(label) {
		score = r.BaseConfidence
	} else {
		for _, s := range secondary {
			if s != "" && r.matches(s) {
				score = r.BaseConfidence - secondaryPenalty
				break
			}
		}
	}
	if score == 0 {
		return 0
	}

	for _, h := range r.TypeHints {
		if h == inputType {
			score += typeHintBonus
			break
		}
	}
	if score > 1 {
		score = 1
	}
	return score
}

func (r Rule) matches(text string) bool {
	for _, p := range r.Patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// splitCamel turns "firstName" into "first Name" so attribute names
// normalize like labels.
func splitCamel(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	var prev rune
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) && unicode.IsLower(prev) {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
		prev = r
	}
	return b.String()
}
