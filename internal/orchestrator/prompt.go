package orchestrator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/autoresumefiller/autofill/internal/model"
)

// systemPrompt is the shared instruction for every generated answer.
const systemPrompt = `You are filling out a job application on behalf of the candidate described in the context.

Rules:
- Write in the first person as the candidate
- Use ONLY facts present in the candidate profile; never invent employers, degrees, dates or credentials
- Tailor the answer to the company and role when they are given
- Stay consistent with answers already given in this application
- Reply with the answer text only, without a heading, quotes or commentary`

// templateInstructions shapes the answer per template.
var templateInstructions = map[model.Template]string{
	model.TemplateCoverLetter:  "Write a cover letter of three short paragraphs: why this role, the most relevant experience with one concrete result, and a brief closing.",
	model.TemplateMotivation:   "Answer in 3-5 sentences. Connect something specific about the company or role to the candidate's experience and goals.",
	model.TemplateSelfAssess:   "Answer in 2-4 sentences with one concrete example from the profile. For a weakness, name a real one and what the candidate does about it.",
	model.TemplateStory:        "Tell one story from the profile in 4-6 sentences: situation, task, action and measurable result.",
	model.TemplateSalary:       "Answer in one sentence. Express flexibility and openness to a market-rate offer; do not state a number unless the question requires one.",
	model.TemplateAvailability: "Answer in one sentence with a realistic start date or notice period.",
	model.TemplateShortFact:    "Answer in a few words or one short sentence.",
	model.TemplateGeneric:      "Answer in 1-3 sentences.",
}

// maxTokensForTemplate returns the output budget for a template.
func maxTokensForTemplate(t model.Template, fallback int) int {
	switch t {
	case model.TemplateCoverLetter:
		return max(fallback, 800)
	case model.TemplateShortFact, model.TemplateSalary, model.TemplateAvailability:
		return min(fallback, 150)
	default:
		return fallback
	}
}

// buildContext renders the per-application context shared by every field
// of one batch.
func buildContext(pctx model.PromptContext) string {
	var sb strings.Builder
	if pctx.ProfileSummary != "" {
		fmt.Fprintf(&sb, "--- Candidate Profile ---\n%s\n", pctx.ProfileSummary)
	}
	if pctx.Company != "" || pctx.JobTitle != "" || pctx.JobDescription != "" {
		sb.WriteString("\n--- Position ---\n")
		if pctx.Company != "" {
			fmt.Fprintf(&sb, "Company: %s\n", pctx.Company)
		}
		if pctx.JobTitle != "" {
			fmt.Fprintf(&sb, "Role: %s\n", pctx.JobTitle)
		}
		if pctx.JobDescription != "" {
			fmt.Fprintf(&sb, "Description:\n%s\n", pctx.JobDescription)
		}
	}
	return strings.TrimSpace(sb.String())
}

// buildPrompt renders the field-specific instruction.
func buildPrompt(f model.FieldDescriptor, c model.Classification, prior map[string]string) string {
	var sb strings.Builder

	instruction, ok := templateInstructions[c.Template]
	if !ok {
		instruction = templateInstructions[model.TemplateGeneric]
	}
	fmt.Fprintf(&sb, "Question: %s\n", strings.TrimSpace(f.Label))
	if f.Placeholder != "" && f.Placeholder != f.Label {
		fmt.Fprintf(&sb, "Hint: %s\n", f.Placeholder)
	}
	sb.WriteString(instruction + "\n")

	if f.IsEnumerated() {
		fmt.Fprintf(&sb, "Choose exactly one of these options and reply with it verbatim: %s\n", strings.Join(f.Options, "; "))
	}
	if f.Required {
		sb.WriteString("This question is required; always give an answer.\n")
	}

	own := model.NormalizeLabel(f.Label)
	labels := make([]string, 0, len(prior))
	for label, text := range prior {
		if model.NormalizeLabel(label) != own && text != "" {
			labels = append(labels, label)
		}
	}
	if len(labels) > 0 {
		sort.Strings(labels)
		sb.WriteString("\n--- Answers Already Given ---\n")
		for _, label := range labels {
			fmt.Fprintf(&sb, "- %s: %s\n", label, prior[label])
		}
	}

	return strings.TrimSpace(sb.String())
}
