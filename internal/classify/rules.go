package classify

import (
	"regexp"

	"github.com/autoresumefiller/autofill/internal/model"
)

// Rule tags fields whose label, name or placeholder match one of its
// patterns. Rules form a flat ordered list; on equal scores the earlier
// rule wins, so long-form questions sit ahead of the short facts they
// might mention ("Why do you want to join our company?" is not a company
// name field).
type Rule struct {
	Purpose            model.Purpose
	Patterns           []*regexp.Regexp
	DataPath           string
	Template           model.Template
	BaseConfidence     float64
	RequiresGeneration bool
	TypeHints          []string
}

func re(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

// DefaultRules is the built-in rule table. Patterns match normalized text
// (lowercase words separated by single spaces).
var DefaultRules = []Rule{
	// Long-form, generated.
	{
		Purpose:  model.PurposeCoverLetter,
		Patterns: re(`\bcover letter\b`, `\bmotivation(al)? letter\b`, `\bletter of (interest|intent)\b`),
		Template: model.TemplateCoverLetter, BaseConfidence: 0.95, RequiresGeneration: true,
		TypeHints: []string{"textarea"},
	},
	{
		Purpose: model.PurposeWhyCompany,
		Patterns: re(
			`\bwhy\b.*\b(company|us|here|join|organization|team)\b`,
			`\bwhy\b.*\bwork (for|at|with)\b`,
			`\binterest(ed)? in (working (at|for|with) )?(our|this) (company|organization|team)\b`,
			`\bwhat (attracts|draws|excites) you\b`,
		),
		Template: model.TemplateMotivation, BaseConfidence: 0.9, RequiresGeneration: true,
		TypeHints: []string{"textarea"},
	},
	{
		Purpose: model.PurposeWhyRole,
		Patterns: re(
			`\bwhy\b.*\b(role|position|job|opportunity)\b`,
			`\binterest(ed)? in (this|the) (role|position|job)\b`,
			`\bwhat makes you (a )?(good|great|strong|ideal) (fit|candidate)\b`,
		),
		Template: model.TemplateMotivation, BaseConfidence: 0.9, RequiresGeneration: true,
		TypeHints: []string{"textarea"},
	},
	{
		Purpose:  model.PurposeStrengths,
		Patterns: re(`\bstrengths?\b`, `\bwhat (are you|makes you) (good|great|best) at\b`),
		Template: model.TemplateSelfAssess, BaseConfidence: 0.85, RequiresGeneration: true,
		TypeHints: []string{"textarea"},
	},
	{
		Purpose:  model.PurposeWeakness,
		Patterns: re(`\bweakness(es)?\b`, `\bareas? (of|for) (improvement|growth|development)\b`),
		Template: model.TemplateSelfAssess, BaseConfidence: 0.85, RequiresGeneration: true,
		TypeHints: []string{"textarea"},
	},
	{
		Purpose: model.PurposeExperience,
		Patterns: re(
			`\b(describe|tell us about|share|give an example of)\b.*\b(time|situation|project|challenge|achievement|accomplishment|experience|conflict|failure)\b`,
			`\b(biggest|greatest|proudest|most significant) (challenge|achievement|accomplishment|project)\b`,
		),
		Template: model.TemplateStory, BaseConfidence: 0.85, RequiresGeneration: true,
		TypeHints: []string{"textarea"},
	},
	{
		Purpose:  model.PurposeSalary,
		Patterns: re(`\bsalary\b`, `\bcompensation\b`, `\bpay (expectations?|requirements?|range)\b`, `\bdesired (pay|rate)\b`),
		Template: model.TemplateSalary, BaseConfidence: 0.85, RequiresGeneration: true,
		TypeHints: []string{"number"},
	},
	{
		Purpose:  model.PurposeAvailability,
		Patterns: re(`\bavailability\b`, `\b(earliest )?start date\b`, `\bnotice period\b`, `\bwhen (can|could|would) you start\b`, `\bavailable to start\b`),
		Template: model.TemplateAvailability, BaseConfidence: 0.8, RequiresGeneration: true,
		TypeHints: []string{"date"},
	},
	{
		Purpose:  model.PurposeAdditionalInfo,
		Patterns: re(`\b(additional|other) (information|info|comments|details)\b`, `\banything else\b`, `\bcomments?\b`),
		Template: model.TemplateGeneric, BaseConfidence: 0.8, RequiresGeneration: true,
		TypeHints: []string{"textarea"},
	},

	// Contact and identity, looked up.
	{
		Purpose:  model.PurposeEmail,
		Patterns: re(`\be ?mail\b`),
		DataPath: "personal_info.email", BaseConfidence: 0.95,
		TypeHints: []string{"email"},
	},
	{
		Purpose:  model.PurposeFirstName,
		Patterns: re(`\b(first|given|fore) ?name\b`, `^fname$`),
		DataPath: "personal_info.first_name", BaseConfidence: 0.95,
	},
	{
		Purpose:  model.PurposeLastName,
		Patterns: re(`\b(last|family|sur) ?name\b`, `^lname$`),
		DataPath: "personal_info.last_name", BaseConfidence: 0.95,
	},
	{
		Purpose:  model.PurposeFullName,
		Patterns: re(`^(your )?(full |legal |complete )?name$`, `\bfull name\b`, `\bcandidate name\b`, `\bapplicant name\b`),
		DataPath: "personal_info|@fullname", BaseConfidence: 0.9,
	},
	{
		Purpose:  model.PurposePhone,
		Patterns: re(`\bphone\b`, `\bmobile\b`, `\btelephone\b`, `\bcell\b`, `\bcontact number\b`, `^tel$`),
		DataPath: "personal_info.phone", BaseConfidence: 0.9,
		TypeHints: []string{"tel"},
	},
	{
		Purpose:  model.PurposeLinkedIn,
		Patterns: re(`\blinked ?in\b`),
		DataPath: "personal_info.linkedin_url", BaseConfidence: 0.95,
		TypeHints: []string{"url"},
	},
	{
		Purpose:  model.PurposeGitHub,
		Patterns: re(`\bgit ?hub\b`),
		DataPath: "personal_info.github_url", BaseConfidence: 0.95,
		TypeHints: []string{"url"},
	},
	{
		Purpose:  model.PurposePortfolio,
		Patterns: re(`\bportfolio\b`, `\b(personal )?(website|web site|homepage)\b`, `\bblog url\b`),
		DataPath: "personal_info.portfolio_url", BaseConfidence: 0.85,
		TypeHints: []string{"url"},
	},
	{
		Purpose:  model.PurposeZip,
		Patterns: re(`\bzip\b`, `\bpostal code\b`, `\bpost ?code\b`, `\bzip code\b`),
		DataPath: "personal_info.zip_code", BaseConfidence: 0.9,
	},
	{
		Purpose:  model.PurposeCity,
		Patterns: re(`\bcity\b`, `\btown\b`),
		DataPath: "personal_info.city", BaseConfidence: 0.9,
	},
	{
		Purpose:  model.PurposeState,
		Patterns: re(`^state$`, `\bstate (or|/)? ?province\b`, `\bprovince\b`, `\bregion\b`, `^state\b`),
		DataPath: "personal_info.state", BaseConfidence: 0.85,
	},
	{
		Purpose:  model.PurposeCountry,
		Patterns: re(`\bcountry\b`),
		DataPath: "personal_info.country", BaseConfidence: 0.9,
	},
	{
		Purpose:  model.PurposeAddress,
		Patterns: re(`\b(street )?address\b`, `\baddress line\b`, `\bstreet\b`),
		DataPath: "personal_info.address", BaseConfidence: 0.8,
	},

	// Background, looked up.
	{
		Purpose:  model.PurposeCurrentTitle,
		Patterns: re(`\b(current|present|most recent) (job )?(title|position|role)\b`, `^(job )?title$`),
		DataPath: "work_experience.0.position", BaseConfidence: 0.85,
	},
	{
		Purpose:  model.PurposeCurrentCompany,
		Patterns: re(`\b(current|present|most recent) (company|employer)\b`, `^(company|employer)( name)?$`),
		DataPath: "work_experience.0.company", BaseConfidence: 0.85,
	},
	{
		Purpose:  model.PurposeSchool,
		Patterns: re(`\b(school|university|college|institution)\b`),
		DataPath: "education.0.institution", BaseConfidence: 0.85,
	},
	{
		Purpose:  model.PurposeFieldOfStudy,
		Patterns: re(`\bfield of study\b`, `\bmajor\b`, `\bdiscipline\b`, `\barea of study\b`),
		DataPath: "education.0.field_of_study", BaseConfidence: 0.85,
	},
	{
		Purpose:  model.PurposeDegree,
		Patterns: re(`\bdegree\b`, `\bqualification\b`),
		DataPath: "education.0.degree", BaseConfidence: 0.8,
	},
	{
		Purpose:  model.PurposeGPA,
		Patterns: re(`\bgpa\b`, `\bgrade point average\b`),
		DataPath: "education.0.gpa", BaseConfidence: 0.9,
		TypeHints: []string{"number"},
	},
	{
		Purpose:  model.PurposeSkills,
		Patterns: re(`\bskills?\b`, `\btechnologies\b`, `\bcompetencies\b`),
		DataPath: "skills|@list", BaseConfidence: 0.8,
	},
	{
		Purpose:  model.PurposeSummary,
		Patterns: re(`\b(professional )?summary\b`, `\babout (you|yourself)\b`, `\bbio\b`, `\btell us about yourself\b`),
		DataPath: "summary", BaseConfidence: 0.8,
		TypeHints: []string{"textarea"},
	},
}
