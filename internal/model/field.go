package model

// FieldDescriptor is one detected form field as reported by the page-side
// detector. It is read-only to the engine.
type FieldDescriptor struct {
	ID          string   `json:"id"`
	Label       string   `json:"label"`
	Name        string   `json:"name,omitempty"`
	Placeholder string   `json:"placeholder,omitempty"`
	InputType   string   `json:"input_type,omitempty"` // text, email, tel, url, textarea, select, radio, ...
	Required    bool     `json:"required,omitempty"`
	Options     []string `json:"options,omitempty"` // choices for select/radio fields
}

// IsEnumerated reports whether the field only accepts one of its options.
func (f FieldDescriptor) IsEnumerated() bool {
	return len(f.Options) > 0
}

// Purpose is the semantic tag a classifier assigns to a field.
type Purpose string

const (
	PurposeFullName       Purpose = "full_name"
	PurposeFirstName      Purpose = "first_name"
	PurposeLastName       Purpose = "last_name"
	PurposeEmail          Purpose = "email"
	PurposePhone          Purpose = "phone"
	PurposeLinkedIn       Purpose = "linkedin"
	PurposeGitHub         Purpose = "github"
	PurposePortfolio      Purpose = "portfolio"
	PurposeAddress        Purpose = "address"
	PurposeCity           Purpose = "city"
	PurposeState          Purpose = "state"
	PurposeZip            Purpose = "zip"
	PurposeCountry        Purpose = "country"
	PurposeCurrentCompany Purpose = "current_company"
	PurposeCurrentTitle   Purpose = "current_title"
	PurposeSchool         Purpose = "school"
	PurposeDegree         Purpose = "degree"
	PurposeFieldOfStudy   Purpose = "field_of_study"
	PurposeGPA            Purpose = "gpa"
	PurposeSkills         Purpose = "skills"
	PurposeSummary        Purpose = "summary"

	PurposeCoverLetter    Purpose = "cover_letter"
	PurposeWhyCompany     Purpose = "why_company"
	PurposeWhyRole        Purpose = "why_role"
	PurposeStrengths      Purpose = "strengths"
	PurposeWeakness       Purpose = "weakness"
	PurposeExperience     Purpose = "experience_story"
	PurposeSalary         Purpose = "salary"
	PurposeAvailability   Purpose = "availability"
	PurposeAdditionalInfo Purpose = "additional_info"

	PurposeUnknown Purpose = "unknown"
)

// Template names the prompt template used for a creative field.
type Template string

const (
	TemplateGeneric      Template = "generic"
	TemplateCoverLetter  Template = "cover_letter"
	TemplateMotivation   Template = "motivation"
	TemplateSelfAssess   Template = "self_assessment"
	TemplateStory        Template = "story"
	TemplateSalary       Template = "salary"
	TemplateAvailability Template = "availability"
	TemplateShortFact    Template = "short_fact"
)

// Classification is the classifier's decision for one field. It is computed
// once per field per request and never persisted.
type Classification struct {
	Purpose            Purpose  `json:"purpose"`
	DataPath           string   `json:"data_path,omitempty"`
	Template           Template `json:"template,omitempty"`
	RequiresGeneration bool     `json:"requires_generation"`
	Confidence         float64  `json:"confidence"`
}

// Creative returns a copy of c that must be generated, keeping the purpose
// so prompts stay specific.
func (c Classification) Creative() Classification {
	c.RequiresGeneration = true
	c.DataPath = ""
	if c.Template == "" {
		c.Template = TemplateShortFact
	}
	return c
}
