// Package profile loads the user's profile and answers data-path lookups
// for factual form fields.
package profile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when a data path has no non-empty value.
var ErrNotFound = eris.New("profile: value not found")

// PersonalInfo is the contact block of a profile.
type PersonalInfo struct {
	FirstName    string `json:"first_name" yaml:"first_name"`
	LastName     string `json:"last_name" yaml:"last_name"`
	Email        string `json:"email" yaml:"email"`
	Phone        string `json:"phone,omitempty" yaml:"phone,omitempty"`
	LinkedInURL  string `json:"linkedin_url,omitempty" yaml:"linkedin_url,omitempty"`
	GitHubURL    string `json:"github_url,omitempty" yaml:"github_url,omitempty"`
	PortfolioURL string `json:"portfolio_url,omitempty" yaml:"portfolio_url,omitempty"`
	Address      string `json:"address,omitempty" yaml:"address,omitempty"`
	City         string `json:"city,omitempty" yaml:"city,omitempty"`
	State        string `json:"state,omitempty" yaml:"state,omitempty"`
	ZipCode      string `json:"zip_code,omitempty" yaml:"zip_code,omitempty"`
	Country      string `json:"country,omitempty" yaml:"country,omitempty"`
}

// Education is one degree or program.
type Education struct {
	Institution        string   `json:"institution" yaml:"institution"`
	Degree             string   `json:"degree" yaml:"degree"`
	FieldOfStudy       string   `json:"field_of_study" yaml:"field_of_study"`
	StartDate          string   `json:"start_date" yaml:"start_date"`
	EndDate            string   `json:"end_date,omitempty" yaml:"end_date,omitempty"`
	GPA                *float64 `json:"gpa,omitempty" yaml:"gpa,omitempty"`
	Honors             []string `json:"honors,omitempty" yaml:"honors,omitempty"`
	RelevantCoursework []string `json:"relevant_coursework,omitempty" yaml:"relevant_coursework,omitempty"`
}

// WorkExperience is one position, most recent first.
type WorkExperience struct {
	Company          string   `json:"company" yaml:"company"`
	Position         string   `json:"position" yaml:"position"`
	StartDate        string   `json:"start_date" yaml:"start_date"`
	EndDate          string   `json:"end_date,omitempty" yaml:"end_date,omitempty"`
	Location         string   `json:"location,omitempty" yaml:"location,omitempty"`
	Responsibilities []string `json:"responsibilities" yaml:"responsibilities"`
	Achievements     []string `json:"achievements,omitempty" yaml:"achievements,omitempty"`
	Technologies     []string `json:"technologies,omitempty" yaml:"technologies,omitempty"`
}

// Project is a portfolio entry.
type Project struct {
	Name         string   `json:"name" yaml:"name"`
	Description  string   `json:"description" yaml:"description"`
	StartDate    string   `json:"start_date,omitempty" yaml:"start_date,omitempty"`
	EndDate      string   `json:"end_date,omitempty" yaml:"end_date,omitempty"`
	URL          string   `json:"url,omitempty" yaml:"url,omitempty"`
	Technologies []string `json:"technologies,omitempty" yaml:"technologies,omitempty"`
	Highlights   []string `json:"highlights,omitempty" yaml:"highlights,omitempty"`
}

// Certification is a credential or license.
type Certification struct {
	Name           string `json:"name" yaml:"name"`
	Issuer         string `json:"issuer" yaml:"issuer"`
	DateObtained   string `json:"date_obtained" yaml:"date_obtained"`
	ExpirationDate string `json:"expiration_date,omitempty" yaml:"expiration_date,omitempty"`
	CredentialID   string `json:"credential_id,omitempty" yaml:"credential_id,omitempty"`
	URL            string `json:"url,omitempty" yaml:"url,omitempty"`
}

// Profile is the complete user profile.
type Profile struct {
	Version        string           `json:"version" yaml:"version"`
	LastUpdated    time.Time        `json:"last_updated" yaml:"last_updated"`
	PersonalInfo   PersonalInfo     `json:"personal_info" yaml:"personal_info"`
	Education      []Education      `json:"education" yaml:"education"`
	WorkExperience []WorkExperience `json:"work_experience" yaml:"work_experience"`
	Skills         []string         `json:"skills" yaml:"skills"`
	Projects       []Project        `json:"projects" yaml:"projects"`
	Certifications []Certification  `json:"certifications" yaml:"certifications"`
	Summary        string           `json:"summary,omitempty" yaml:"summary,omitempty"`
}

// Store answers lookups against one loaded profile. It is immutable after
// construction and safe for concurrent use.
type Store struct {
	profile Profile
	raw     []byte
}

// New wraps a profile for lookups.
func New(p Profile) (*Store, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, eris.Wrap(err, "profile: marshal")
	}
	return &Store{profile: p, raw: raw}, nil
}

// Load reads a profile from a JSON or YAML file and validates it.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "profile: read %s", path)
	}

	p, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, eris.Wrapf(err, "profile: parse %s", path)
	}
	return New(*p)
}

// Parse decodes and validates profile data. ext selects YAML for ".yaml"
// or ".yml" and JSON otherwise.
func Parse(data []byte, ext string) (*Profile, error) {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, eris.Wrap(err, "profile: decode yaml")
		}
		converted, err := json.Marshal(doc)
		if err != nil {
			return nil, eris.Wrap(err, "profile: convert yaml")
		}
		data = converted
	}

	if err := Validate(data); err != nil {
		return nil, err
	}

	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, eris.Wrap(err, "profile: decode json")
	}
	return &p, nil
}

// Profile returns a copy of the underlying profile.
func (s *Store) Profile() Profile {
	return s.profile
}

// Lookup resolves a gjson data path such as "personal_info.email" or
// "work_experience.0.company". Composite values use the @fullname and @list
// modifiers. A missing or blank value returns ErrNotFound.
func (s *Store) Lookup(dataPath string) (string, error) {
	if dataPath == "" {
		return "", ErrNotFound
	}
	res := gjson.GetBytes(s.raw, dataPath)
	if !res.Exists() || res.Type == gjson.Null {
		return "", ErrNotFound
	}
	val := strings.TrimSpace(res.String())
	if val == "" || val == "[]" || val == "{}" {
		return "", ErrNotFound
	}
	return val, nil
}

// Summary renders a compact plain-text profile used as prompt context.
func (s *Store) Summary() string {
	p := s.profile
	var b strings.Builder

	name := strings.TrimSpace(p.PersonalInfo.FirstName + " " + p.PersonalInfo.LastName)
	if name != "" {
		b.WriteString("Name: " + name + "\n")
	}
	if loc := joinNonEmpty(", ", p.PersonalInfo.City, p.PersonalInfo.State, p.PersonalInfo.Country); loc != "" {
		b.WriteString("Location: " + loc + "\n")
	}
	if p.Summary != "" {
		b.WriteString("Summary: " + p.Summary + "\n")
	}

	if len(p.WorkExperience) > 0 {
		b.WriteString("Experience:\n")
		for _, w := range p.WorkExperience {
			end := w.EndDate
			if end == "" {
				end = "Present"
			}
			b.WriteString("- " + w.Position + " at " + w.Company + " (" + w.StartDate + " to " + end + ")\n")
			for _, a := range w.Achievements {
				b.WriteString("  * " + a + "\n")
			}
			if len(w.Achievements) == 0 && len(w.Responsibilities) > 0 {
				b.WriteString("  * " + w.Responsibilities[0] + "\n")
			}
		}
	}

	if len(p.Education) > 0 {
		b.WriteString("Education:\n")
		for _, e := range p.Education {
			b.WriteString("- " + joinNonEmpty(" in ", e.Degree, e.FieldOfStudy) + ", " + e.Institution + "\n")
		}
	}

	if len(p.Skills) > 0 {
		b.WriteString("Skills: " + strings.Join(p.Skills, ", ") + "\n")
	}

	if len(p.Projects) > 0 {
		b.WriteString("Projects:\n")
		for _, pr := range p.Projects {
			b.WriteString("- " + pr.Name + ": " + pr.Description + "\n")
		}
	}

	if len(p.Certifications) > 0 {
		names := make([]string, 0, len(p.Certifications))
		for _, c := range p.Certifications {
			names = append(names, c.Name+" ("+c.Issuer+")")
		}
		b.WriteString("Certifications: " + strings.Join(names, ", ") + "\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

func joinNonEmpty(sep string, parts ...string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}
