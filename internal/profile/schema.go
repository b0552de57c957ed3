package profile

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const profileSchema = `{
  "type": "object",
  "required": ["personal_info"],
  "properties": {
    "version": {"type": "string"},
    "last_updated": {"type": "string"},
    "personal_info": {
      "type": "object",
      "required": ["first_name", "last_name", "email"],
      "properties": {
        "first_name": {"type": "string", "minLength": 1, "maxLength": 100},
        "last_name": {"type": "string", "minLength": 1, "maxLength": 100},
        "email": {"type": "string", "format": "email"},
        "phone": {"type": "string", "pattern": "^\\+?1?\\d{9,15}$"},
        "linkedin_url": {"type": "string", "format": "uri"},
        "github_url": {"type": "string", "format": "uri"},
        "portfolio_url": {"type": "string", "format": "uri"},
        "address": {"type": "string", "maxLength": 200},
        "city": {"type": "string", "maxLength": 100},
        "state": {"type": "string", "maxLength": 50},
        "zip_code": {"type": "string", "maxLength": 20},
        "country": {"type": "string", "maxLength": 100}
      }
    },
    "education": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "required": ["institution", "degree", "field_of_study", "start_date"],
        "properties": {
          "start_date": {"type": "string", "pattern": "^\\d{4}-\\d{2}$"},
          "end_date": {"type": "string", "pattern": "^(\\d{4}-\\d{2}|Present)$"},
          "gpa": {"type": "number", "minimum": 0, "maximum": 4}
        }
      }
    },
    "work_experience": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "required": ["company", "position", "start_date", "responsibilities"],
        "properties": {
          "start_date": {"type": "string", "pattern": "^\\d{4}-\\d{2}$"},
          "end_date": {"type": "string", "pattern": "^(\\d{4}-\\d{2}|Present)$"},
          "responsibilities": {"type": "array", "minItems": 1, "items": {"type": "string"}}
        }
      }
    },
    "skills": {"type": ["array", "null"], "items": {"type": "string"}},
    "projects": {"type": ["array", "null"], "items": {"type": "object", "required": ["name", "description"]}},
    "certifications": {"type": ["array", "null"], "items": {"type": "object", "required": ["name", "issuer", "date_obtained"]}},
    "summary": {"type": "string", "maxLength": 2000}
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	errSchema      error
)

func schema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.AssertFormat = true
		if err := compiler.AddResource("profile.json", bytes.NewReader([]byte(profileSchema))); err != nil {
			errSchema = eris.Wrap(err, "profile: add schema")
			return
		}
		compiledSchema, errSchema = compiler.Compile("profile.json")
		if errSchema != nil {
			errSchema = eris.Wrap(errSchema, "profile: compile schema")
		}
	})
	return compiledSchema, errSchema
}

// Validate checks raw profile JSON against the profile schema.
func Validate(data []byte) error {
	s, err := schema()
	if err != nil {
		return err
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return eris.Wrap(err, "profile: decode json")
	}
	if err := s.Validate(doc); err != nil {
		return eris.Wrap(err, "profile: invalid")
	}
	return nil
}
