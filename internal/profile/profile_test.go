package profile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleJSON = `{
  "version": "1.0",
  "personal_info": {
    "first_name": "Jane",
    "last_name": "Doe",
    "email": "jane@example.com",
    "phone": "+11234567890",
    "linkedin_url": "https://linkedin.com/in/janedoe",
    "city": "San Francisco",
    "state": "CA",
    "country": "USA"
  },
  "education": [{
    "institution": "Stanford University",
    "degree": "Bachelor of Science",
    "field_of_study": "Computer Science",
    "start_date": "2016-09",
    "end_date": "2020-06",
    "gpa": 3.8
  }],
  "work_experience": [{
    "company": "Acme",
    "position": "Backend Engineer",
    "start_date": "2020-07",
    "end_date": "Present",
    "responsibilities": ["Built payment APIs"],
    "achievements": ["Cut p99 latency by 40%"]
  }],
  "skills": ["Go", "PostgreSQL", "Kubernetes"],
  "summary": "Backend engineer with five years of experience."
}`

const sampleYAML = `
personal_info:
  first_name: Jane
  last_name: Doe
  email: jane@example.com
skills:
  - Go
  - Rust
`

func loadSample(t *testing.T) *Store {
	t.Helper()
	p, err := Parse([]byte(sampleJSON), ".json")
	require.NoError(t, err)
	s, err := New(*p)
	require.NoError(t, err)
	return s
}

func TestLookup(t *testing.T) {
	t.Parallel()
	s := loadSample(t)

	tests := []struct {
		path string
		want string
	}{
		{"personal_info.email", "jane@example.com"},
		{"personal_info.first_name", "Jane"},
		{"personal_info|@fullname", "Jane Doe"},
		{"work_experience.0.company", "Acme"},
		{"work_experience.0.position", "Backend Engineer"},
		{"education.0.gpa", "3.8"},
		{"skills|@list", "Go, PostgreSQL, Kubernetes"},
		{"summary", "Backend engineer with five years of experience."},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := s.Lookup(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLookup_NotFound(t *testing.T) {
	t.Parallel()
	s := loadSample(t)

	for _, path := range []string{"", "personal_info.github_url", "personal_info.zip_code", "projects.0.name", "nope.nope"} {
		_, err := s.Lookup(path)
		assert.ErrorIs(t, err, ErrNotFound, path)
	}
}

func TestLookup_EmptyList(t *testing.T) {
	t.Parallel()

	s, err := New(Profile{PersonalInfo: PersonalInfo{FirstName: "A", LastName: "B", Email: "a@b.co"}})
	require.NoError(t, err)

	_, err = s.Lookup("skills|@list")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParse_YAML(t *testing.T) {
	t.Parallel()

	p, err := Parse([]byte(sampleYAML), ".yml")
	require.NoError(t, err)
	assert.Equal(t, "Jane", p.PersonalInfo.FirstName)
	assert.Equal(t, []string{"Go", "Rust"}, p.Skills)
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"missing personal info": `{"skills": ["Go"]}`,
		"bad email":             `{"personal_info": {"first_name": "A", "last_name": "B", "email": "not-an-email"}}`,
		"bad phone":             `{"personal_info": {"first_name": "A", "last_name": "B", "email": "a@b.co", "phone": "call me"}}`,
		"gpa out of range":      `{"personal_info": {"first_name": "A", "last_name": "B", "email": "a@b.co"}, "education": [{"institution": "X", "degree": "Y", "field_of_study": "Z", "start_date": "2020-01", "gpa": 5}]}`,
		"not json":              `{`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc), ".json")
			assert.Error(t, err)
		})
	}
}

func TestSummary(t *testing.T) {
	t.Parallel()
	s := loadSample(t)

	sum := s.Summary()
	assert.Contains(t, sum, "Name: Jane Doe")
	assert.Contains(t, sum, "Location: San Francisco, CA, USA")
	assert.Contains(t, sum, "Backend Engineer at Acme (2020-07 to Present)")
	assert.Contains(t, sum, "Cut p99 latency by 40%")
	assert.Contains(t, sum, "Bachelor of Science in Computer Science, Stanford University")
	assert.Contains(t, sum, "Skills: Go, PostgreSQL, Kubernetes")
	assert.False(t, strings.HasSuffix(sum, "\n"))
}

func TestLoad_File(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "user_profile.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(sampleJSON), 0o600))
	s, err := Load(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "Doe", s.Profile().PersonalInfo.LastName)

	yamlPath := filepath.Join(dir, "profile.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(sampleYAML), 0o600))
	s, err = Load(yamlPath)
	require.NoError(t, err)
	got, err := s.Lookup("skills|@list")
	require.NoError(t, err)
	assert.Equal(t, "Go, Rust", got)

	_, err = Load(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestSave_AtomicWithBackups(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "user_profile.json")

	p, err := Parse([]byte(sampleJSON), ".json")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		p.Summary = strings.Repeat("x", i+1)
		require.NoError(t, Save(path, *p, 3))
	}

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "xxxxx", loaded.Profile().Summary)
	assert.False(t, loaded.Profile().LastUpdated.IsZero())

	backups, err := ListBackups(path)
	require.NoError(t, err)
	assert.Len(t, backups, 3, "pruned to max backups")
	for i := 1; i < len(backups); i++ {
		assert.True(t, backups[i-1].CreatedAt.After(backups[i].CreatedAt), "newest first")
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), "temp file left behind")
	}
}

func TestSave_RejectsInvalid(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "user_profile.json")

	err := Save(path, Profile{PersonalInfo: PersonalInfo{FirstName: "A"}}, 10)
	assert.Error(t, err)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRestore(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "user_profile.json")

	p, err := Parse([]byte(sampleJSON), ".json")
	require.NoError(t, err)
	p.Summary = "first"
	require.NoError(t, Save(path, *p, 10))
	p.Summary = "second"
	require.NoError(t, Save(path, *p, 10))

	backups, err := ListBackups(path)
	require.NoError(t, err)
	require.Len(t, backups, 1)

	restored, err := Restore(path, backups[0].Name, 10)
	require.NoError(t, err)
	assert.Equal(t, "first", restored.Summary)

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "first", loaded.Profile().Summary)

	_, err = Restore(path, "../escape.json", 10)
	assert.Error(t, err)
}

func TestMatchOption(t *testing.T) {
	t.Parallel()

	options := []string{"United States", "United States Minor Outlying Islands", "Canada", "USA"}

	got, ok := MatchOption("usa", options)
	require.True(t, ok)
	assert.Equal(t, "USA", got)

	got, ok = MatchOption("Canada ", options)
	require.True(t, ok)
	assert.Equal(t, "Canada", got)

	got, ok = MatchOption("Bachelor", []string{"High School", "Bachelor's Degree", "Master's Degree"})
	require.True(t, ok)
	assert.Equal(t, "Bachelor's Degree", got)

	_, ok = MatchOption("Mexico", options)
	assert.False(t, ok)

	_, ok = MatchOption("", options)
	assert.False(t, ok)
}
