package referential

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
directions:
  - code: DR_NORD
    label: Direction régionale Nord
  - code: DR_SUD
    label: Direction régionale Sud
services:
  - code: BUDGET
    label: Service du budget
posts:
  - code: CHEF_SERVICE
    label: Chef de service
  - code: AGENT_SAISIE
grades:
  - code: A2
    label: Catégorie A, échelle 2
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "referential.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0644))

	s, err := Load(path)
	require.NoError(t, err)

	assert.True(t, s.HasPost("chef_service"))
	assert.False(t, s.HasPost("DIRECTEUR"))
	assert.True(t, s.HasLocation("DR_NORD"))
	assert.True(t, s.HasLocation("budget"))
	assert.False(t, s.HasLocation("DR_EST"))
	assert.True(t, s.HasGrade("A2"))

	assert.Equal(t, "Chef de service", s.PostLabel("CHEF_SERVICE"))
	assert.Equal(t, "AGENT_SAISIE", s.PostLabel("AGENT_SAISIE"))
	assert.Equal(t, "UNKNOWN", s.PostLabel("UNKNOWN"))
	assert.Equal(t, "Service du budget", s.LocationLabel("BUDGET"))

	dirs := s.Directions()
	require.Len(t, dirs, 2)
	assert.Equal(t, "DR_NORD", dirs[0].Code)
	assert.Len(t, s.Posts(), 2)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "malformed", yaml: "directions: [oops"},
		{name: "missing code", yaml: "posts:\n  - label: Sans code\n"},
		{name: "duplicate code", yaml: "posts:\n  - code: X\n  - code: x\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
