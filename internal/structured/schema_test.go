package structured

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testStop struct {
	Name     string `json:"name" validate:"required"`
	Kind     string `json:"kind" validate:"oneof=FLIGHT MEAL"`
	Duration int    `json:"duration,omitempty" validate:"gte=0"`
}

type testPlan struct {
	Title string     `json:"title" validate:"required"`
	Stops []testStop `json:"stops" validate:"dive"`
	Notes string     `json:"notes,omitempty"`
}

func noDuplicateStops(p *testPlan) []Issue {
	seen := map[string]bool{}
	for _, s := range p.Stops {
		if seen[s.Name] {
			return []Issue{{Path: "stops", Message: "duplicate stop " + s.Name}}
		}
		seen[s.Name] = true
	}
	return nil
}

func TestSchema_Valid(t *testing.T) {
	t.Parallel()

	s := MustSchema("plan", noDuplicateStops)
	got, issues, err := s.Validate(`{"title":"Trip","stops":[{"name":"UA123","kind":"FLIGHT"}],"extra":true}`)
	require.NoError(t, err)
	require.Empty(t, issues)
	assert.Equal(t, "Trip", got.Title)
	require.Len(t, got.Stops, 1)
	assert.Equal(t, "FLIGHT", got.Stops[0].Kind)
}

func TestSchema_ParseError(t *testing.T) {
	t.Parallel()

	s := MustSchema[testPlan]("plan", nil)
	_, issues, err := s.Validate(`{"title": "Trip",`)
	require.Error(t, err)
	assert.Empty(t, issues)
}

func TestSchema_MissingRequired(t *testing.T) {
	t.Parallel()

	s := MustSchema[testPlan]("plan", nil)
	_, issues, err := s.Validate(`{"title":"Trip"}`)
	require.NoError(t, err)
	require.NotEmpty(t, issues)
	assert.Contains(t, issues[0].Message, "stops")
}

func TestSchema_NotAnObject(t *testing.T) {
	t.Parallel()

	s := MustSchema[testPlan]("plan", nil)
	_, issues, err := s.Validate(`[1,2]`)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "$", issues[0].Path)
}

func TestSchema_TagViolationsUseJSONPaths(t *testing.T) {
	t.Parallel()

	s := MustSchema[testPlan]("plan", nil)
	_, issues, err := s.Validate(`{"title":"Trip","stops":[{"name":"x","kind":"BOAT"}]}`)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "stops[0].kind", issues[0].Path)
	assert.Contains(t, issues[0].Message, "FLIGHT MEAL")
}

func TestSchema_SemanticCheck(t *testing.T) {
	t.Parallel()

	s := MustSchema("plan", noDuplicateStops)
	_, issues, err := s.Validate(`{"title":"Trip","stops":[{"name":"a","kind":"MEAL"},{"name":"a","kind":"MEAL"}]}`)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "duplicate stop a", issues[0].Message)
}

func TestSchema_Document(t *testing.T) {
	t.Parallel()

	s := MustSchema[testPlan]("plan", nil)
	assert.Contains(t, s.Document(), `"stops"`)
	assert.Contains(t, s.Document(), `"required"`)
	assert.Equal(t, "plan", s.Name())
}
