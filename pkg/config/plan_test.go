package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPlan(t *testing.T) {
	plan := DefaultPlan()

	weekly, ok := plan.Pattern("WEEKLY")
	require.True(t, ok)
	assert.Len(t, weekly.Slots, 4)
	first, ok := weekly.Semester(1)
	require.True(t, ok)
	assert.Equal(t, 16, first.Occurrences)
	assert.Equal(t, 64.0, first.CapacityHours)

	biweekly, ok := plan.Pattern("biweekly")
	require.True(t, ok)
	second, ok := biweekly.Semester(2)
	require.True(t, ok)
	assert.Equal(t, 10, second.Occurrences)
	assert.Equal(t, 120.0, second.CapacityHours)

	_, ok = plan.Course("gespin")
	assert.True(t, ok)
	_, ok = biweekly.Semester(3)
	assert.False(t, ok)
}

func TestLoadPlanFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.yaml")
	content := `
patterns:
  - cohort_mode: weekly
    slots:
      - weekday: monday
        start: "19:00"
        end: "20:40"
    semesters:
      - number: 1
        occurrences: 8
        capacity_hours: 40
courses:
  - key: direito
    name: Direito Penal
    total_hours: 360
    disciplines: direito.xlsx
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	plan, err := LoadPlan(path)
	require.NoError(t, err)
	require.Len(t, plan.Patterns, 1)
	assert.Equal(t, "19:00", plan.Patterns[0].Slots[0].Start)
	assert.Equal(t, 8, plan.Patterns[0].Semesters[0].Occurrences)
	course, ok := plan.Course("direito")
	require.True(t, ok)
	assert.Equal(t, "direito.xlsx", course.Disciplines)
}

func TestLoadPlanRejectsEmptyPatterns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte("courses: []\n"), 0o600))

	_, err := LoadPlan(path)
	assert.Error(t, err)
}

func TestLoadPlanEmptyPathUsesDefault(t *testing.T) {
	plan, err := LoadPlan("")
	require.NoError(t, err)
	assert.Len(t, plan.Patterns, 2)
}
