package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Plan describes the slot grids, semester lengths, capacities and courses the
// scheduler works with. It is loaded once and passed to constructors.
type Plan struct {
	Patterns []PatternPlan `mapstructure:"patterns"`
	Courses  []CoursePlan  `mapstructure:"courses"`
}

// PatternPlan is the recurring grid of one cohort mode.
type PatternPlan struct {
	CohortMode string         `mapstructure:"cohort_mode"`
	Slots      []SlotPlan     `mapstructure:"slots"`
	Semesters  []SemesterPlan `mapstructure:"semesters"`
}

// SlotPlan is one weekday/time entry of a grid. Times use HH:MM.
type SlotPlan struct {
	Weekday string `mapstructure:"weekday"`
	Start   string `mapstructure:"start"`
	End     string `mapstructure:"end"`
}

// SemesterPlan sets how many grid cycles a semester has and its hour ceiling.
type SemesterPlan struct {
	Number        int     `mapstructure:"number"`
	Occurrences   int     `mapstructure:"occurrences"`
	CapacityHours float64 `mapstructure:"capacity_hours"`
}

// CoursePlan identifies a postgraduate course and where its catalog lives.
type CoursePlan struct {
	Key         string  `mapstructure:"key"`
	Name        string  `mapstructure:"name"`
	TotalHours  float64 `mapstructure:"total_hours"`
	Disciplines string  `mapstructure:"disciplines"`
}

// Pattern returns the plan entry for the given cohort mode (case-insensitive).
func (p Plan) Pattern(mode string) (PatternPlan, bool) {
	for _, pattern := range p.Patterns {
		if strings.EqualFold(pattern.CohortMode, mode) {
			return pattern, true
		}
	}
	return PatternPlan{}, false
}

// Course returns the course entry with the given key.
func (p Plan) Course(key string) (CoursePlan, bool) {
	for _, course := range p.Courses {
		if strings.EqualFold(course.Key, key) {
			return course, true
		}
	}
	return CoursePlan{}, false
}

// Semester returns the semester entry with the given number.
func (p PatternPlan) Semester(number int) (SemesterPlan, bool) {
	for _, semester := range p.Semesters {
		if semester.Number == number {
			return semester, true
		}
	}
	return SemesterPlan{}, false
}

// LoadPlan reads a YAML (or any viper-supported) plan file. An empty path
// yields DefaultPlan.
func LoadPlan(path string) (Plan, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultPlan(), nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Plan{}, fmt.Errorf("read plan %s: %w", path, err)
	}

	var plan Plan
	if err := v.Unmarshal(&plan); err != nil {
		return Plan{}, fmt.Errorf("decode plan %s: %w", path, err)
	}
	if err := plan.check(); err != nil {
		return Plan{}, fmt.Errorf("plan %s: %w", path, err)
	}
	return plan, nil
}

func (p Plan) check() error {
	if len(p.Patterns) == 0 {
		return errors.New("no slot patterns defined")
	}
	for _, pattern := range p.Patterns {
		if pattern.CohortMode == "" {
			return errors.New("slot pattern without cohort_mode")
		}
		if len(pattern.Slots) == 0 {
			return fmt.Errorf("slot pattern %s has no slots", pattern.CohortMode)
		}
		if len(pattern.Semesters) == 0 {
			return fmt.Errorf("slot pattern %s has no semesters", pattern.CohortMode)
		}
	}
	return nil
}

// DefaultPlan returns the grids used by the programme since 2026: weekly
// cohorts meet Monday and Wednesday evenings, biweekly cohorts meet Friday
// evening and all of Saturday every other week.
func DefaultPlan() Plan {
	return Plan{
		Patterns: []PatternPlan{
			{
				CohortMode: "weekly",
				Slots: []SlotPlan{
					{Weekday: "monday", Start: "19:00", End: "20:40"},
					{Weekday: "monday", Start: "21:00", End: "22:40"},
					{Weekday: "wednesday", Start: "19:00", End: "20:40"},
					{Weekday: "wednesday", Start: "21:00", End: "22:40"},
				},
				Semesters: []SemesterPlan{
					{Number: 1, Occurrences: 16, CapacityHours: 64},
					{Number: 2, Occurrences: 20, CapacityHours: 80},
				},
			},
			{
				CohortMode: "biweekly",
				Slots: []SlotPlan{
					{Weekday: "friday", Start: "19:00", End: "20:40"},
					{Weekday: "friday", Start: "21:00", End: "22:40"},
					{Weekday: "saturday", Start: "08:00", End: "09:40"},
					{Weekday: "saturday", Start: "10:00", End: "11:40"},
					{Weekday: "saturday", Start: "13:00", End: "14:40"},
					{Weekday: "saturday", Start: "15:00", End: "16:40"},
				},
				Semesters: []SemesterPlan{
					{Number: 1, Occurrences: 8, CapacityHours: 96},
					{Number: 2, Occurrences: 10, CapacityHours: 120},
				},
			},
		},
		Courses: []CoursePlan{
			{Key: "criminologia", Name: "Especialização em Criminologia", TotalHours: 388, Disciplines: "criminologia.csv"},
			{Key: "gespin", Name: "Especialização em Gestão da Segurança Pública e Inteligência", TotalHours: 388, Disciplines: "gespin.csv"},
		},
	}
}
