// Package plan seeds a project from a YAML plan file and writes a project
// back out in the same shape. Import goes through agile.Service so every
// workflow rule applies to seeded data.
package plan

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/satyaki-up/agileflow/internal/workflow"
)

type Plan struct {
	Project Project  `yaml:"project"`
	Users   []string `yaml:"users,omitempty"`
	Epics   []Epic   `yaml:"epics,omitempty"`
	Stories []Story  `yaml:"stories"`
	Sprints []Sprint `yaml:"sprints,omitempty"`
}

type Project struct {
	Key         string `yaml:"key"`
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
}

type Epic struct {
	Name        string `yaml:"name"`
	Title       string `yaml:"title,omitempty"`
	Description string `yaml:"description,omitempty"`
}

// Story is keyed by a plan-local name that dependencies and sprints refer
// to. On export the key is the story ID.
type Story struct {
	Key         string                       `yaml:"key"`
	Title       string                       `yaml:"title"`
	Points      int                          `yaml:"points"`
	Epic        string                       `yaml:"epic,omitempty"`
	Description *workflow.Description        `yaml:"description,omitempty"`
	Criteria    *workflow.AcceptanceCriteria `yaml:"criteria,omitempty"`
	Scores      *workflow.Scores             `yaml:"scores,omitempty"`
	DependsOn   []string                     `yaml:"depends_on,omitempty"`
	Tasks       []Task                       `yaml:"tasks,omitempty"`
}

type Task struct {
	Title       string  `yaml:"title"`
	Description string  `yaml:"description,omitempty"`
	Estimate    float64 `yaml:"estimate"`
	Assignee    string  `yaml:"assignee,omitempty"`
}

type Sprint struct {
	Number   int      `yaml:"number,omitempty"`
	Goal     string   `yaml:"goal,omitempty"`
	Start    string   `yaml:"start"`
	End      string   `yaml:"end"`
	Capacity *int     `yaml:"capacity,omitempty"`
	Stories  []string `yaml:"stories,omitempty"`
}

func (sp Sprint) params() (workflow.SprintParams, error) {
	start, err := time.Parse(time.DateOnly, sp.Start)
	if err != nil {
		return workflow.SprintParams{}, fmt.Errorf("%w: sprint start %q: want YYYY-MM-DD", workflow.ErrValidation, sp.Start)
	}
	end, err := time.Parse(time.DateOnly, sp.End)
	if err != nil {
		return workflow.SprintParams{}, fmt.Errorf("%w: sprint end %q: want YYYY-MM-DD", workflow.ErrValidation, sp.End)
	}
	return workflow.SprintParams{
		Number:    sp.Number,
		Goal:      sp.Goal,
		StartDate: start,
		EndDate:   end,
		Capacity:  sp.Capacity,
	}, nil
}

// Load decodes a plan and checks that every reference in it resolves.
// Unknown fields are rejected.
func Load(r io.Reader) (*Plan, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var p Plan
	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: plan is empty", workflow.ErrValidation)
		}
		return nil, fmt.Errorf("%w: parse plan: %v", workflow.ErrValidation, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Plan) Validate() error {
	if strings.TrimSpace(p.Project.Key) == "" {
		return fmt.Errorf("%w: plan needs project.key", workflow.ErrValidation)
	}
	epics := make(map[string]bool, len(p.Epics))
	for _, e := range p.Epics {
		epics[e.Name] = true
	}
	keys := make(map[string]bool, len(p.Stories))
	for _, s := range p.Stories {
		if s.Key == "" {
			return fmt.Errorf("%w: story %q needs a key", workflow.ErrValidation, s.Title)
		}
		if keys[s.Key] {
			return fmt.Errorf("%w: story key %q used twice", workflow.ErrValidation, s.Key)
		}
		keys[s.Key] = true
		if s.Epic != "" && !epics[s.Epic] {
			return fmt.Errorf("%w: story %q names unknown epic %q", workflow.ErrValidation, s.Key, s.Epic)
		}
	}
	for _, s := range p.Stories {
		for _, dep := range s.DependsOn {
			if !keys[dep] {
				return fmt.Errorf("%w: story %q depends on unknown story %q", workflow.ErrValidation, s.Key, dep)
			}
		}
	}
	for i, sp := range p.Sprints {
		if _, err := sp.params(); err != nil {
			return err
		}
		for _, key := range sp.Stories {
			if !keys[key] {
				return fmt.Errorf("%w: sprint %d lists unknown story %q", workflow.ErrValidation, i+1, key)
			}
		}
	}
	return nil
}

func (p *Plan) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return err
	}
	return enc.Close()
}
