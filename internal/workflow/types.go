package workflow

import (
	"fmt"
	"strings"
	"time"
)

type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusInReview   Status = "in_review"
	StatusTesting    Status = "testing"
	StatusDone       Status = "done"
	StatusBlocked    Status = "blocked"
)

type SprintStatus string

const (
	SprintPlanned   SprintStatus = "planned"
	SprintActive    SprintStatus = "active"
	SprintCompleted SprintStatus = "completed"
	SprintCancelled SprintStatus = "cancelled"
)

// Description is the "As a <role>, I want <action> so that <purpose>" form of a story.
type Description struct {
	Role    string `json:"role" yaml:"role"`
	Action  string `json:"action" yaml:"action"`
	Purpose string `json:"purpose" yaml:"purpose"`
}

func (d Description) Valid() bool {
	return strings.TrimSpace(d.Role) != "" &&
		strings.TrimSpace(d.Action) != "" &&
		strings.TrimSpace(d.Purpose) != ""
}

func (d Description) String() string {
	if !d.Valid() {
		return ""
	}
	return fmt.Sprintf("As a %s, I want %s so that %s", d.Role, d.Action, d.Purpose)
}

type AcceptanceCriteria struct {
	Given []string `json:"given" yaml:"given"`
	When  []string `json:"when" yaml:"when"`
	Then  []string `json:"then" yaml:"then"`
}

func (a AcceptanceCriteria) Valid() bool {
	return len(a.Given) > 0 && len(a.When) > 0 && len(a.Then) > 0
}

// Gherkin renders the criteria as Given/When/Then lines, continuation clauses joined with "And".
func (a AcceptanceCriteria) Gherkin() string {
	var b strings.Builder
	write := func(keyword string, clauses []string) {
		for i, c := range clauses {
			if i == 0 {
				b.WriteString(keyword)
			} else {
				b.WriteString("And")
			}
			b.WriteString(" ")
			b.WriteString(c)
			b.WriteString("\n")
		}
	}
	write("Given", a.Given)
	write("When", a.When)
	write("Then", a.Then)
	return strings.TrimSuffix(b.String(), "\n")
}

type Story struct {
	Lifecycle
	ID          string             `json:"id"`
	ProjectID   string             `json:"project_id"`
	BacklogID   string             `json:"backlog_id"`
	EpicID      string             `json:"epic_id,omitempty"`
	SprintID    string             `json:"sprint_id,omitempty"`
	Title       string             `json:"title"`
	Description Description        `json:"description"`
	Criteria    AcceptanceCriteria `json:"acceptance_criteria"`
	Points      int                `json:"story_points"`
	Priority    int                `json:"priority"`

	// Scoring inputs, 1..10 once set, 0 while unscored.
	BusinessValue   int `json:"business_value"`
	Urgency         int `json:"urgency"`
	TimeCriticality int `json:"time_criticality"`
	RiskReduction   int `json:"risk_reduction"`

	Dependencies []string `json:"dependencies"`
	Version      int64    `json:"version"`
}

type Task struct {
	Lifecycle
	ID             string     `json:"id"`
	StoryID        string     `json:"story_id"`
	SprintID       string     `json:"sprint_id,omitempty"`
	AssigneeID     string     `json:"assignee_id,omitempty"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	EstimatedHours float64    `json:"estimated_hours"`
	ActualHours    float64    `json:"actual_hours"`
	Blocked        bool       `json:"blocked"`
	BlockReason    string     `json:"block_reason,omitempty"`
	BlockedAt      *time.Time `json:"blocked_at,omitempty"`
	BlockedBy      string     `json:"blocked_by,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	Version        int64      `json:"version"`
}

type Sprint struct {
	ID        string       `json:"id"`
	ProjectID string       `json:"project_id"`
	Number    int          `json:"number"`
	Name      string       `json:"name"`
	Goal      string       `json:"goal"`
	StartDate time.Time    `json:"start_date"`
	EndDate   time.Time    `json:"end_date"`
	Status    SprintStatus `json:"status"`
	Capacity  *int         `json:"capacity,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	Version   int64        `json:"version"`
}

type Project struct {
	ID          string    `json:"id"`
	Key         string    `json:"key"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

type Backlog struct {
	ID                 string `json:"id"`
	ProjectID          string `json:"project_id"`
	Name               string `json:"name"`
	Method             Method `json:"method,omitempty"`
	TotalBusinessValue int    `json:"total_business_value"`
	Version            int64  `json:"version"`
}

type Epic struct {
	ID          string    `json:"id"`
	BacklogID   string    `json:"backlog_id"`
	Name        string    `json:"name"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// StoryIndex resolves story IDs to their loaded state. A missing entry is an
// unresolvable dependency.
type StoryIndex map[string]*Story

func IndexStories(stories ...*Story) StoryIndex {
	idx := make(StoryIndex, len(stories))
	for _, s := range stories {
		idx[s.ID] = s
	}
	return idx
}
