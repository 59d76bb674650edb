package domain

import (
	"fmt"
	"strings"
	"time"
)

type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// ValidatePriority accepts the known priorities and the empty value.
func ValidatePriority(p Priority) error {
	switch p {
	case "", PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return nil
	}
	return fmt.Errorf("priority %q: %w", p, ErrValidation)
}

type TaskStatus string

const (
	TaskOpen   TaskStatus = "OPEN"
	TaskClosed TaskStatus = "CLOSED"
)

// Task is a unit of work placed on a board.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Priority    Priority   `json:"priority,omitempty"`
	BoardID     string     `json:"boardId"`
	AssignedTo  []string   `json:"assignedTo"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Status      TaskStatus `json:"status"`
	ClosedAt    *time.Time `json:"closedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// TaskSpec carries the caller supplied fields of a new task.
type TaskSpec struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    Priority   `json:"priority"`
	BoardID     string     `json:"boardId"`
	AssignedTo  []string   `json:"assignedTo"`
	DueDate     *time.Time `json:"dueDate"`
}

// TaskPatch holds optional task fields. Nil members are left untouched; a
// non-nil empty AssignedTo clears the assignees.
type TaskPatch struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Priority    *Priority  `json:"priority"`
	BoardID     *string    `json:"boardId"`
	DueDate     *time.Time `json:"dueDate"`
	AssignedTo  []string   `json:"assignedTo"`
}

type BoardStatus string

const (
	BoardActive   BoardStatus = "ACTIVE"
	BoardInactive BoardStatus = "INACTIVE"
)

type Board struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	CreatedBy   string      `json:"createdBy,omitempty"`
	Status      BoardStatus `json:"status"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleSupervisor Role = "SUPERVISOR"
	RoleTechnician Role = "TECHNICIAN"
	RoleOperator   Role = "OPERATOR"
)

// User is a board member. PasswordHash never leaves the service.
type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Name         string `json:"name"`
	LastName     string `json:"lastName"`
	Email        string `json:"email"`
	Position     string `json:"position,omitempty"`
	Photo        string `json:"photo,omitempty"`
	Roles        []Role `json:"roles"`
	PasswordHash string `json:"-"`
}

// DisplayName joins the first and last name.
func (u User) DisplayName() string {
	return strings.TrimSpace(u.Name + " " + u.LastName)
}

// TaskCompletion records evidence that a task was finished.
type TaskCompletion struct {
	ID          string    `json:"id"`
	TaskID      string    `json:"taskId"`
	BoardID     string    `json:"boardId"`
	CompletedBy string    `json:"completedBy"`
	CompletedAt time.Time `json:"completedAt"`
	Description string    `json:"description,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	Evidence    []string  `json:"evidenceUrls"`
	CreatedAt   time.Time `json:"createdAt"`
}

// uniqueIDs drops blanks and duplicates while keeping the first occurrence order.
func uniqueIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// difference returns the members of a that are absent from b.
func difference(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, id := range b {
		set[id] = struct{}{}
	}
	var out []string
	for _, id := range a {
		if _, ok := set[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
