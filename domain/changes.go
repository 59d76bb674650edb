package domain

import "strings"

type Field string

const (
	FieldTitle       Field = "title"
	FieldDescription Field = "description"
	FieldPriority    Field = "priority"
	FieldBoard       Field = "board"
	FieldDueDate     Field = "dueDate"
	FieldAssignedTo  Field = "assignedTo"
)

// FieldChange captures one modified task field.
type FieldChange struct {
	Field Field  `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

type Changes []FieldChange

// String renders the changes as the human readable summary sent to assignees.
func (c Changes) String() string {
	var b strings.Builder
	for _, ch := range c {
		switch ch.Field {
		case FieldTitle:
			b.WriteString("Title updated. ")
		case FieldDescription:
			b.WriteString("Description updated. ")
		case FieldPriority:
			b.WriteString("Priority changed to " + ch.New + ". ")
		case FieldBoard:
			b.WriteString("Board changed. ")
		case FieldDueDate:
			b.WriteString("Due date changed. ")
		case FieldAssignedTo:
			b.WriteString("Assignees updated. ")
		}
	}
	return b.String()
}

func (c Changes) Has(f Field) bool {
	for _, ch := range c {
		if ch.Field == f {
			return true
		}
	}
	return false
}
