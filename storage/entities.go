package storage

import (
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"

	"board-sync/domain"
)

const (
	taskPartition  = "task"
	boardPartition = "board"
	userPartition  = "user"
)

// List valued columns are stored as JSON strings; timestamps as RFC3339.

type taskEntity struct {
	aztables.Entity
	Title       string `json:"Title"`
	Description string `json:"Description"`
	Priority    string `json:"Priority"`
	BoardID     string `json:"BoardId"`
	AssignedTo  string `json:"AssignedTo"`
	DueDate     string `json:"DueDate,omitempty"`
	Status      string `json:"Status"`
	ClosedAt    string `json:"ClosedAt,omitempty"`
	CreatedAt   string `json:"CreatedAt"`
	UpdatedAt   string `json:"UpdatedAt"`
}

type boardEntity struct {
	aztables.Entity
	Title       string `json:"Title"`
	Description string `json:"Description"`
	CreatedBy   string `json:"CreatedBy"`
	Status      string `json:"Status"`
	CreatedAt   string `json:"CreatedAt"`
	UpdatedAt   string `json:"UpdatedAt"`
}

type userEntity struct {
	aztables.Entity
	Username     string `json:"Username"`
	Name         string `json:"Name"`
	LastName     string `json:"LastName"`
	Email        string `json:"Email"`
	Position     string `json:"Position"`
	Photo        string `json:"Photo"`
	Roles        string `json:"Roles"`
	PasswordHash string `json:"PasswordHash,omitempty"`
}

// notificationEntity is partitioned by recipient.
type notificationEntity struct {
	aztables.Entity
	Title     string `json:"Title"`
	Message   string `json:"Message"`
	Read      bool   `json:"Read"`
	TaskID    string `json:"TaskId"`
	TaskTitle string `json:"TaskTitle"`
	Type      string `json:"Type"`
	ActionBy  string `json:"ActionBy"`
	CreatedAt string `json:"CreatedAt"`
	UpdatedAt string `json:"UpdatedAt"`
}

// completionEntity is partitioned by task.
type completionEntity struct {
	aztables.Entity
	BoardID     string `json:"BoardId"`
	CompletedBy string `json:"CompletedBy"`
	CompletedAt string `json:"CompletedAt"`
	Description string `json:"Description"`
	Notes       string `json:"Notes"`
	Evidence    string `json:"Evidence"`
	CreatedAt   string `json:"CreatedAt"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseTimePtr(s string) *time.Time {
	t := parseTime(s)
	if t.IsZero() {
		return nil
	}
	return &t
}

func encodeList[T any](v []T) string {
	if len(v) == 0 {
		return "[]"
	}
	data, err := sonic.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func decodeList[T any](s string) []T {
	out := []T{}
	if s == "" {
		return out
	}
	if err := sonic.UnmarshalString(s, &out); err != nil {
		return []T{}
	}
	return out
}

func toTaskEntity(t domain.Task) taskEntity {
	return taskEntity{
		Entity:      aztables.Entity{PartitionKey: taskPartition, RowKey: t.ID},
		Title:       t.Title,
		Description: t.Description,
		Priority:    string(t.Priority),
		BoardID:     t.BoardID,
		AssignedTo:  encodeList(t.AssignedTo),
		DueDate:     formatTimePtr(t.DueDate),
		Status:      string(t.Status),
		ClosedAt:    formatTimePtr(t.ClosedAt),
		CreatedAt:   formatTime(t.CreatedAt),
		UpdatedAt:   formatTime(t.UpdatedAt),
	}
}

func decodeTaskEntity(data []byte) (domain.Task, error) {
	var ent taskEntity
	if err := sonic.Unmarshal(data, &ent); err != nil {
		return domain.Task{}, err
	}
	status := domain.TaskStatus(ent.Status)
	if status == "" {
		status = domain.TaskOpen
	}
	return domain.Task{
		ID:          ent.RowKey,
		Title:       ent.Title,
		Description: ent.Description,
		Priority:    domain.Priority(ent.Priority),
		BoardID:     ent.BoardID,
		AssignedTo:  decodeList[string](ent.AssignedTo),
		DueDate:     parseTimePtr(ent.DueDate),
		Status:      status,
		ClosedAt:    parseTimePtr(ent.ClosedAt),
		CreatedAt:   parseTime(ent.CreatedAt),
		UpdatedAt:   parseTime(ent.UpdatedAt),
	}, nil
}

func toBoardEntity(b domain.Board) boardEntity {
	return boardEntity{
		Entity:      aztables.Entity{PartitionKey: boardPartition, RowKey: b.ID},
		Title:       b.Title,
		Description: b.Description,
		CreatedBy:   b.CreatedBy,
		Status:      string(b.Status),
		CreatedAt:   formatTime(b.CreatedAt),
		UpdatedAt:   formatTime(b.UpdatedAt),
	}
}

func decodeBoardEntity(data []byte) (domain.Board, error) {
	var ent boardEntity
	if err := sonic.Unmarshal(data, &ent); err != nil {
		return domain.Board{}, err
	}
	return domain.Board{
		ID:          ent.RowKey,
		Title:       ent.Title,
		Description: ent.Description,
		CreatedBy:   ent.CreatedBy,
		Status:      domain.BoardStatus(ent.Status),
		CreatedAt:   parseTime(ent.CreatedAt),
		UpdatedAt:   parseTime(ent.UpdatedAt),
	}, nil
}

func toUserEntity(u domain.User) userEntity {
	return userEntity{
		Entity:       aztables.Entity{PartitionKey: userPartition, RowKey: u.ID},
		Username:     u.Username,
		Name:         u.Name,
		LastName:     u.LastName,
		Email:        u.Email,
		Position:     u.Position,
		Photo:        u.Photo,
		Roles:        encodeList(u.Roles),
		PasswordHash: u.PasswordHash,
	}
}

func decodeUserEntity(data []byte) (domain.User, error) {
	var ent userEntity
	if err := sonic.Unmarshal(data, &ent); err != nil {
		return domain.User{}, err
	}
	return domain.User{
		ID:           ent.RowKey,
		Username:     ent.Username,
		Name:         ent.Name,
		LastName:     ent.LastName,
		Email:        ent.Email,
		Position:     ent.Position,
		Photo:        ent.Photo,
		Roles:        decodeList[domain.Role](ent.Roles),
		PasswordHash: ent.PasswordHash,
	}, nil
}

func toNotificationEntity(n domain.Notification) notificationEntity {
	return notificationEntity{
		Entity:    aztables.Entity{PartitionKey: n.UserID, RowKey: n.ID},
		Title:     n.Title,
		Message:   n.Message,
		Read:      n.Read,
		TaskID:    n.TaskID,
		TaskTitle: n.TaskTitle,
		Type:      string(n.Type),
		ActionBy:  n.ActionBy,
		CreatedAt: formatTime(n.CreatedAt),
		UpdatedAt: formatTime(n.UpdatedAt),
	}
}

func decodeNotificationEntity(data []byte) (domain.Notification, error) {
	var ent notificationEntity
	if err := sonic.Unmarshal(data, &ent); err != nil {
		return domain.Notification{}, err
	}
	return domain.Notification{
		ID:        ent.RowKey,
		UserID:    ent.PartitionKey,
		Title:     ent.Title,
		Message:   ent.Message,
		Read:      ent.Read,
		TaskID:    ent.TaskID,
		TaskTitle: ent.TaskTitle,
		Type:      domain.NotificationType(ent.Type),
		ActionBy:  ent.ActionBy,
		CreatedAt: parseTime(ent.CreatedAt),
		UpdatedAt: parseTime(ent.UpdatedAt),
	}, nil
}

func toCompletionEntity(c domain.TaskCompletion) completionEntity {
	return completionEntity{
		Entity:      aztables.Entity{PartitionKey: c.TaskID, RowKey: c.ID},
		BoardID:     c.BoardID,
		CompletedBy: c.CompletedBy,
		CompletedAt: formatTime(c.CompletedAt),
		Description: c.Description,
		Notes:       c.Notes,
		Evidence:    encodeList(c.Evidence),
		CreatedAt:   formatTime(c.CreatedAt),
	}
}

func decodeCompletionEntity(data []byte) (domain.TaskCompletion, error) {
	var ent completionEntity
	if err := sonic.Unmarshal(data, &ent); err != nil {
		return domain.TaskCompletion{}, err
	}
	return domain.TaskCompletion{
		ID:          ent.RowKey,
		TaskID:      ent.PartitionKey,
		BoardID:     ent.BoardID,
		CompletedBy: ent.CompletedBy,
		CompletedAt: parseTime(ent.CompletedAt),
		Description: ent.Description,
		Notes:       ent.Notes,
		Evidence:    decodeList[string](ent.Evidence),
		CreatedAt:   parseTime(ent.CreatedAt),
	}, nil
}
