package domain

import (
	"context"
	"time"
)

// Lookups return (nil, nil) when the entity does not exist.

type TaskFilter struct {
	BoardID    string
	AssignedTo string
}

type TaskStore interface {
	GetTask(ctx context.Context, id string) (*Task, error)
	ListTasks(ctx context.Context, f TaskFilter) ([]Task, error)
	SaveTask(ctx context.Context, t Task) error
}

type BoardFilter struct {
	Status BoardStatus
	Title  string
}

type BoardStore interface {
	GetBoard(ctx context.Context, id string) (*Board, error)
	ListBoards(ctx context.Context, f BoardFilter) ([]Board, error)
	SaveBoard(ctx context.Context, b Board) error
}

type UserStore interface {
	GetUser(ctx context.Context, id string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	SaveUser(ctx context.Context, u User) error
}

type NotificationFilter struct {
	UserID string
	// Read restricts the result to read or unread entries when set.
	Read *bool
}

type NotificationStore interface {
	GetNotification(ctx context.Context, id string) (*Notification, error)
	ListNotifications(ctx context.Context, f NotificationFilter) ([]Notification, error)
	SaveNotification(ctx context.Context, n Notification) error
	// SaveNotifications persists a batch owned by a single user.
	SaveNotifications(ctx context.Context, userID string, ns []Notification) error
	DeleteNotification(ctx context.Context, n Notification) error
	DeleteNotifications(ctx context.Context, userID string, ns []Notification) error
}

type CompletionFilter struct {
	TaskIDs     []string
	BoardID     string
	CompletedBy string
	From        *time.Time
	To          *time.Time
}

type CompletionStore interface {
	SaveCompletion(ctx context.Context, c TaskCompletion) error
	ListCompletions(ctx context.Context, f CompletionFilter) ([]TaskCompletion, error)
}

// RealtimeChannel pushes payloads to connected clients.
type RealtimeChannel interface {
	// Publish sends to a shared topic.
	Publish(ctx context.Context, topic string, payload any) error
	// PublishToSubject sends to a single user's private queue.
	PublishToSubject(ctx context.Context, userID string, payload any) error
}

// EmailChannel hands off an email for asynchronous delivery.
type EmailChannel interface {
	Send(template, recipient string, params map[string]string)
}

// Notifier creates and delivers notifications.
type Notifier interface {
	Dispatch(ctx context.Context, d NotificationDraft) (Notification, error)
}

// BoardEvents announces board level changes to every connected client.
type BoardEvents interface {
	NotifyTaskCreated(ctx context.Context, boardID string, task Task)
	NotifyTaskUpdated(ctx context.Context, taskID, boardID string, task Task)
	NotifyTaskMoved(ctx context.Context, taskID, fromBoardID, toBoardID string, newIndex int, task Task)
	NotifyBoardCreated(ctx context.Context, board Board)
}
