package api

import (
	"context"
	"time"

	"board-sync/domain"
)

type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

type TaskOps interface {
	Create(ctx context.Context, spec domain.TaskSpec) (domain.Task, error)
	Update(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error)
	Move(ctx context.Context, id, fromBoardID, toBoardID string, newIndex int) (domain.Task, error)
}

type BoardOps interface {
	Create(ctx context.Context, title, description string) (domain.Board, error)
	Update(ctx context.Context, id, title, description string) (domain.Board, error)
	Deactivate(ctx context.Context, id string) (domain.Board, error)
	ListActive(ctx context.Context) ([]domain.Board, error)
	WithTasks(ctx context.Context, id string) (domain.BoardWithTasks, error)
	ListActiveWithTasks(ctx context.Context) ([]domain.BoardWithTasks, error)
}

type UserOps interface {
	Save(ctx context.Context, u domain.User) (domain.User, error)
	Get(ctx context.Context, id string) (domain.User, error)
}

type CompletionOps interface {
	Create(ctx context.Context, spec domain.CompletionSpec) (domain.TaskCompletion, error)
	ByTask(ctx context.Context, taskID string) ([]domain.CompletionView, error)
	ByBoard(ctx context.Context, boardID string) ([]domain.CompletionView, error)
	ByUser(ctx context.Context, userID string) ([]domain.CompletionView, error)
	ByDateRange(ctx context.Context, from, to time.Time) ([]domain.CompletionView, error)
}

type NotificationOps interface {
	List(ctx context.Context, userID string, unreadOnly bool) ([]domain.Notification, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, id string) (domain.Notification, error)
	MarkAllRead(ctx context.Context, userID string) (int, error)
	Delete(ctx context.Context, id string) error
	DeleteRead(ctx context.Context, userID string) (int, error)
}

type ReportOps interface {
	Generate(ctx context.Context, q domain.ReportQuery) (domain.Report, error)
	Dashboard(ctx context.Context) (domain.Report, error)
}

// Services bundles the operations exposed over HTTP.
type Services struct {
	Tasks         TaskOps
	Boards        BoardOps
	Completions   CompletionOps
	Notifications NotificationOps
	Reports       ReportOps
	Users         UserOps
}

type createBoardRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type moveTaskRequest struct {
	FromBoardID string `json:"fromBoardId"`
	ToBoardID   string `json:"toBoardId"`
	NewIndex    int    `json:"newIndex"`
}

type errorResponse struct {
	Error string `json:"error"`
}
