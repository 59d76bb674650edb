package domain

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// CompletionSpec carries the evidence submitted for a finished task.
type CompletionSpec struct {
	TaskID      string     `json:"taskId"`
	BoardID     string     `json:"boardId"`
	Description string     `json:"description"`
	Notes       string     `json:"notes"`
	Evidence    []string   `json:"evidenceUrls"`
	CompletedAt *time.Time `json:"completedAt"`
}

// CompletionView is a completion with its author's display name.
type CompletionView struct {
	TaskCompletion
	CompletedByName string `json:"completedByName"`
}

type CompletionService struct {
	completions CompletionStore
	tasks       TaskStore
	users       UserStore
	notifier    Notifier
	email       EmailChannel
	events      BoardEvents
	logger      *log.Logger
	now         func() time.Time
	newID       func() string
}

func NewCompletionService(completions CompletionStore, tasks TaskStore, users UserStore, notifier Notifier, email EmailChannel, events BoardEvents, logger *log.Logger) *CompletionService {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &CompletionService{
		completions: completions,
		tasks:       tasks,
		users:       users,
		notifier:    notifier,
		email:       email,
		events:      events,
		logger:      logger,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// Create records a completion and closes the task.
func (s *CompletionService) Create(ctx context.Context, spec CompletionSpec) (TaskCompletion, error) {
	evidence := make([]string, 0, len(spec.Evidence))
	for _, url := range spec.Evidence {
		if url != "" {
			evidence = append(evidence, url)
		}
	}
	if len(evidence) == 0 {
		return TaskCompletion{}, fmt.Errorf("completion evidence must not be empty: %w", ErrValidation)
	}
	task, err := s.tasks.GetTask(ctx, spec.TaskID)
	if err != nil {
		return TaskCompletion{}, err
	}
	if task == nil {
		return TaskCompletion{}, fmt.Errorf("task %s: %w", spec.TaskID, ErrNotFound)
	}

	now := s.now().UTC()
	completedAt := now
	if spec.CompletedAt != nil {
		completedAt = spec.CompletedAt.UTC()
	}
	boardID := spec.BoardID
	if boardID == "" {
		boardID = task.BoardID
	}
	actor := ActorFromContext(ctx)
	c := TaskCompletion{
		ID:          s.newID(),
		TaskID:      task.ID,
		BoardID:     boardID,
		CompletedBy: actor,
		CompletedAt: completedAt,
		Description: spec.Description,
		Notes:       spec.Notes,
		Evidence:    evidence,
		CreatedAt:   now,
	}
	if err := s.completions.SaveCompletion(ctx, c); err != nil {
		return TaskCompletion{}, fmt.Errorf("save completion: %w", err)
	}

	task.Status = TaskClosed
	task.ClosedAt = &completedAt
	task.UpdatedAt = now
	if err := s.tasks.SaveTask(ctx, *task); err != nil {
		return TaskCompletion{}, fmt.Errorf("close task: %w", err)
	}
	s.logger.WithFields(log.Fields{"task": task.ID, "completion": c.ID, "evidence": len(evidence)}).Info("task completed")

	for _, uid := range task.AssignedTo {
		if uid == actor {
			continue
		}
		s.notifyCompleted(ctx, *task, uid, actor)
	}
	if s.events != nil {
		s.events.NotifyTaskUpdated(ctx, task.ID, task.BoardID, *task)
	}
	return c, nil
}

func (s *CompletionService) notifyCompleted(ctx context.Context, task Task, uid, actor string) {
	user, err := s.users.GetUser(ctx, uid)
	if err != nil || user == nil {
		if err != nil {
			s.logger.WithError(err).WithField("user", uid).Error("resolve recipient")
		}
		return
	}
	_, err = s.notifier.Dispatch(ctx, NotificationDraft{
		UserID:    uid,
		Title:     "Task completed",
		Message:   fmt.Sprintf("Task %s was completed", task.Title),
		TaskID:    task.ID,
		TaskTitle: task.Title,
		Type:      TaskCompleted,
		ActionBy:  actor,
	})
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{"user": uid, "task": task.ID}).Error("dispatch notification")
		return
	}
	if s.email == nil || user.Email == "" {
		return
	}
	s.email.Send(EmailTaskCompleted, user.Email, map[string]string{
		"taskTitle":   task.Title,
		"completedBy": s.displayName(ctx, actor),
		"name":        user.DisplayName(),
	})
}

func (s *CompletionService) ByTask(ctx context.Context, taskID string) ([]CompletionView, error) {
	return s.query(ctx, CompletionFilter{TaskIDs: []string{taskID}})
}

func (s *CompletionService) ByBoard(ctx context.Context, boardID string) ([]CompletionView, error) {
	return s.query(ctx, CompletionFilter{BoardID: boardID})
}

func (s *CompletionService) ByUser(ctx context.Context, userID string) ([]CompletionView, error) {
	return s.query(ctx, CompletionFilter{CompletedBy: userID})
}

func (s *CompletionService) ByDateRange(ctx context.Context, from, to time.Time) ([]CompletionView, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("date range end before start: %w", ErrValidation)
	}
	return s.query(ctx, CompletionFilter{From: &from, To: &to})
}

// query returns matching completions, most recent first.
func (s *CompletionService) query(ctx context.Context, f CompletionFilter) ([]CompletionView, error) {
	cs, err := s.completions.ListCompletions(ctx, f)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(cs, func(i, j int) bool { return cs[i].CompletedAt.After(cs[j].CompletedAt) })
	names := map[string]string{}
	out := make([]CompletionView, 0, len(cs))
	for _, c := range cs {
		name, ok := names[c.CompletedBy]
		if !ok {
			name = s.displayName(ctx, c.CompletedBy)
			names[c.CompletedBy] = name
		}
		out = append(out, CompletionView{TaskCompletion: c, CompletedByName: name})
	}
	return out, nil
}

func (s *CompletionService) displayName(ctx context.Context, id string) string {
	u, err := s.users.GetUser(ctx, id)
	if err != nil || u == nil {
		return unknownUser
	}
	return u.DisplayName()
}
