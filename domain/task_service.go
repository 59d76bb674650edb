package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Email templates handed to the EmailChannel.
const (
	EmailTaskAssigned  = "task-assigned"
	EmailTaskUpdated   = "task-updated"
	EmailTaskMoved     = "task-moved"
	EmailTaskCompleted = "task-completed"
)

// TaskService coordinates task mutations with notification fan-out and
// board broadcasts.
type TaskService struct {
	tasks    TaskStore
	boards   BoardStore
	users    UserStore
	notifier Notifier
	email    EmailChannel
	events   BoardEvents
	logger   *log.Logger
	now      func() time.Time
	newID    func() string
}

func NewTaskService(tasks TaskStore, boards BoardStore, users UserStore, notifier Notifier, email EmailChannel, events BoardEvents, logger *log.Logger) *TaskService {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &TaskService{
		tasks:    tasks,
		boards:   boards,
		users:    users,
		notifier: notifier,
		email:    email,
		events:   events,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Create persists a new task and notifies every assignee. The board is not
// checked for existence.
func (s *TaskService) Create(ctx context.Context, spec TaskSpec) (Task, error) {
	if spec.Title == "" {
		return Task{}, fmt.Errorf("task title: %w", ErrValidation)
	}
	if err := ValidatePriority(spec.Priority); err != nil {
		return Task{}, err
	}
	now := s.now().UTC()
	task := Task{
		ID:          s.newID(),
		Title:       spec.Title,
		Description: spec.Description,
		Priority:    spec.Priority,
		BoardID:     spec.BoardID,
		AssignedTo:  uniqueIDs(spec.AssignedTo),
		DueDate:     spec.DueDate,
		Status:      TaskOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.tasks.SaveTask(ctx, task); err != nil {
		return Task{}, fmt.Errorf("save task: %w", err)
	}
	s.logger.WithFields(log.Fields{"task": task.ID, "board": task.BoardID, "assignees": len(task.AssignedTo)}).Info("task created")

	actor := ActorFromContext(ctx)
	for _, uid := range task.AssignedTo {
		s.notifyAssigned(ctx, task, uid, actor)
	}
	if s.events != nil {
		s.events.NotifyTaskCreated(ctx, task.BoardID, task)
	}
	return task, nil
}

// Update applies the patch and persists the task once. A board change to an
// unknown board fails before anything is written.
func (s *TaskService) Update(ctx context.Context, id string, patch TaskPatch) (Task, error) {
	if patch.Priority != nil {
		if err := ValidatePriority(*patch.Priority); err != nil {
			return Task{}, err
		}
	}
	task, err := s.loadTask(ctx, id)
	if err != nil {
		return Task{}, err
	}
	prev := append([]string(nil), task.AssignedTo...)

	var changes Changes
	if patch.Title != nil && *patch.Title != task.Title {
		changes = append(changes, FieldChange{Field: FieldTitle, Old: task.Title, New: *patch.Title})
		task.Title = *patch.Title
	}
	if patch.Description != nil && *patch.Description != task.Description {
		changes = append(changes, FieldChange{Field: FieldDescription, Old: task.Description, New: *patch.Description})
		task.Description = *patch.Description
	}
	if patch.Priority != nil && *patch.Priority != task.Priority {
		changes = append(changes, FieldChange{Field: FieldPriority, Old: string(task.Priority), New: string(*patch.Priority)})
		task.Priority = *patch.Priority
	}
	if patch.BoardID != nil && *patch.BoardID != task.BoardID {
		if _, err := s.loadBoard(ctx, *patch.BoardID); err != nil {
			return Task{}, err
		}
		changes = append(changes, FieldChange{Field: FieldBoard, Old: task.BoardID, New: *patch.BoardID})
		task.BoardID = *patch.BoardID
	}
	if patch.DueDate != nil && (task.DueDate == nil || !patch.DueDate.Equal(*task.DueDate)) {
		changes = append(changes, FieldChange{Field: FieldDueDate, Old: formatDate(task.DueDate), New: formatDate(patch.DueDate)})
		due := *patch.DueDate
		task.DueDate = &due
	}

	var added []string
	if patch.AssignedTo != nil {
		next := uniqueIDs(patch.AssignedTo)
		added = difference(next, prev)
		removed := difference(prev, next)
		if len(added) > 0 || len(removed) > 0 {
			changes = append(changes, FieldChange{Field: FieldAssignedTo, Old: fmt.Sprint(prev), New: fmt.Sprint(next)})
			task.AssignedTo = next
		}
	}

	task.UpdatedAt = s.now().UTC()
	if err := s.tasks.SaveTask(ctx, *task); err != nil {
		return Task{}, fmt.Errorf("save task: %w", err)
	}
	s.logger.WithFields(log.Fields{"task": task.ID, "changes": len(changes)}).Info("task updated")

	actor := ActorFromContext(ctx)
	for _, uid := range added {
		s.notifyAssigned(ctx, *task, uid, actor)
	}
	if len(changes) > 0 {
		summary := changes.String()
		for _, uid := range task.AssignedTo {
			if uid == actor {
				continue
			}
			s.notifyUpdated(ctx, *task, uid, actor, summary)
		}
	}
	if s.events != nil {
		s.events.NotifyTaskUpdated(ctx, task.ID, task.BoardID, *task)
	}
	return *task, nil
}

// Move relocates the task to another board. fromBoardID and newIndex are
// forwarded to the broadcast only.
func (s *TaskService) Move(ctx context.Context, id, fromBoardID, toBoardID string, newIndex int) (Task, error) {
	task, err := s.loadTask(ctx, id)
	if err != nil {
		return Task{}, err
	}
	dest, err := s.loadBoard(ctx, toBoardID)
	if err != nil {
		return Task{}, err
	}
	origin := task.BoardID
	task.BoardID = dest.ID
	task.UpdatedAt = s.now().UTC()
	if err := s.tasks.SaveTask(ctx, *task); err != nil {
		return Task{}, fmt.Errorf("save task: %w", err)
	}
	s.logger.WithFields(log.Fields{"task": task.ID, "from": origin, "to": dest.ID, "index": newIndex}).Info("task moved")

	actor := ActorFromContext(ctx)
	fromName := s.boardTitle(ctx, origin)
	for _, uid := range task.AssignedTo {
		if uid == actor {
			continue
		}
		s.notifyMoved(ctx, *task, uid, actor, fromName, dest.Title)
	}
	if s.events != nil {
		s.events.NotifyTaskMoved(ctx, task.ID, fromBoardID, dest.ID, newIndex, *task)
	}
	return *task, nil
}

func (s *TaskService) loadTask(ctx context.Context, id string) (*Task, error) {
	task, err := s.tasks.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return task, nil
}

func (s *TaskService) loadBoard(ctx context.Context, id string) (*Board, error) {
	board, err := s.boards.GetBoard(ctx, id)
	if err != nil {
		return nil, err
	}
	if board == nil {
		return nil, fmt.Errorf("board %s: %w", id, ErrNotFound)
	}
	return board, nil
}

func (s *TaskService) boardTitle(ctx context.Context, id string) string {
	board, err := s.boards.GetBoard(ctx, id)
	if err != nil || board == nil {
		return id
	}
	return board.Title
}

// recipient resolves a fan-out target. Unknown users are skipped.
func (s *TaskService) recipient(ctx context.Context, uid string) (*User, bool) {
	user, err := s.users.GetUser(ctx, uid)
	if err != nil {
		s.logger.WithError(err).WithField("user", uid).Error("resolve recipient")
		return nil, false
	}
	if user == nil {
		s.logger.WithField("user", uid).Debug("skipping unknown recipient")
		return nil, false
	}
	return user, true
}

func (s *TaskService) notifyAssigned(ctx context.Context, task Task, uid, actor string) {
	user, ok := s.recipient(ctx, uid)
	if !ok {
		return
	}
	draft := NotificationDraft{
		UserID:    uid,
		Title:     "New task assigned",
		Message:   fmt.Sprintf("You have been assigned to task: %s", task.Title),
		TaskID:    task.ID,
		TaskTitle: task.Title,
		Type:      TaskAssigned,
		ActionBy:  actor,
	}
	if !s.dispatch(ctx, draft) {
		return
	}
	s.sendEmail(EmailTaskAssigned, user, map[string]string{
		"taskTitle":   task.Title,
		"description": task.Description,
		"priority":    string(task.Priority),
		"dueDate":     formatDate(task.DueDate),
	})
}

func (s *TaskService) notifyUpdated(ctx context.Context, task Task, uid, actor, summary string) {
	user, ok := s.recipient(ctx, uid)
	if !ok {
		return
	}
	draft := NotificationDraft{
		UserID:    uid,
		Title:     "Task updated",
		Message:   fmt.Sprintf("Task %s was updated: %s", task.Title, summary),
		TaskID:    task.ID,
		TaskTitle: task.Title,
		Type:      TaskUpdated,
		ActionBy:  actor,
	}
	if !s.dispatch(ctx, draft) {
		return
	}
	s.sendEmail(EmailTaskUpdated, user, map[string]string{
		"taskTitle": task.Title,
		"changes":   summary,
	})
}

func (s *TaskService) notifyMoved(ctx context.Context, task Task, uid, actor, fromBoard, toBoard string) {
	user, ok := s.recipient(ctx, uid)
	if !ok {
		return
	}
	draft := NotificationDraft{
		UserID:    uid,
		Title:     "Task moved",
		Message:   fmt.Sprintf("Task %s was moved to %s", task.Title, toBoard),
		TaskID:    task.ID,
		TaskTitle: task.Title,
		Type:      TaskMoved,
		ActionBy:  actor,
	}
	if !s.dispatch(ctx, draft) {
		return
	}
	s.sendEmail(EmailTaskMoved, user, map[string]string{
		"taskTitle": task.Title,
		"fromBoard": fromBoard,
		"toBoard":   toBoard,
	})
}

// dispatch reports whether the notification was persisted.
func (s *TaskService) dispatch(ctx context.Context, d NotificationDraft) bool {
	if _, err := s.notifier.Dispatch(ctx, d); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{"user": d.UserID, "task": d.TaskID, "type": d.Type}).Error("dispatch notification")
		return false
	}
	return true
}

func (s *TaskService) sendEmail(template string, user *User, params map[string]string) {
	if s.email == nil || user.Email == "" {
		return
	}
	params["name"] = user.DisplayName()
	s.email.Send(template, user.Email, params)
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
