package domain

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type BoardService struct {
	boards BoardStore
	tasks  TaskStore
	users  UserStore
	events BoardEvents
	logger *log.Logger
	now    func() time.Time
	newID  func() string
}

// BoardTask is a task with its assignees resolved to users.
type BoardTask struct {
	Task
	Assignees []User `json:"assignees"`
}

// BoardWithTasks is an active board together with every task placed on it.
type BoardWithTasks struct {
	Board
	Tasks []BoardTask `json:"tasks"`
}

func NewBoardService(boards BoardStore, tasks TaskStore, users UserStore, events BoardEvents, logger *log.Logger) *BoardService {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &BoardService{
		boards: boards,
		tasks:  tasks,
		users:  users,
		events: events,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Create adds an ACTIVE board. Titles are unique among active boards.
func (s *BoardService) Create(ctx context.Context, title, description string) (Board, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Board{}, fmt.Errorf("board title: %w", ErrValidation)
	}
	existing, err := s.boards.ListBoards(ctx, BoardFilter{Status: BoardActive, Title: title})
	if err != nil {
		return Board{}, err
	}
	if len(existing) > 0 {
		return Board{}, fmt.Errorf("board %q: %w", title, ErrConflict)
	}
	now := s.now().UTC()
	board := Board{
		ID:          s.newID(),
		Title:       title,
		Description: description,
		CreatedBy:   ActorFromContext(ctx),
		Status:      BoardActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.boards.SaveBoard(ctx, board); err != nil {
		return Board{}, fmt.Errorf("save board: %w", err)
	}
	s.logger.WithFields(log.Fields{"board": board.ID, "title": board.Title}).Info("board created")
	if s.events != nil {
		s.events.NotifyBoardCreated(ctx, board)
	}
	return board, nil
}

// Update changes the title and description of a board. The new title must not
// clash with another active board.
func (s *BoardService) Update(ctx context.Context, id, title, description string) (Board, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Board{}, fmt.Errorf("board title: %w", ErrValidation)
	}
	board, err := s.boards.GetBoard(ctx, id)
	if err != nil {
		return Board{}, err
	}
	if board == nil {
		return Board{}, fmt.Errorf("board %s: %w", id, ErrNotFound)
	}
	if title != board.Title {
		existing, err := s.boards.ListBoards(ctx, BoardFilter{Status: BoardActive, Title: title})
		if err != nil {
			return Board{}, err
		}
		for _, b := range existing {
			if b.ID != id {
				return Board{}, fmt.Errorf("board %q: %w", title, ErrConflict)
			}
		}
	}
	board.Title = title
	board.Description = description
	board.UpdatedAt = s.now().UTC()
	if err := s.boards.SaveBoard(ctx, *board); err != nil {
		return Board{}, fmt.Errorf("save board: %w", err)
	}
	s.logger.WithFields(log.Fields{"board": board.ID, "title": board.Title}).Info("board updated")
	return *board, nil
}

// Deactivate soft deletes the board. Its tasks are left in place.
func (s *BoardService) Deactivate(ctx context.Context, id string) (Board, error) {
	board, err := s.boards.GetBoard(ctx, id)
	if err != nil {
		return Board{}, err
	}
	if board == nil {
		return Board{}, fmt.Errorf("board %s: %w", id, ErrNotFound)
	}
	if board.Status == BoardInactive {
		return *board, nil
	}
	board.Status = BoardInactive
	board.UpdatedAt = s.now().UTC()
	if err := s.boards.SaveBoard(ctx, *board); err != nil {
		return Board{}, err
	}
	return *board, nil
}

func (s *BoardService) ListActive(ctx context.Context) ([]Board, error) {
	boards, err := s.boards.ListBoards(ctx, BoardFilter{Status: BoardActive})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(boards, func(i, j int) bool { return boards[i].Title < boards[j].Title })
	return boards, nil
}

// WithTasks returns an active board with its tasks. Inactive boards are
// reported as not found.
func (s *BoardService) WithTasks(ctx context.Context, id string) (BoardWithTasks, error) {
	board, err := s.boards.GetBoard(ctx, id)
	if err != nil {
		return BoardWithTasks{}, err
	}
	if board == nil || board.Status != BoardActive {
		return BoardWithTasks{}, fmt.Errorf("board %s: %w", id, ErrNotFound)
	}
	resolve := s.userResolver(ctx)
	return s.withTasks(ctx, *board, resolve)
}

// ListActiveWithTasks loads every active board, sorted by title, with its tasks.
func (s *BoardService) ListActiveWithTasks(ctx context.Context) ([]BoardWithTasks, error) {
	boards, err := s.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	resolve := s.userResolver(ctx)
	out := make([]BoardWithTasks, 0, len(boards))
	for _, b := range boards {
		bt, err := s.withTasks(ctx, b, resolve)
		if err != nil {
			return nil, err
		}
		out = append(out, bt)
	}
	return out, nil
}

func (s *BoardService) withTasks(ctx context.Context, board Board, resolve func(string) (User, bool)) (BoardWithTasks, error) {
	tasks, err := s.tasks.ListTasks(ctx, TaskFilter{BoardID: board.ID})
	if err != nil {
		return BoardWithTasks{}, fmt.Errorf("list tasks: %w", err)
	}
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].CreatedAt.Before(tasks[j].CreatedAt) })
	out := BoardWithTasks{Board: board, Tasks: make([]BoardTask, 0, len(tasks))}
	for _, t := range tasks {
		bt := BoardTask{Task: t, Assignees: make([]User, 0, len(t.AssignedTo))}
		for _, uid := range t.AssignedTo {
			// assignee ids can outlive their users
			if u, ok := resolve(uid); ok {
				bt.Assignees = append(bt.Assignees, u)
			}
		}
		out.Tasks = append(out.Tasks, bt)
	}
	return out, nil
}

// userResolver memoizes user lookups for the duration of one read.
func (s *BoardService) userResolver(ctx context.Context) func(string) (User, bool) {
	seen := map[string]*User{}
	return func(id string) (User, bool) {
		u, ok := seen[id]
		if !ok {
			var err error
			if u, err = s.users.GetUser(ctx, id); err != nil {
				s.logger.WithError(err).WithFields(log.Fields{"user": id}).Warn("assignee lookup failed")
				u = nil
			}
			seen[id] = u
		}
		if u == nil {
			return User{}, false
		}
		return *u, true
	}
}
