package domain

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	unknownUser  = "unknown user"
	unknownBoard = "unknown board"

	dashboardWindow = 30 * 24 * time.Hour
)

type ReportType string

const (
	ReportGeneral   ReportType = "GENERAL"
	ReportByUser    ReportType = "BY_USER"
	ReportByBoard   ReportType = "BY_BOARD"
	ReportDashboard ReportType = "DASHBOARD"
)

// ReportQuery selects the window and optional scope of a report.
type ReportQuery struct {
	Start   time.Time
	End     time.Time
	Type    ReportType
	UserID  string
	BoardID string
}

type Report struct {
	ReportID        string        `json:"reportId"`
	Type            ReportType    `json:"type"`
	StartDate       time.Time     `json:"startDate"`
	EndDate         time.Time     `json:"endDate"`
	GeneratedAt     time.Time     `json:"generatedAt"`
	Summary         ReportSummary `json:"summary"`
	Tasks           []TaskDetail  `json:"tasks"`
	AvailableUsers  []UserOption  `json:"availableUsers"`
	AvailableBoards []BoardOption `json:"availableBoards"`
}

type ReportSummary struct {
	TotalTasks      int               `json:"totalTasks"`
	CompletedTasks  int               `json:"completedTasks"`
	PendingTasks    int               `json:"pendingTasks"`
	TotalEvidences  int               `json:"totalEvidences"`
	UserPerformance []UserPerformance `json:"userPerformance"`
	BoardStatistics []BoardStatistics `json:"boardStatistics"`
}

type UserPerformance struct {
	UserID            string `json:"userId"`
	UserName          string `json:"userName"`
	TasksCompleted    int    `json:"tasksCompleted"`
	EvidencesProvided int    `json:"evidencesProvided"`
	// AverageCompletionTime is the mean of whole hours between task creation and completion.
	AverageCompletionTime float64 `json:"averageCompletionTime"`
}

type BoardStatistics struct {
	BoardID        string  `json:"boardId"`
	BoardName      string  `json:"boardName"`
	TotalTasks     int     `json:"totalTasks"`
	CompletedTasks int     `json:"completedTasks"`
	CompletionRate float64 `json:"completionRate"`
}

type TaskDetail struct {
	TaskID          string     `json:"taskId"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	Priority        Priority   `json:"priority,omitempty"`
	BoardID         string     `json:"boardId"`
	BoardName       string     `json:"boardName"`
	AssignedTo      []string   `json:"assignedTo"`
	AssignedToNames []string   `json:"assignedToNames"`
	CompletedBy     string     `json:"completedBy,omitempty"`
	CompletedByName string     `json:"completedByName,omitempty"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	ClosedAt        *time.Time `json:"closedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	Status          TaskStatus `json:"status"`
	EvidenceURLs    []string   `json:"evidenceUrls"`

	CompletionDescription string `json:"completionDescription,omitempty"`
	Notes                 string `json:"notes,omitempty"`
}

type UserOption struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

type BoardOption struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	TaskCount int    `json:"taskCount"`
}

// ReportService reduces tasks, completions, boards and users into reports.
// It never writes.
type ReportService struct {
	tasks       TaskStore
	completions CompletionStore
	boards      BoardStore
	users       UserStore
	logger      *log.Logger
	now         func() time.Time
	newID       func() string
}

func NewReportService(tasks TaskStore, completions CompletionStore, boards BoardStore, users UserStore, logger *log.Logger) *ReportService {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &ReportService{
		tasks:       tasks,
		completions: completions,
		boards:      boards,
		users:       users,
		logger:      logger,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// Dashboard reports on the last 30 days.
func (s *ReportService) Dashboard(ctx context.Context) (Report, error) {
	end := s.now().UTC()
	return s.Generate(ctx, ReportQuery{Start: end.Add(-dashboardWindow), End: end, Type: ReportDashboard})
}

func (s *ReportService) Generate(ctx context.Context, q ReportQuery) (Report, error) {
	if q.End.Before(q.Start) {
		return Report{}, fmt.Errorf("report window end before start: %w", ErrValidation)
	}
	switch {
	case q.UserID != "":
		q.Type = ReportByUser
	case q.BoardID != "":
		q.Type = ReportByBoard
	case q.Type == "":
		q.Type = ReportGeneral
	}

	candidates, err := s.tasks.ListTasks(ctx, TaskFilter{AssignedTo: q.UserID, BoardID: q.BoardID})
	if err != nil {
		return Report{}, fmt.Errorf("list tasks: %w", err)
	}
	completed := completedWithin(candidates, q.Start, q.End)

	var completions []TaskCompletion
	if len(completed) > 0 {
		ids := make([]string, len(completed))
		for i, t := range completed {
			ids[i] = t.ID
		}
		completions, err = s.completions.ListCompletions(ctx, CompletionFilter{TaskIDs: ids})
		if err != nil {
			return Report{}, fmt.Errorf("list completions: %w", err)
		}
	}

	lk, err := s.lookups(ctx)
	if err != nil {
		return Report{}, err
	}

	allTasks := candidates
	if q.UserID != "" || q.BoardID != "" {
		if allTasks, err = s.tasks.ListTasks(ctx, TaskFilter{}); err != nil {
			return Report{}, fmt.Errorf("list tasks: %w", err)
		}
	}

	summary := ReportSummary{
		TotalTasks:      len(candidates),
		CompletedTasks:  len(completed),
		PendingTasks:    len(candidates) - len(completed),
		TotalEvidences:  countEvidence(completions),
		UserPerformance: userPerformance(completions, completed, lk),
		BoardStatistics: boardStatistics(candidates, completed, lk),
	}
	report := Report{
		ReportID:        s.newID(),
		Type:            q.Type,
		StartDate:       q.Start,
		EndDate:         q.End,
		GeneratedAt:     s.now().UTC(),
		Summary:         summary,
		Tasks:           taskDetails(completed, completions, lk),
		AvailableUsers:  lk.userOptions(),
		AvailableBoards: lk.boardOptions(allTasks),
	}
	s.logger.WithFields(log.Fields{
		"report":    report.ReportID,
		"type":      report.Type,
		"total":     summary.TotalTasks,
		"completed": summary.CompletedTasks,
	}).Debug("report generated")
	return report, nil
}

func (s *ReportService) GenerateForUser(ctx context.Context, userID string, start, end time.Time) (Report, error) {
	return s.Generate(ctx, ReportQuery{Start: start, End: end, UserID: userID})
}

func (s *ReportService) GenerateForBoard(ctx context.Context, boardID string, start, end time.Time) (Report, error) {
	return s.Generate(ctx, ReportQuery{Start: start, End: end, BoardID: boardID})
}

// completedWithin keeps closed tasks whose closed_at falls in [start, end].
func completedWithin(tasks []Task, start, end time.Time) []Task {
	var out []Task
	for _, t := range tasks {
		if t.Status != TaskClosed || t.ClosedAt == nil {
			continue
		}
		if t.ClosedAt.Before(start) || t.ClosedAt.After(end) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func countEvidence(cs []TaskCompletion) int {
	n := 0
	for _, c := range cs {
		n += len(c.Evidence)
	}
	return n
}

func userPerformance(completions []TaskCompletion, completed []Task, lk lookups) []UserPerformance {
	created := make(map[string]time.Time, len(completed))
	for _, t := range completed {
		created[t.ID] = t.CreatedAt
	}
	type acc struct {
		perf  UserPerformance
		hours int64
		timed int
	}
	var order []string
	groups := map[string]*acc{}
	for _, c := range completions {
		g, ok := groups[c.CompletedBy]
		if !ok {
			g = &acc{perf: UserPerformance{UserID: c.CompletedBy, UserName: lk.userName(c.CompletedBy, unknownUser)}}
			groups[c.CompletedBy] = g
			order = append(order, c.CompletedBy)
		}
		g.perf.TasksCompleted++
		g.perf.EvidencesProvided += len(c.Evidence)
		if at, ok := created[c.TaskID]; ok {
			g.hours += int64(c.CompletedAt.Sub(at) / time.Hour)
			g.timed++
		}
	}
	out := make([]UserPerformance, 0, len(order))
	for _, id := range order {
		g := groups[id]
		if g.timed > 0 {
			g.perf.AverageCompletionTime = float64(g.hours) / float64(g.timed)
		}
		out = append(out, g.perf)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TasksCompleted > out[j].TasksCompleted })
	return out
}

func boardStatistics(candidates, completed []Task, lk lookups) []BoardStatistics {
	done := make(map[string]struct{}, len(completed))
	for _, t := range completed {
		done[t.ID] = struct{}{}
	}
	var order []string
	groups := map[string]*BoardStatistics{}
	for _, t := range candidates {
		g, ok := groups[t.BoardID]
		if !ok {
			g = &BoardStatistics{BoardID: t.BoardID, BoardName: lk.boardName(t.BoardID)}
			groups[t.BoardID] = g
			order = append(order, t.BoardID)
		}
		g.TotalTasks++
		if _, ok := done[t.ID]; ok {
			g.CompletedTasks++
		}
	}
	out := make([]BoardStatistics, 0, len(order))
	for _, id := range order {
		g := groups[id]
		if g.TotalTasks > 0 {
			g.CompletionRate = float64(g.CompletedTasks) / float64(g.TotalTasks) * 100
		}
		out = append(out, *g)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CompletionRate > out[j].CompletionRate })
	return out
}

// taskDetails builds one row per completed task. When a task has several
// completions the first one in store order is used.
func taskDetails(completed []Task, completions []TaskCompletion, lk lookups) []TaskDetail {
	first := make(map[string]TaskCompletion, len(completions))
	for _, c := range completions {
		if _, ok := first[c.TaskID]; !ok {
			first[c.TaskID] = c
		}
	}
	out := make([]TaskDetail, 0, len(completed))
	for _, t := range completed {
		d := TaskDetail{
			TaskID:          t.ID,
			Title:           t.Title,
			Description:     t.Description,
			Priority:        t.Priority,
			BoardID:         t.BoardID,
			BoardName:       lk.boardName(t.BoardID),
			AssignedTo:      append([]string{}, t.AssignedTo...),
			AssignedToNames: make([]string, 0, len(t.AssignedTo)),
			ClosedAt:        t.ClosedAt,
			CreatedAt:       t.CreatedAt,
			Status:          t.Status,
			EvidenceURLs:    []string{},
		}
		for _, uid := range t.AssignedTo {
			d.AssignedToNames = append(d.AssignedToNames, lk.userName(uid, uid))
		}
		c, ok := first[t.ID]
		if ok {
			at := c.CompletedAt
			d.CompletedBy = c.CompletedBy
			d.CompletedByName = lk.userName(c.CompletedBy, unknownUser)
			d.CompletedAt = &at
			d.CompletionDescription = c.Description
			d.Notes = c.Notes
			d.EvidenceURLs = append(d.EvidenceURLs, c.Evidence...)
		}
		if d.Status == "" {
			d.Status = TaskOpen
			if ok {
				d.Status = TaskClosed
			}
		}
		out = append(out, d)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

type lookups struct {
	users  []User
	boards []Board
	byUser map[string]User
	byID   map[string]Board
}

func (s *ReportService) lookups(ctx context.Context) (lookups, error) {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return lookups{}, fmt.Errorf("list users: %w", err)
	}
	boards, err := s.boards.ListBoards(ctx, BoardFilter{})
	if err != nil {
		return lookups{}, fmt.Errorf("list boards: %w", err)
	}
	lk := lookups{users: users, boards: boards, byUser: map[string]User{}, byID: map[string]Board{}}
	for _, u := range users {
		lk.byUser[u.ID] = u
	}
	for _, b := range boards {
		lk.byID[b.ID] = b
	}
	return lk, nil
}

func (lk lookups) userName(id, fallback string) string {
	if u, ok := lk.byUser[id]; ok {
		return u.DisplayName()
	}
	return fallback
}

func (lk lookups) boardName(id string) string {
	if b, ok := lk.byID[id]; ok {
		return b.Title
	}
	return unknownBoard
}

func (lk lookups) userOptions() []UserOption {
	out := make([]UserOption, 0, len(lk.users))
	for _, u := range lk.users {
		out = append(out, UserOption{ID: u.ID, Name: u.DisplayName(), Email: u.Email})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (lk lookups) boardOptions(tasks []Task) []BoardOption {
	counts := map[string]int{}
	for _, t := range tasks {
		counts[t.BoardID]++
	}
	out := []BoardOption{}
	for _, b := range lk.boards {
		if b.Status != BoardActive {
			continue
		}
		out = append(out, BoardOption{ID: b.ID, Name: b.Title, TaskCount: counts[b.ID]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
