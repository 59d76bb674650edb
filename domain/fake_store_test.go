package domain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
)

var errStoreDown = errors.New("store unavailable")

// fakeStore keeps every entity in memory and counts writes.
type fakeStore struct {
	mu            sync.Mutex
	tasks         map[string]Task
	boards        map[string]Board
	users         map[string]User
	notifications map[string]Notification
	completions   []TaskCompletion

	taskWrites         int
	notificationWrites int
	batchCalls         int
	failNotifications  bool
	failBatch          bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tasks:         map[string]Task{},
		boards:        map[string]Board{},
		users:         map[string]User{},
		notifications: map[string]Notification{},
	}
}

func (f *fakeStore) GetTask(ctx context.Context, id string) (*Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return nil, nil
	}
	t.AssignedTo = append([]string(nil), t.AssignedTo...)
	return &t, nil
}

func (f *fakeStore) ListTasks(ctx context.Context, flt TaskFilter) ([]Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Task
	for _, t := range f.tasks {
		if flt.BoardID != "" && t.BoardID != flt.BoardID {
			continue
		}
		if flt.AssignedTo != "" && !contains(t.AssignedTo, flt.AssignedTo) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeStore) SaveTask(ctx context.Context, t Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[t.ID] = t
	f.taskWrites++
	return nil
}

func (f *fakeStore) GetBoard(ctx context.Context, id string) (*Board, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.boards[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (f *fakeStore) ListBoards(ctx context.Context, flt BoardFilter) ([]Board, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Board
	for _, b := range f.boards {
		if flt.Status != "" && b.Status != flt.Status {
			continue
		}
		if flt.Title != "" && b.Title != flt.Title {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (f *fakeStore) SaveBoard(ctx context.Context, b Board) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.boards[b.ID] = b
	return nil
}

func (f *fakeStore) GetUser(ctx context.Context, id string) (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (f *fakeStore) ListUsers(ctx context.Context) ([]User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []User
	for _, u := range f.users {
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeStore) SaveUser(ctx context.Context, u User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.ID] = u
	return nil
}

func (f *fakeStore) GetNotification(ctx context.Context, id string) (*Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.notifications[id]
	if !ok {
		return nil, nil
	}
	return &n, nil
}

func (f *fakeStore) ListNotifications(ctx context.Context, flt NotificationFilter) ([]Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Notification
	for _, n := range f.notifications {
		if n.UserID != flt.UserID {
			continue
		}
		if flt.Read != nil && n.Read != *flt.Read {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (f *fakeStore) SaveNotification(ctx context.Context, n Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNotifications {
		return errStoreDown
	}
	f.notifications[n.ID] = n
	f.notificationWrites++
	return nil
}

func (f *fakeStore) SaveNotifications(ctx context.Context, userID string, ns []Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchCalls++
	if f.failBatch {
		return errStoreDown
	}
	for _, n := range ns {
		if n.UserID != userID {
			return fmt.Errorf("notification %s not owned by %s", n.ID, userID)
		}
		f.notifications[n.ID] = n
		f.notificationWrites++
	}
	return nil
}

func (f *fakeStore) DeleteNotification(ctx context.Context, n Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.notifications, n.ID)
	return nil
}

func (f *fakeStore) DeleteNotifications(ctx context.Context, userID string, ns []Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range ns {
		delete(f.notifications, n.ID)
	}
	return nil
}

func (f *fakeStore) SaveCompletion(ctx context.Context, c TaskCompletion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completions = append(f.completions, c)
	return nil
}

func (f *fakeStore) ListCompletions(ctx context.Context, flt CompletionFilter) ([]TaskCompletion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []TaskCompletion
	for _, c := range f.completions {
		if len(flt.TaskIDs) > 0 && !contains(flt.TaskIDs, c.TaskID) {
			continue
		}
		if flt.BoardID != "" && c.BoardID != flt.BoardID {
			continue
		}
		if flt.CompletedBy != "" && c.CompletedBy != flt.CompletedBy {
			continue
		}
		if flt.From != nil && c.CompletedAt.Before(*flt.From) {
			continue
		}
		if flt.To != nil && c.CompletedAt.After(*flt.To) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeStore) notificationsFor(userID string, typ NotificationType) []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Notification
	for _, n := range f.notifications {
		if n.UserID == userID && n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

type published struct {
	topic   string
	subject string
	payload any
}

type fakeChannel struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (c *fakeChannel) Publish(ctx context.Context, topic string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, published{topic: topic, payload: payload})
	return nil
}

func (c *fakeChannel) PublishToSubject(ctx context.Context, subject string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, published{subject: subject, payload: payload})
	return nil
}

func (c *fakeChannel) boardUpdates() []BoardUpdate {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []BoardUpdate
	for _, p := range c.sent {
		if upd, ok := p.payload.(BoardUpdate); ok && p.topic == BoardUpdatesTopic {
			out = append(out, upd)
		}
	}
	return out
}

type sentEmail struct {
	template  string
	recipient string
	params    map[string]string
}

type fakeEmail struct {
	mu   sync.Mutex
	sent []sentEmail
}

func (e *fakeEmail) Send(template, recipient string, params map[string]string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sent = append(e.sent, sentEmail{template: template, recipient: recipient, params: params})
}

func (e *fakeEmail) count(template string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, s := range e.sent {
		if s.template == template {
			n++
		}
	}
	return n
}

// fixture wires every service over one fakeStore.
type fixture struct {
	store   *fakeStore
	channel *fakeChannel
	email   *fakeEmail
	hook    *test.Hook

	notifications *NotificationService
	broadcaster   *BoardBroadcaster
	tasks         *TaskService
	boards        *BoardService
	completions   *CompletionService
	reports       *ReportService
}

var fixedNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func newFixture() *fixture {
	logger, hook := test.NewNullLogger()
	store := newFakeStore()
	channel := &fakeChannel{}
	email := &fakeEmail{}
	seq := 0
	ids := func() string {
		seq++
		return fmt.Sprintf("id-%03d", seq)
	}
	clock := func() time.Time { return fixedNow }

	f := &fixture{store: store, channel: channel, email: email, hook: hook}
	f.notifications = NewNotificationService(store, channel, logger)
	f.notifications.newID, f.notifications.now = ids, clock
	f.broadcaster = NewBoardBroadcaster(channel, logger)
	f.broadcaster.now = clock
	f.tasks = NewTaskService(store, store, store, f.notifications, email, f.broadcaster, logger)
	f.tasks.newID, f.tasks.now = ids, clock
	f.boards = NewBoardService(store, store, store, f.broadcaster, logger)
	f.boards.newID, f.boards.now = ids, clock
	f.completions = NewCompletionService(store, store, store, f.notifications, email, f.broadcaster, logger)
	f.completions.newID, f.completions.now = ids, clock
	f.reports = NewReportService(store, store, store, store, logger)
	f.reports.newID, f.reports.now = ids, clock
	return f
}

func (f *fixture) addUser(id, name, lastName string) {
	f.store.users[id] = User{ID: id, Username: id, Name: name, LastName: lastName, Email: id + "@example.com", Roles: []Role{RoleTechnician}}
}

func (f *fixture) addBoard(id, title string) {
	f.store.boards[id] = Board{ID: id, Title: title, Status: BoardActive, CreatedAt: fixedNow}
}
