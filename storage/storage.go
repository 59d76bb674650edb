package storage

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"

	"board-sync/domain"
)

// maxBatch is the Azure Tables limit of actions per transaction.
const maxBatch = 100

// Tables names the tables backing each entity.
type Tables struct {
	Tasks         string
	Boards        string
	Users         string
	Notifications string
	Completions   string
}

// TablesFromEnv reads the table names from TASKS_TABLE, BOARDS_TABLE,
// USERS_TABLE, NOTIFICATIONS_TABLE and COMPLETIONS_TABLE.
func TablesFromEnv() Tables {
	return Tables{
		Tasks:         os.Getenv("TASKS_TABLE"),
		Boards:        os.Getenv("BOARDS_TABLE"),
		Users:         os.Getenv("USERS_TABLE"),
		Notifications: os.Getenv("NOTIFICATIONS_TABLE"),
		Completions:   os.Getenv("COMPLETIONS_TABLE"),
	}
}

func (t Tables) Names() []string {
	return []string{t.Tasks, t.Boards, t.Users, t.Notifications, t.Completions}
}

// Complete reports whether every table is named.
func (t Tables) Complete() bool {
	for _, n := range t.Names() {
		if n == "" {
			return false
		}
	}
	return true
}

// Storage implements the domain stores on Azure Tables.
type Storage struct {
	tasks         *aztables.Client
	boards        *aztables.Client
	users         *aztables.Client
	notifications *aztables.Client
	completions   *aztables.Client
}

// New creates a Storage instance from the given connection string.
func New(connStr string, tables Tables) (*Storage, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &Storage{
		tasks:         svc.NewClient(tables.Tasks),
		boards:        svc.NewClient(tables.Boards),
		users:         svc.NewClient(tables.Users),
		notifications: svc.NewClient(tables.Notifications),
		completions:   svc.NewClient(tables.Completions),
	}, nil
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == 404
}

// quote renders an OData string literal.
func quote(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

func eq(field, v string) string { return field + " eq " + quote(v) }

func and(clauses ...string) string {
	var parts []string
	for _, c := range clauses {
		if c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, " and ")
}

func upsert(ctx context.Context, client *aztables.Client, ent any) error {
	return upsertMode(ctx, client, ent, aztables.UpdateModeReplace)
}

func upsertMode(ctx context.Context, client *aztables.Client, ent any, mode aztables.UpdateMode) error {
	data, err := sonic.Marshal(ent)
	if err != nil {
		return err
	}
	_, err = client.UpsertEntity(ctx, data, &aztables.UpsertEntityOptions{UpdateMode: mode})
	return err
}

func get(ctx context.Context, client *aztables.Client, pk, rk string) ([]byte, error) {
	resp, err := client.GetEntity(ctx, pk, rk, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return resp.Value, nil
}

func list[T any](ctx context.Context, client *aztables.Client, filter string, decode func([]byte) (T, error)) ([]T, error) {
	opts := &aztables.ListEntitiesOptions{}
	if filter != "" {
		opts.Filter = &filter
	}
	pager := client.NewListEntitiesPager(opts)
	out := []T{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			v, err := decode(e)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
	}
	return out, nil
}

// submit runs actions in transactions of at most maxBatch. All actions must
// share a partition.
func submit(ctx context.Context, client *aztables.Client, actions []aztables.TransactionAction) error {
	for start := 0; start < len(actions); start += maxBatch {
		end := start + maxBatch
		if end > len(actions) {
			end = len(actions)
		}
		if _, err := client.SubmitTransaction(ctx, actions[start:end], nil); err != nil {
			return err
		}
	}
	return nil
}

func (s *Storage) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	data, err := get(ctx, s.tasks, taskPartition, id)
	if err != nil || data == nil {
		return nil, err
	}
	t, err := decodeTaskEntity(data)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTasks filters by board server side and by assignee in memory.
func (s *Storage) ListTasks(ctx context.Context, f domain.TaskFilter) ([]domain.Task, error) {
	filter := eq("PartitionKey", taskPartition)
	if f.BoardID != "" {
		filter = and(filter, eq("BoardId", f.BoardID))
	}
	tasks, err := list(ctx, s.tasks, filter, decodeTaskEntity)
	if err != nil || f.AssignedTo == "" {
		return tasks, err
	}
	out := tasks[:0]
	for _, t := range tasks {
		for _, uid := range t.AssignedTo {
			if uid == f.AssignedTo {
				out = append(out, t)
				break
			}
		}
	}
	return out, nil
}

func (s *Storage) SaveTask(ctx context.Context, t domain.Task) error {
	return upsert(ctx, s.tasks, toTaskEntity(t))
}

func (s *Storage) GetBoard(ctx context.Context, id string) (*domain.Board, error) {
	data, err := get(ctx, s.boards, boardPartition, id)
	if err != nil || data == nil {
		return nil, err
	}
	b, err := decodeBoardEntity(data)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Storage) ListBoards(ctx context.Context, f domain.BoardFilter) ([]domain.Board, error) {
	filter := eq("PartitionKey", boardPartition)
	if f.Status != "" {
		filter = and(filter, eq("Status", string(f.Status)))
	}
	if f.Title != "" {
		filter = and(filter, eq("Title", f.Title))
	}
	return list(ctx, s.boards, filter, decodeBoardEntity)
}

func (s *Storage) SaveBoard(ctx context.Context, b domain.Board) error {
	return upsert(ctx, s.boards, toBoardEntity(b))
}

func (s *Storage) GetUser(ctx context.Context, id string) (*domain.User, error) {
	data, err := get(ctx, s.users, userPartition, id)
	if err != nil || data == nil {
		return nil, err
	}
	u, err := decodeUserEntity(data)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Storage) ListUsers(ctx context.Context) ([]domain.User, error) {
	return list(ctx, s.users, eq("PartitionKey", userPartition), decodeUserEntity)
}

// SaveUser replaces the stored user. Without a password hash the write is a
// merge so the stored hash survives profile updates.
func (s *Storage) SaveUser(ctx context.Context, u domain.User) error {
	return upsertMode(ctx, s.users, toUserEntity(u), userUpdateMode(u))
}

func userUpdateMode(u domain.User) aztables.UpdateMode {
	if u.PasswordHash == "" {
		return aztables.UpdateModeMerge
	}
	return aztables.UpdateModeReplace
}

// GetNotification looks a notification up by id across recipients.
func (s *Storage) GetNotification(ctx context.Context, id string) (*domain.Notification, error) {
	ns, err := list(ctx, s.notifications, eq("RowKey", id), decodeNotificationEntity)
	if err != nil {
		return nil, err
	}
	if len(ns) == 0 {
		return nil, nil
	}
	return &ns[0], nil
}

func (s *Storage) ListNotifications(ctx context.Context, f domain.NotificationFilter) ([]domain.Notification, error) {
	filter := eq("PartitionKey", f.UserID)
	if f.Read != nil {
		read := "false"
		if *f.Read {
			read = "true"
		}
		filter = and(filter, "Read eq "+read)
	}
	return list(ctx, s.notifications, filter, decodeNotificationEntity)
}

func (s *Storage) SaveNotification(ctx context.Context, n domain.Notification) error {
	return upsert(ctx, s.notifications, toNotificationEntity(n))
}

func (s *Storage) SaveNotifications(ctx context.Context, userID string, ns []domain.Notification) error {
	actions := make([]aztables.TransactionAction, 0, len(ns))
	for _, n := range ns {
		if n.UserID != userID {
			return errors.New("notification batch spans recipients")
		}
		data, err := sonic.Marshal(toNotificationEntity(n))
		if err != nil {
			return err
		}
		actions = append(actions, aztables.TransactionAction{ActionType: aztables.TransactionTypeInsertReplace, Entity: data})
	}
	return submit(ctx, s.notifications, actions)
}

func (s *Storage) DeleteNotification(ctx context.Context, n domain.Notification) error {
	_, err := s.notifications.DeleteEntity(ctx, n.UserID, n.ID, nil)
	if isNotFound(err) {
		return nil
	}
	return err
}

func (s *Storage) DeleteNotifications(ctx context.Context, userID string, ns []domain.Notification) error {
	actions := make([]aztables.TransactionAction, 0, len(ns))
	for _, n := range ns {
		if n.UserID != userID {
			return errors.New("notification batch spans recipients")
		}
		data, err := sonic.Marshal(aztables.Entity{PartitionKey: n.UserID, RowKey: n.ID})
		if err != nil {
			return err
		}
		actions = append(actions, aztables.TransactionAction{ActionType: aztables.TransactionTypeDelete, Entity: data, IfMatch: ptr(azcore.ETagAny)})
	}
	return submit(ctx, s.notifications, actions)
}

func (s *Storage) SaveCompletion(ctx context.Context, c domain.TaskCompletion) error {
	return upsert(ctx, s.completions, toCompletionEntity(c))
}

// ListCompletions queries per task partition when task ids are given and
// applies the date range in memory.
func (s *Storage) ListCompletions(ctx context.Context, f domain.CompletionFilter) ([]domain.TaskCompletion, error) {
	var attrs []string
	if f.BoardID != "" {
		attrs = append(attrs, eq("BoardId", f.BoardID))
	}
	if f.CompletedBy != "" {
		attrs = append(attrs, eq("CompletedBy", f.CompletedBy))
	}
	var all []domain.TaskCompletion
	if len(f.TaskIDs) > 0 {
		for _, id := range f.TaskIDs {
			cs, err := list(ctx, s.completions, and(append([]string{eq("PartitionKey", id)}, attrs...)...), decodeCompletionEntity)
			if err != nil {
				return nil, err
			}
			all = append(all, cs...)
		}
	} else {
		cs, err := list(ctx, s.completions, and(attrs...), decodeCompletionEntity)
		if err != nil {
			return nil, err
		}
		all = cs
	}
	out := []domain.TaskCompletion{}
	for _, c := range all {
		if f.From != nil && c.CompletedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && c.CompletedAt.After(*f.To) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func ptr[T any](v T) *T { return &v }
