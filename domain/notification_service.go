package domain

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type NotificationType string

const (
	TaskAssigned  NotificationType = "TASK_ASSIGNED"
	TaskUpdated   NotificationType = "TASK_UPDATED"
	TaskMoved     NotificationType = "TASK_MOVED"
	TaskCompleted NotificationType = "TASK_COMPLETED"
)

// Notification is a durable per-user record of a task event.
type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"userId"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Read      bool             `json:"read"`
	TaskID    string           `json:"taskId,omitempty"`
	TaskTitle string           `json:"taskTitle,omitempty"`
	Type      NotificationType `json:"type"`
	ActionBy  string           `json:"actionBy"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// NotificationDraft carries the caller supplied part of a notification.
type NotificationDraft struct {
	UserID    string
	Title     string
	Message   string
	TaskID    string
	TaskTitle string
	Type      NotificationType
	ActionBy  string
}

// NotificationService owns the notification lifecycle.
type NotificationService struct {
	store   NotificationStore
	channel RealtimeChannel
	logger  *log.Logger
	now     func() time.Time
	newID   func() string
}

func NewNotificationService(store NotificationStore, channel RealtimeChannel, logger *log.Logger) *NotificationService {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &NotificationService{
		store:   store,
		channel: channel,
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Dispatch persists a notification and pushes it to the recipient. Only a
// persistence failure is returned; delivery failures are logged.
func (s *NotificationService) Dispatch(ctx context.Context, d NotificationDraft) (Notification, error) {
	if d.UserID == "" {
		return Notification{}, fmt.Errorf("notification recipient: %w", ErrValidation)
	}
	now := s.now().UTC()
	n := Notification{
		ID:        s.newID(),
		UserID:    d.UserID,
		Title:     d.Title,
		Message:   d.Message,
		TaskID:    d.TaskID,
		TaskTitle: d.TaskTitle,
		Type:      d.Type,
		ActionBy:  d.ActionBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.SaveNotification(ctx, n); err != nil {
		return Notification{}, fmt.Errorf("save notification: %w", err)
	}
	if res := s.deliver(ctx, n); res.Failed() {
		s.logger.WithError(res.Err).WithFields(log.Fields{
			"notification": n.ID,
			"user":         n.UserID,
			"type":         n.Type,
		}).Warn("notification delivery failed")
	}
	return n, nil
}

func (s *NotificationService) deliver(ctx context.Context, n Notification) DeliveryResult {
	if s.channel == nil {
		return DeliveryResult{}
	}
	return DeliveryResult{Err: s.channel.PublishToSubject(ctx, n.UserID, n)}
}

// List returns the user's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, userID string, unreadOnly bool) ([]Notification, error) {
	f := NotificationFilter{UserID: userID}
	if unreadOnly {
		unread := false
		f.Read = &unread
	}
	ns, err := s.store.ListNotifications(ctx, f)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(ns, func(i, j int) bool { return ns[i].CreatedAt.After(ns[j].CreatedAt) })
	return ns, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	ns, err := s.List(ctx, userID, true)
	if err != nil {
		return 0, err
	}
	return len(ns), nil
}

// owned loads a notification visible to the acting user. Records of other
// users are reported as missing.
func (s *NotificationService) owned(ctx context.Context, id string) (*Notification, error) {
	n, err := s.store.GetNotification(ctx, id)
	if err != nil {
		return nil, err
	}
	actor := ActorFromContext(ctx)
	if n == nil || (actor != SystemActor && n.UserID != actor) {
		return nil, fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	return n, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, id string) (Notification, error) {
	n, err := s.owned(ctx, id)
	if err != nil {
		return Notification{}, err
	}
	n.Read = true
	n.UpdatedAt = s.now().UTC()
	if err := s.store.SaveNotification(ctx, *n); err != nil {
		return Notification{}, err
	}
	return *n, nil
}

// MarkAllRead flips every unread notification of the user in one batch. It
// writes nothing when there is nothing unread.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int, error) {
	unread, err := s.List(ctx, userID, true)
	if err != nil {
		return 0, err
	}
	if len(unread) == 0 {
		return 0, nil
	}
	now := s.now().UTC()
	for i := range unread {
		unread[i].Read = true
		unread[i].UpdatedAt = now
	}
	if err := s.store.SaveNotifications(ctx, userID, unread); err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return len(unread), nil
}

func (s *NotificationService) Delete(ctx context.Context, id string) error {
	n, err := s.owned(ctx, id)
	if err != nil {
		return err
	}
	return s.store.DeleteNotification(ctx, *n)
}

// DeleteRead removes every read notification of the user.
func (s *NotificationService) DeleteRead(ctx context.Context, userID string) (int, error) {
	read := true
	ns, err := s.store.ListNotifications(ctx, NotificationFilter{UserID: userID, Read: &read})
	if err != nil {
		return 0, err
	}
	if len(ns) == 0 {
		return 0, nil
	}
	if err := s.store.DeleteNotifications(ctx, userID, ns); err != nil {
		return 0, err
	}
	return len(ns), nil
}
