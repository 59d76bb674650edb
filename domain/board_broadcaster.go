package domain

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// BoardUpdatesTopic is the shared topic every board client listens on.
const BoardUpdatesTopic = "board-updates"

type BoardUpdateType string

const (
	BoardTaskCreated BoardUpdateType = "TASK_CREATED"
	BoardTaskUpdated BoardUpdateType = "TASK_UPDATED"
	BoardTaskMoved   BoardUpdateType = "TASK_MOVED"
	BoardTaskDeleted BoardUpdateType = "TASK_DELETED"
	BoardCreated     BoardUpdateType = "BOARD_CREATED"
)

// BoardUpdate is the envelope published on BoardUpdatesTopic.
type BoardUpdate struct {
	Type        BoardUpdateType `json:"type"`
	TaskID      string          `json:"taskId,omitempty"`
	BoardID     string          `json:"boardId,omitempty"`
	FromBoardID string          `json:"fromBoardId,omitempty"`
	ToBoardID   string          `json:"toBoardId,omitempty"`
	NewIndex    *int            `json:"newIndex,omitempty"`
	Task        *Task           `json:"task,omitempty"`
	Board       *Board          `json:"board,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

// BoardBroadcaster publishes board update envelopes. Publish errors are
// logged and never returned.
type BoardBroadcaster struct {
	channel RealtimeChannel
	logger  *log.Logger
	now     func() time.Time
}

func NewBoardBroadcaster(channel RealtimeChannel, logger *log.Logger) *BoardBroadcaster {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &BoardBroadcaster{channel: channel, logger: logger, now: time.Now}
}

func (b *BoardBroadcaster) NotifyTaskCreated(ctx context.Context, boardID string, task Task) {
	b.send(ctx, BoardUpdate{Type: BoardTaskCreated, TaskID: task.ID, BoardID: boardID, Task: &task})
}

func (b *BoardBroadcaster) NotifyTaskUpdated(ctx context.Context, taskID, boardID string, task Task) {
	b.send(ctx, BoardUpdate{Type: BoardTaskUpdated, TaskID: taskID, BoardID: boardID, Task: &task})
}

func (b *BoardBroadcaster) NotifyTaskMoved(ctx context.Context, taskID, fromBoardID, toBoardID string, newIndex int, task Task) {
	b.send(ctx, BoardUpdate{
		Type:        BoardTaskMoved,
		TaskID:      taskID,
		FromBoardID: fromBoardID,
		ToBoardID:   toBoardID,
		NewIndex:    &newIndex,
		Task:        &task,
	})
}

func (b *BoardBroadcaster) NotifyTaskDeleted(ctx context.Context, taskID, boardID string) {
	b.send(ctx, BoardUpdate{Type: BoardTaskDeleted, TaskID: taskID, BoardID: boardID})
}

func (b *BoardBroadcaster) NotifyBoardCreated(ctx context.Context, board Board) {
	b.send(ctx, BoardUpdate{Type: BoardCreated, BoardID: board.ID, Board: &board})
}

func (b *BoardBroadcaster) send(ctx context.Context, upd BoardUpdate) DeliveryResult {
	upd.Timestamp = b.now().UTC()
	if b.channel == nil {
		return DeliveryResult{}
	}
	res := DeliveryResult{Err: b.channel.Publish(ctx, BoardUpdatesTopic, upd)}
	if res.Failed() {
		b.logger.WithError(res.Err).WithFields(log.Fields{
			"type":  upd.Type,
			"task":  upd.TaskID,
			"board": upd.BoardID,
		}).Error("board broadcast failed")
	}
	return res
}
