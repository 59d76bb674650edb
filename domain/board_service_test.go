package domain

import (
	"context"
	"errors"
	"testing"
)

func TestBoardCreateBroadcastsAndRejectsDuplicateTitle(t *testing.T) {
	f := newFixture()
	ctx := WithActor(context.Background(), "admin")
	b, err := f.boards.Create(ctx, " Sprint 1 ", "first sprint")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if b.Title != "Sprint 1" || b.Status != BoardActive || b.CreatedBy != "admin" {
		t.Fatalf("unexpected board %+v", b)
	}
	upds := f.channel.boardUpdates()
	if len(upds) != 1 || upds[0].Type != BoardCreated || upds[0].Board.ID != b.ID {
		t.Fatalf("unexpected broadcast %+v", upds)
	}
	if _, err := f.boards.Create(ctx, "Sprint 1", ""); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestBoardTitleReusableAfterDeactivate(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	b, _ := f.boards.Create(ctx, "Sprint 1", "")
	if _, err := f.boards.Deactivate(ctx, b.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := f.boards.Create(ctx, "Sprint 1", ""); err != nil {
		t.Fatalf("title should be reusable: %v", err)
	}
	active, _ := f.boards.ListActive(ctx)
	if len(active) != 1 || active[0].ID == b.ID {
		t.Fatalf("unexpected active boards %+v", active)
	}
}

func TestBoardDeactivateUnknown(t *testing.T) {
	f := newFixture()
	if _, err := f.boards.Deactivate(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBroadcasterEnvelopes(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.broadcaster.NotifyTaskDeleted(ctx, "t1", "b1")
	f.broadcaster.NotifyTaskUpdated(ctx, "t2", "b2", Task{ID: "t2"})
	upds := f.channel.boardUpdates()
	if len(upds) != 2 {
		t.Fatalf("expected 2 updates, got %d", len(upds))
	}
	if upds[0].Type != BoardTaskDeleted || upds[0].TaskID != "t1" || upds[0].Task != nil || upds[0].NewIndex != nil {
		t.Fatalf("unexpected delete envelope %+v", upds[0])
	}
	if upds[1].Type != BoardTaskUpdated || upds[1].Task == nil || !upds[1].Timestamp.Equal(fixedNow) {
		t.Fatalf("unexpected update envelope %+v", upds[1])
	}
}

func TestUserSaveValidatesRoles(t *testing.T) {
	store := newFakeStore()
	svc := NewUserService(store)
	ctx := context.Background()
	if _, err := svc.Save(ctx, User{Username: "ana"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for empty roles, got %v", err)
	}
	if _, err := svc.Save(ctx, User{Username: "ana", Roles: []Role{"ROOT"}}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for unknown role, got %v", err)
	}
	u, err := svc.Save(ctx, User{Username: "ana", Name: "Ana", LastName: "Diaz", Roles: []Role{RoleAdmin, RoleAdmin, RoleOperator}})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if u.ID == "" || len(u.Roles) != 2 || u.DisplayName() != "Ana Diaz" {
		t.Fatalf("unexpected user %+v", u)
	}
	if _, err := svc.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestActorFromContext(t *testing.T) {
	if got := ActorFromContext(context.Background()); got != SystemActor {
		t.Fatalf("got %q", got)
	}
	if got := ActorFromContext(WithActor(context.Background(), "")); got != SystemActor {
		t.Fatalf("blank actor: got %q", got)
	}
	if got := ActorFromContext(WithActor(context.Background(), "u1")); got != "u1" {
		t.Fatalf("got %q", got)
	}
}

func TestBoardWithTasksRequiresActiveBoard(t *testing.T) {
	f := newFixture()
	f.store.boards["b1"] = Board{ID: "b1", Title: "Old", Status: BoardInactive}
	if _, err := f.boards.WithTasks(context.Background(), "b1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for inactive board, got %v", err)
	}
	if _, err := f.boards.WithTasks(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing board, got %v", err)
	}
	all, err := f.boards.ListActiveWithTasks(context.Background())
	if err != nil || len(all) != 0 {
		t.Fatalf("inactive board listed: %+v %v", all, err)
	}
}

func TestBoardWithTasksSkipsDanglingAssignees(t *testing.T) {
	f := newFixture()
	f.addBoard("b1", "Sprint 1")
	f.addBoard("b2", "Backlog")
	f.addUser("u1", "Ana", "Diaz")
	f.store.tasks["t1"] = Task{ID: "t1", Title: "Fix pump", BoardID: "b1", AssignedTo: []string{"u1", "gone"}, CreatedAt: fixedNow}
	f.store.tasks["t2"] = Task{ID: "t2", Title: "Other", BoardID: "b2", CreatedAt: fixedNow}

	got, err := f.boards.WithTasks(context.Background(), "b1")
	if err != nil {
		t.Fatalf("with tasks: %v", err)
	}
	if len(got.Tasks) != 1 || got.Tasks[0].ID != "t1" {
		t.Fatalf("unexpected tasks %+v", got.Tasks)
	}
	if as := got.Tasks[0].Assignees; len(as) != 1 || as[0].ID != "u1" {
		t.Fatalf("expected only u1 resolved, got %+v", as)
	}
	if ids := got.Tasks[0].AssignedTo; len(ids) != 2 {
		t.Fatalf("stored assignee ids changed: %v", ids)
	}

	all, err := f.boards.ListActiveWithTasks(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 || all[0].Title != "Backlog" || len(all[0].Tasks) != 1 || len(all[1].Tasks) != 1 {
		t.Fatalf("unexpected boards %+v", all)
	}
}

func TestBoardUpdateTitle(t *testing.T) {
	f := newFixture()
	f.addBoard("b1", "Sprint 1")
	f.addBoard("b2", "Sprint 2")
	ctx := context.Background()
	if _, err := f.boards.Update(ctx, "b1", "Sprint 2", ""); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if _, err := f.boards.Update(ctx, "nope", "x", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := f.boards.Update(ctx, "b1", "  ", ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	b, err := f.boards.Update(ctx, "b1", "Sprint 1", "renamed description")
	if err != nil || b.Description != "renamed description" || !b.UpdatedAt.Equal(fixedNow) {
		t.Fatalf("update: %+v %v", b, err)
	}
	if f.store.boards["b1"].Description != "renamed description" {
		t.Fatalf("board not persisted")
	}
}
