package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sumire/taskflow/internal/domain"
)

func TestTaskRepository_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	s := newTestStores(t)
	creator := s.user(t, "creator@example.com")
	assignee := s.user(t, "assignee@example.com")
	p := s.project(t, creator.ID, "Launch")

	due := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("JST", 9*60*60))
	created, err := s.tasks.Create(ctx, domain.Task{
		Title:      "Write docs",
		ProjectID:  p.ID,
		CreatorID:  creator.ID,
		AssigneeID: &assignee.ID,
		DueDate:    &due,
		Priority:   domain.TaskPriorityHigh,
	})
	require.NoError(t, err)
	require.Equal(t, domain.TaskStatusTodo, created.Status)
	require.Equal(t, domain.TaskPriorityHigh, created.Priority)
	require.True(t, due.Equal(*created.DueDate))
	require.Equal(t, "Launch", created.Project.Name)
	require.Equal(t, "creator@example.com", created.Creator.Email)
	require.NotNil(t, created.Assignee)
	require.Equal(t, assignee.ID, created.Assignee.ID)
	require.Equal(t, "assignee@example.com", created.Assignee.Email)

	unassigned, err := s.tasks.Create(ctx, domain.Task{Title: "Plan", ProjectID: p.ID, CreatorID: creator.ID})
	require.NoError(t, err)
	require.Equal(t, domain.TaskPriorityMedium, unassigned.Priority)
	require.Nil(t, unassigned.Assignee)
	require.Nil(t, unassigned.DueDate)

	_, err = s.tasks.Create(ctx, domain.Task{Title: "Lost", ProjectID: domain.NewID(), CreatorID: creator.ID})
	require.ErrorIs(t, err, domain.ErrConflict)

	_, err = s.tasks.FindByID(ctx, domain.NewID())
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTaskRepository_ListFilters(t *testing.T) {
	ctx := context.Background()
	s := newTestStores(t)
	u := s.user(t, "u@example.com")
	a := s.project(t, u.ID, "A")
	b := s.project(t, u.ID, "B")

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seed := []domain.Task{
		{Title: "a1", ProjectID: a.ID, CreatorID: u.ID, Priority: domain.TaskPriorityLow},
		{Title: "a2", ProjectID: a.ID, CreatorID: u.ID, AssigneeID: &u.ID, Priority: domain.TaskPriorityUrgent},
		{Title: "b1", ProjectID: b.ID, CreatorID: u.ID, Status: domain.TaskStatusInReview},
	}
	for i, task := range seed {
		at := base.Add(time.Duration(i) * time.Minute)
		s.tasks.now = func() time.Time { return at }
		_, err := s.tasks.Create(ctx, task)
		require.NoError(t, err)
	}

	titles := func(filter domain.TaskFilter) []string {
		tasks, err := s.tasks.List(ctx, filter)
		require.NoError(t, err)
		out := make([]string, len(tasks))
		for i, task := range tasks {
			out[i] = task.Title
		}
		return out
	}

	require.Equal(t, []string{"b1", "a2", "a1"}, titles(domain.TaskFilter{}))
	require.Equal(t, []string{"a2", "a1"}, titles(domain.TaskFilter{ProjectID: a.ID}))
	require.Equal(t, []string{"a2"}, titles(domain.TaskFilter{AssigneeID: u.ID}))
	require.Equal(t, []string{"b1"}, titles(domain.TaskFilter{Status: domain.TaskStatusInReview}))
	require.Equal(t, []string{"a2"}, titles(domain.TaskFilter{ProjectID: a.ID, Priority: domain.TaskPriorityUrgent}))
	require.Empty(t, titles(domain.TaskFilter{ProjectID: b.ID, Priority: domain.TaskPriorityUrgent}))
}

func TestTaskRepository_UpdateAndUnassign(t *testing.T) {
	ctx := context.Background()
	s := newTestStores(t)
	u := s.user(t, "u@example.com")
	p := s.project(t, u.ID, "A")

	task, err := s.tasks.Create(ctx, domain.Task{Title: "t", ProjectID: p.ID, CreatorID: u.ID, AssigneeID: &u.ID})
	require.NoError(t, err)

	status := domain.TaskStatusInProgress
	updated, err := s.tasks.Update(ctx, task.ID, domain.TaskUpdate{Status: &status, AssigneeID: strPtr("")})
	require.NoError(t, err)
	require.Equal(t, domain.TaskStatusInProgress, updated.Status)
	require.Equal(t, "t", updated.Title)
	require.Nil(t, updated.AssigneeID)
	require.Nil(t, updated.Assignee)

	_, err = s.tasks.Update(ctx, task.ID, domain.TaskUpdate{AssigneeID: strPtr(domain.NewID())})
	require.ErrorIs(t, err, domain.ErrConflict)

	_, err = s.tasks.Update(ctx, domain.NewID(), domain.TaskUpdate{Title: strPtr("x")})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTaskRepository_Comments(t *testing.T) {
	ctx := context.Background()
	s := newTestStores(t)
	u := s.user(t, "u@example.com")
	p := s.project(t, u.ID, "A")
	task, err := s.tasks.Create(ctx, domain.Task{Title: "t", ProjectID: p.ID, CreatorID: u.ID})
	require.NoError(t, err)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, content := range []string{"first", "second"} {
		at := base.Add(time.Duration(i) * time.Minute)
		s.tasks.now = func() time.Time { return at }
		c, err := s.tasks.AddComment(ctx, domain.Comment{Content: content, TaskID: task.ID, AuthorID: u.ID})
		require.NoError(t, err)
		require.Equal(t, "u@example.com", c.Author.Email)
	}

	comments, err := s.tasks.ListComments(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	require.Equal(t, "second", comments[0].Content)

	found, err := s.tasks.FindByID(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, 2, found.CommentCount)

	_, err = s.tasks.AddComment(ctx, domain.Comment{Content: "x", TaskID: domain.NewID(), AuthorID: u.ID})
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, s.tasks.Delete(ctx, task.ID))
	comments, err = s.tasks.ListComments(ctx, task.ID)
	require.NoError(t, err)
	require.Empty(t, comments)
}

func TestTaskRepository_AssigneeDeletionUnassigns(t *testing.T) {
	ctx := context.Background()
	s := newTestStores(t)
	owner := s.user(t, "owner@example.com")
	helper := s.user(t, "helper@example.com")
	p := s.project(t, owner.ID, "A")

	task, err := s.tasks.Create(ctx, domain.Task{Title: "t", ProjectID: p.ID, CreatorID: owner.ID, AssigneeID: &helper.ID})
	require.NoError(t, err)

	require.NoError(t, s.users.Delete(ctx, helper.ID))
	found, err := s.tasks.FindByID(ctx, task.ID)
	require.NoError(t, err)
	require.Nil(t, found.AssigneeID)
}
