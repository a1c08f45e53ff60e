package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sumire/taskflow/internal/domain"
)

func TestTaskService_Create(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	manager := env.actor(t, "mgr@x.com", domain.RoleManager)
	member := env.actor(t, "mem@x.com", domain.RoleMember)

	p, err := env.projects.Create(ctx, manager, ProjectInput{Name: "Launch"})
	require.NoError(t, err)

	due := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	urgent := domain.TaskPriorityUrgent
	task, err := env.tasks.Create(ctx, member, TaskInput{
		Title:      " Write docs ",
		ProjectID:  p.ID,
		AssigneeID: &manager.ID,
		DueDate:    &due,
		Priority:   &urgent,
	})
	require.NoError(t, err)
	require.Equal(t, "Write docs", task.Title)
	require.Equal(t, member.ID, task.CreatorID)
	require.Equal(t, domain.TaskStatusTodo, task.Status)
	require.Equal(t, domain.TaskPriorityUrgent, task.Priority)
	require.Equal(t, manager.ID, task.Assignee.ID)

	plain, err := env.tasks.Create(ctx, member, TaskInput{Title: "Plan", ProjectID: p.ID})
	require.NoError(t, err)
	require.Equal(t, domain.TaskPriorityMedium, plain.Priority)

	_, err = env.tasks.Create(ctx, member, TaskInput{Title: "Lost", ProjectID: domain.NewID()})
	require.ErrorIs(t, err, domain.ErrNotFound)

	var verr *domain.ValidationError
	_, err = env.tasks.Create(ctx, member, TaskInput{Title: " ", ProjectID: p.ID})
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "title", verr.Field)

	_, err = env.tasks.Create(ctx, member, TaskInput{Title: "x", ProjectID: p.ID, AssigneeID: strPtr(domain.NewID())})
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "assigneeId", verr.Field)

	bogus := domain.TaskPriority("SOMEDAY")
	_, err = env.tasks.Create(ctx, member, TaskInput{Title: "x", ProjectID: p.ID, Priority: &bogus})
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "priority", verr.Field)
}

func TestTaskService_ListValidatesFilter(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	var verr *domain.ValidationError
	_, err := env.tasks.List(ctx, domain.TaskFilter{Status: "DONE"})
	require.ErrorAs(t, err, &verr)
	_, err = env.tasks.List(ctx, domain.TaskFilter{Priority: "SOMEDAY"})
	require.ErrorAs(t, err, &verr)

	tasks, err := env.tasks.List(ctx, domain.TaskFilter{Status: domain.TaskStatusTodo})
	require.NoError(t, err)
	require.Empty(t, tasks)
}

func TestTaskService_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	manager := env.actor(t, "mgr@x.com", domain.RoleManager)
	creator := env.actor(t, "creator@x.com", domain.RoleMember)
	bystander := env.actor(t, "by@x.com", domain.RoleMember)

	p, err := env.projects.Create(ctx, manager, ProjectInput{Name: "Launch"})
	require.NoError(t, err)
	task, err := env.tasks.Create(ctx, creator, TaskInput{Title: "Plan", ProjectID: p.ID, AssigneeID: &creator.ID})
	require.NoError(t, err)

	status := domain.TaskStatusInReview
	empty := ""
	updated, err := env.tasks.Update(ctx, task.ID, domain.TaskUpdate{Status: &status, AssigneeID: &empty})
	require.NoError(t, err)
	require.Equal(t, domain.TaskStatusInReview, updated.Status)
	require.Nil(t, updated.Assignee)

	bogus := domain.TaskStatus("DONE")
	var verr *domain.ValidationError
	_, err = env.tasks.Update(ctx, task.ID, domain.TaskUpdate{Status: &bogus})
	require.ErrorAs(t, err, &verr)

	_, err = env.tasks.Update(ctx, domain.NewID(), domain.TaskUpdate{Title: strPtr("x")})
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.ErrorIs(t, env.tasks.Delete(ctx, bystander, task.ID), domain.ErrForbidden)
	require.NoError(t, env.tasks.Delete(ctx, creator, task.ID))

	other, err := env.tasks.Create(ctx, bystander, TaskInput{Title: "Other", ProjectID: p.ID})
	require.NoError(t, err)
	require.NoError(t, env.tasks.Delete(ctx, manager, other.ID))
	require.ErrorIs(t, env.tasks.Delete(ctx, manager, other.ID), domain.ErrNotFound)
}

func TestTaskService_Comments(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	manager := env.actor(t, "mgr@x.com", domain.RoleManager)
	member := env.actor(t, "mem@x.com", domain.RoleMember)

	p, err := env.projects.Create(ctx, manager, ProjectInput{Name: "Launch"})
	require.NoError(t, err)
	task, err := env.tasks.Create(ctx, manager, TaskInput{Title: "Plan", ProjectID: p.ID})
	require.NoError(t, err)

	c, err := env.tasks.AddComment(ctx, member, task.ID, "  looks good  ")
	require.NoError(t, err)
	require.Equal(t, "looks good", c.Content)
	require.Equal(t, member.ID, c.Author.ID)

	var verr *domain.ValidationError
	_, err = env.tasks.AddComment(ctx, member, task.ID, "   ")
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "content", verr.Field)

	_, err = env.tasks.AddComment(ctx, member, domain.NewID(), "hello")
	require.ErrorIs(t, err, domain.ErrNotFound)

	got, err := env.tasks.Get(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, got.Comments, 1)
	require.Equal(t, 1, got.CommentCount)
}
