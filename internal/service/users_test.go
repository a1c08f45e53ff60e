package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sumire/taskflow/internal/domain"
)

func TestUserService(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	admin := env.registerVerified(t, "admin@x.com", "secret1", "Admin")
	_, err := env.repo.UpdateRole(ctx, admin.User.ID, domain.RoleAdmin)
	require.NoError(t, err)
	actor, err := env.auth.Authenticate(ctx, admin.Token)
	require.NoError(t, err)

	member := env.registerVerified(t, "m@x.com", "secret1", "Member")

	t.Run("list", func(t *testing.T) {
		users, err := env.users.List(ctx)
		require.NoError(t, err)
		require.Len(t, users, 2)
	})

	t.Run("get", func(t *testing.T) {
		u, err := env.users.Get(ctx, member.User.ID)
		require.NoError(t, err)
		require.Equal(t, "Member", u.Name)

		_, err = env.users.Get(ctx, domain.NewID())
		require.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("set role", func(t *testing.T) {
		u, err := env.users.SetRole(ctx, *actor, member.User.ID, domain.RoleManager)
		require.NoError(t, err)
		require.Equal(t, domain.RoleManager, u.Role)

		var verr *domain.ValidationError
		_, err = env.users.SetRole(ctx, *actor, member.User.ID, domain.Role("OWNER"))
		require.ErrorAs(t, err, &verr)

		_, err = env.users.SetRole(ctx, *actor, actor.ID, domain.RoleMember)
		require.ErrorAs(t, err, &verr)

		_, err = env.users.SetRole(ctx, *actor, domain.NewID(), domain.RoleMember)
		require.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		var verr *domain.ValidationError
		require.ErrorAs(t, env.users.Delete(ctx, *actor, actor.ID), &verr)

		require.NoError(t, env.users.Delete(ctx, *actor, member.User.ID))
		require.ErrorIs(t, env.users.Delete(ctx, *actor, member.User.ID), domain.ErrNotFound)

		_, err := env.auth.Authenticate(ctx, member.Token)
		require.ErrorIs(t, err, domain.ErrUserNotFound)
	})
}
