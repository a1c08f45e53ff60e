package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sumire/taskflow/internal/domain"
)

func TestNormalizeEmail(t *testing.T) {
	t.Parallel()
	require.Equal(t, "ann@example.com", NormalizeEmail("  Ann@Example.COM "))
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	res, err := env.auth.Register(ctx, RegisterInput{Email: "A@X.com", Password: "secret1", Name: " Ann "})
	require.NoError(t, err)
	require.True(t, res.RequiresVerification)
	require.Equal(t, "a@x.com", res.User.Email)
	require.Equal(t, "Ann", res.User.Name)
	require.Equal(t, domain.RoleMember, res.User.Role)
	require.Equal(t, domain.AuthProviderLocal, res.User.Provider)
	require.False(t, res.User.EmailVerified)

	mail := env.mailer.last(t, "verification")
	require.Equal(t, "a@x.com", mail.To)
	require.Len(t, mail.Token, 2*singleUseTokenBytes)

	stored, err := env.repo.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	require.NotEqual(t, "secret1", *stored.PasswordHash)
	require.Equal(t, FingerprintToken(mail.Token), *stored.VerificationToken)
	require.WithinDuration(t, time.Now().Add(24*time.Hour), *stored.VerificationTokenExpiry, time.Minute)
}

func TestRegister_DuplicateEmailIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.auth.Register(ctx, RegisterInput{Email: "a@x.com", Password: "secret1", Name: "Ann"})
	require.NoError(t, err)

	_, err = env.auth.Register(ctx, RegisterInput{Email: "A@X.COM", Password: "secret2", Name: "Other"})
	require.ErrorIs(t, err, domain.ErrDuplicateEmail)
}

func TestRegister_ConcurrentSameEmailHasOneWinner(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	const n = 5
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = env.auth.Register(ctx, RegisterInput{Email: "race@x.com", Password: "secret1", Name: "Race"})
		}()
	}
	wg.Wait()

	var ok, dup int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrDuplicateEmail):
			dup++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, n-1, dup)
}

func TestRegister_Validation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name  string
		in    RegisterInput
		field string
	}{
		{"bad email", RegisterInput{Email: "not-an-email", Password: "secret1", Name: "Ann"}, "email"},
		{"short password", RegisterInput{Email: "a@x.com", Password: "12345", Name: "Ann"}, "password"},
		{"long password", RegisterInput{Email: "a@x.com", Password: strings.Repeat("x", 73), Name: "Ann"}, "password"},
		{"missing name", RegisterInput{Email: "a@x.com", Password: "secret1", Name: "  "}, "name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.auth.Register(context.Background(), tt.in)
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			require.Equal(t, tt.field, verr.Field)
		})
	}
	require.Zero(t, env.mailer.count("verification"))
}

func TestRegister_MailFailureIsNotFatal(t *testing.T) {
	env := newTestEnv(t)
	env.mailer.err = errMailDown

	res, err := env.auth.Register(context.Background(), RegisterInput{Email: "a@x.com", Password: "secret1", Name: "Ann"})
	require.NoError(t, err)
	require.True(t, res.RequiresVerification)
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.auth.Register(ctx, RegisterInput{Email: "a@x.com", Password: "secret1", Name: "Ann"})
	require.NoError(t, err)

	t.Run("unverified account with correct password", func(t *testing.T) {
		_, err := env.auth.Login(ctx, "a@x.com", "secret1")
		require.ErrorIs(t, err, domain.ErrEmailNotVerified)
	})

	t.Run("unverified account with wrong password", func(t *testing.T) {
		_, err := env.auth.Login(ctx, "a@x.com", "wrong-password")
		require.ErrorIs(t, err, domain.ErrInvalidCredentials)
	})

	t.Run("unknown email and wrong password are identical", func(t *testing.T) {
		_, errUnknown := env.auth.Login(ctx, "nobody@x.com", "secret1")
		_, errWrong := env.auth.Login(ctx, "a@x.com", "nope-nope")
		require.ErrorIs(t, errUnknown, domain.ErrInvalidCredentials)
		require.ErrorIs(t, errWrong, domain.ErrInvalidCredentials)
		require.Equal(t, errUnknown.Error(), errWrong.Error())
	})

	_, err = env.auth.VerifyEmail(ctx, env.mailer.last(t, "verification").Token)
	require.NoError(t, err)

	t.Run("verified account succeeds", func(t *testing.T) {
		session, err := env.auth.Login(ctx, " A@X.com", "secret1")
		require.NoError(t, err)
		require.NotEmpty(t, session.Token)
		require.Equal(t, "a@x.com", session.User.Email)

		claims, err := env.tokens.Verify(session.Token)
		require.NoError(t, err)
		require.Equal(t, session.User.ID, claims.Subject)
		require.Equal(t, "a@x.com", claims.Email)
	})
}

func TestLogin_OAuthOnlyAccount(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.auth.LoginOAuth(ctx, domain.AuthProviderGoogle, OAuthProfile{ProviderID: "g-1", Email: "g@x.com", Name: "G"})
	require.NoError(t, err)

	_, err = env.auth.Login(ctx, "g@x.com", "anything")
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestVerifyEmail(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.auth.Register(ctx, RegisterInput{Email: "a@x.com", Password: "secret1", Name: "Ann"})
	require.NoError(t, err)
	token := env.mailer.last(t, "verification").Token

	session, err := env.auth.VerifyEmail(ctx, token)
	require.NoError(t, err)
	require.True(t, session.User.EmailVerified)
	require.NotEmpty(t, session.Token)
	require.Equal(t, 1, env.mailer.count("welcome"))

	stored, err := env.repo.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	require.Nil(t, stored.VerificationToken)
	require.Nil(t, stored.VerificationTokenExpiry)

	_, err = env.auth.VerifyEmail(ctx, token)
	require.ErrorIs(t, err, domain.ErrInvalidOrExpiredToken)
}

func TestVerifyEmail_ExpiredAndUnknownFailIdentically(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	env.auth.now = func() time.Time { return time.Now().Add(-25 * time.Hour) }
	_, err := env.auth.Register(ctx, RegisterInput{Email: "a@x.com", Password: "secret1", Name: "Ann"})
	require.NoError(t, err)
	env.auth.now = time.Now

	_, errExpired := env.auth.VerifyEmail(ctx, env.mailer.last(t, "verification").Token)
	_, errUnknown := env.auth.VerifyEmail(ctx, strings.Repeat("ab", singleUseTokenBytes))
	_, errEmpty := env.auth.VerifyEmail(ctx, "")

	require.ErrorIs(t, errExpired, domain.ErrInvalidOrExpiredToken)
	require.ErrorIs(t, errUnknown, domain.ErrInvalidOrExpiredToken)
	require.ErrorIs(t, errEmpty, domain.ErrInvalidOrExpiredToken)
	require.Equal(t, errExpired.Error(), errUnknown.Error())
}

func TestVerifyEmail_WelcomeMailFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.auth.Register(ctx, RegisterInput{Email: "a@x.com", Password: "secret1", Name: "Ann"})
	require.NoError(t, err)

	env.mailer.err = errMailDown
	session, err := env.auth.VerifyEmail(ctx, env.mailer.last(t, "verification").Token)
	require.NoError(t, err)
	require.True(t, session.User.EmailVerified)
}

func TestResendVerification(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.auth.Register(ctx, RegisterInput{Email: "a@x.com", Password: "secret1", Name: "Ann"})
	require.NoError(t, err)
	first := env.mailer.last(t, "verification").Token

	require.NoError(t, env.auth.ResendVerification(ctx, "a@x.com"))
	second := env.mailer.last(t, "verification").Token
	require.NotEqual(t, first, second)

	_, err = env.auth.VerifyEmail(ctx, first)
	require.ErrorIs(t, err, domain.ErrInvalidOrExpiredToken)

	_, err = env.auth.VerifyEmail(ctx, second)
	require.NoError(t, err)

	sent := env.mailer.count("verification")
	require.NoError(t, env.auth.ResendVerification(ctx, "a@x.com"))
	require.NoError(t, env.auth.ResendVerification(ctx, "nobody@x.com"))
	require.Equal(t, sent, env.mailer.count("verification"))
}

func TestGetProfile(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	session := env.registerVerified(t, "a@x.com", "secret1", "Ann")

	profile, err := env.auth.GetProfile(ctx, session.User.ID)
	require.NoError(t, err)
	require.Equal(t, "Ann", profile.Name)

	_, err = env.auth.GetProfile(ctx, domain.NewID())
	require.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	session := env.registerVerified(t, "a@x.com", "secret1", "Ann")
	id := session.User.ID

	name := "Annie"
	profile, err := env.auth.UpdateProfile(ctx, id, domain.ProfileUpdate{Name: &name})
	require.NoError(t, err)
	require.Equal(t, "Annie", profile.Name)
	require.Nil(t, profile.Avatar)

	avatar := "https://cdn.example.com/a.png"
	profile, err = env.auth.UpdateProfile(ctx, id, domain.ProfileUpdate{Avatar: &avatar})
	require.NoError(t, err)
	require.Equal(t, "Annie", profile.Name)
	require.Equal(t, avatar, *profile.Avatar)
	require.Equal(t, "a@x.com", profile.Email)

	profile, err = env.auth.UpdateProfile(ctx, id, domain.ProfileUpdate{})
	require.NoError(t, err)
	require.Equal(t, "Annie", profile.Name)

	empty := " "
	_, err = env.auth.UpdateProfile(ctx, id, domain.ProfileUpdate{Name: &empty})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "name", verr.Field)

	bad := "not a url"
	_, err = env.auth.UpdateProfile(ctx, id, domain.ProfileUpdate{Avatar: &bad})
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "avatar", verr.Field)

	_, err = env.auth.UpdateProfile(ctx, domain.NewID(), domain.ProfileUpdate{Name: &name})
	require.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	session := env.registerVerified(t, "a@x.com", "secret1", "Ann")
	id := session.User.ID

	t.Run("wrong current password leaves hash unchanged", func(t *testing.T) {
		err := env.auth.ChangePassword(ctx, id, ChangePasswordInput{CurrentPassword: "wrong1", NewPassword: "secret2"})
		require.ErrorIs(t, err, domain.ErrIncorrectPassword)

		_, err = env.auth.Login(ctx, "a@x.com", "secret1")
		require.NoError(t, err)
	})

	t.Run("short new password", func(t *testing.T) {
		err := env.auth.ChangePassword(ctx, id, ChangePasswordInput{CurrentPassword: "secret1", NewPassword: "123"})
		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr)
		require.Equal(t, "newPassword", verr.Field)
	})

	t.Run("success", func(t *testing.T) {
		require.NoError(t, env.auth.ChangePassword(ctx, id, ChangePasswordInput{CurrentPassword: "secret1", NewPassword: "secret2"}))

		_, err := env.auth.Login(ctx, "a@x.com", "secret1")
		require.ErrorIs(t, err, domain.ErrInvalidCredentials)
		_, err = env.auth.Login(ctx, "a@x.com", "secret2")
		require.NoError(t, err)
	})
}

func TestChangePassword_NoPasswordSet(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	session, err := env.auth.LoginOAuth(ctx, domain.AuthProviderGitHub, OAuthProfile{ProviderID: "42", Email: "gh@x.com", Name: "GH"})
	require.NoError(t, err)

	err = env.auth.ChangePassword(ctx, session.User.ID, ChangePasswordInput{CurrentPassword: "whatever", NewPassword: "secret2"})
	require.ErrorIs(t, err, domain.ErrNoPasswordSet)
}

func TestRequestPasswordReset_SameResultForUnknownEmail(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.registerVerified(t, "a@x.com", "secret1", "Ann")

	errKnown := env.auth.RequestPasswordReset(ctx, "a@x.com")
	errUnknown := env.auth.RequestPasswordReset(ctx, "nobody@x.com")
	require.NoError(t, errKnown)
	require.NoError(t, errUnknown)
	require.Equal(t, 1, env.mailer.count("password_reset"))

	env.mailer.err = errMailDown
	require.NoError(t, env.auth.RequestPasswordReset(ctx, "a@x.com"))

	var verr *domain.ValidationError
	require.ErrorAs(t, env.auth.RequestPasswordReset(ctx, "bogus"), &verr)
}

func TestResetPassword(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.registerVerified(t, "a@x.com", "secret1", "Ann")

	require.NoError(t, env.auth.RequestPasswordReset(ctx, "a@x.com"))
	token := env.mailer.last(t, "password_reset").Token

	require.NoError(t, env.auth.ResetPassword(ctx, token, "newsecret"))

	_, err := env.auth.Login(ctx, "a@x.com", "newsecret")
	require.NoError(t, err)
	_, err = env.auth.Login(ctx, "a@x.com", "secret1")
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)

	err = env.auth.ResetPassword(ctx, token, "another1")
	require.ErrorIs(t, err, domain.ErrInvalidOrExpiredToken)

	stored, err := env.repo.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	require.Nil(t, stored.ResetPasswordToken)
	require.Nil(t, stored.ResetPasswordExpiry)
}

func TestResetPassword_ExpiredToken(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.registerVerified(t, "a@x.com", "secret1", "Ann")

	env.auth.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	require.NoError(t, env.auth.RequestPasswordReset(ctx, "a@x.com"))
	env.auth.now = time.Now

	err := env.auth.ResetPassword(ctx, env.mailer.last(t, "password_reset").Token, "newsecret")
	require.ErrorIs(t, err, domain.ErrInvalidOrExpiredToken)

	_, err = env.auth.Login(ctx, "a@x.com", "secret1")
	require.NoError(t, err)
}

func TestResetPassword_ValidatesPassword(t *testing.T) {
	env := newTestEnv(t)

	err := env.auth.ResetPassword(context.Background(), "whatever", "123")
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "password", verr.Field)
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	session := env.registerVerified(t, "a@x.com", "secret1", "Ann")

	t.Run("valid token", func(t *testing.T) {
		user, err := env.auth.Authenticate(ctx, session.Token)
		require.NoError(t, err)
		require.Equal(t, session.User.ID, user.ID)
	})

	t.Run("no token", func(t *testing.T) {
		_, err := env.auth.Authenticate(ctx, "")
		require.ErrorIs(t, err, domain.ErrNoToken)
	})

	t.Run("malformed token", func(t *testing.T) {
		_, err := env.auth.Authenticate(ctx, "not.a.jwt")
		require.ErrorIs(t, err, domain.ErrInvalidToken)
	})

	t.Run("expired token", func(t *testing.T) {
		old := NewTokenIssuer(testSecret, "taskflow", time.Hour)
		old.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		raw, err := old.Issue(session.User.ID, session.User.Email)
		require.NoError(t, err)

		_, err = env.auth.Authenticate(ctx, raw)
		require.ErrorIs(t, err, domain.ErrTokenExpired)
	})

	t.Run("deleted user", func(t *testing.T) {
		other := env.registerVerified(t, "b@x.com", "secret1", "Bob")
		require.NoError(t, env.repo.Delete(ctx, other.User.ID))

		_, err := env.auth.Authenticate(ctx, other.Token)
		require.ErrorIs(t, err, domain.ErrUserNotFound)
	})
}

func TestEndToEnd_RegisterVerifyAndFetchProfile(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	res, err := env.auth.Register(ctx, RegisterInput{Email: "a@x.com", Password: "secret1", Name: "Ann"})
	require.NoError(t, err)
	require.True(t, res.RequiresVerification)

	_, err = env.auth.Login(ctx, "a@x.com", "secret1")
	require.ErrorIs(t, err, domain.ErrEmailNotVerified)

	session, err := env.auth.VerifyEmail(ctx, env.mailer.last(t, "verification").Token)
	require.NoError(t, err)

	me, err := env.auth.Authenticate(ctx, session.Token)
	require.NoError(t, err)
	require.Equal(t, "Ann", me.Name)
	require.True(t, me.EmailVerified)
}
