package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sumire/taskflow/internal/domain"
	"github.com/sumire/taskflow/internal/repository"
)

const testSecret = "test-secret-test-secret-test-secret"

type sentMail struct {
	Kind  string
	To    string
	Name  string
	Token string
}

// fakeMailer records every send and optionally fails them.
type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) record(kind, to, name, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{Kind: kind, To: to, Name: name, Token: token})
	return m.err
}

func (m *fakeMailer) SendVerification(_ context.Context, to, name, token string) error {
	return m.record("verification", to, name, token)
}

func (m *fakeMailer) SendWelcome(_ context.Context, to, name string) error {
	return m.record("welcome", to, name, "")
}

func (m *fakeMailer) SendPasswordReset(_ context.Context, to, name, token string) error {
	return m.record("password_reset", to, name, token)
}

// last returns the most recent mail of the given kind.
func (m *fakeMailer) last(t *testing.T, kind string) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].Kind == kind {
			return m.sent[i]
		}
	}
	t.Fatalf("no %s mail sent", kind)
	return sentMail{}
}

func (m *fakeMailer) count(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sent {
		if s.Kind == kind {
			n++
		}
	}
	return n
}

type testEnv struct {
	repo   *repository.UserRepository
	tokens *TokenIssuer
	mailer *fakeMailer
	auth   *AuthService
	users  *UserService

	projects *ProjectService
	tasks    *TaskService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := repository.Open(context.Background(), "sqlite://"+filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, repository.Migrate(db))

	repo := repository.NewUserRepository(db)
	projectRepo := repository.NewProjectRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	tokens := NewTokenIssuer(testSecret, "taskflow", 7*24*time.Hour)
	mailer := &fakeMailer{}

	return &testEnv{
		repo:     repo,
		tokens:   tokens,
		mailer:   mailer,
		auth:     NewAuthService(repo, tokens, NewBcryptHasher(4), mailer, AuthConfig{}),
		users:    NewUserService(repo),
		projects: NewProjectService(projectRepo, taskRepo),
		tasks:    NewTaskService(taskRepo, projectRepo, repo),
	}
}

// registerVerified registers a local account and verifies it.
func (e *testEnv) registerVerified(t *testing.T, email, password, name string) *Session {
	t.Helper()
	ctx := context.Background()

	_, err := e.auth.Register(ctx, RegisterInput{Email: email, Password: password, Name: name})
	require.NoError(t, err)

	session, err := e.auth.VerifyEmail(ctx, e.mailer.last(t, "verification").Token)
	require.NoError(t, err)
	return session
}

// actor registers a verified account with the given role and returns the
// caller view the request gate would produce.
func (e *testEnv) actor(t *testing.T, email string, role domain.Role) domain.PublicUser {
	t.Helper()
	ctx := context.Background()

	session := e.registerVerified(t, email, "secret1", strings.Split(email, "@")[0])
	user, err := e.repo.UpdateRole(ctx, session.User.ID, role)
	require.NoError(t, err)
	return user.Public()
}

var errMailDown = errors.New("smtp unavailable")
