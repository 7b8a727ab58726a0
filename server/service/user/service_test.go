package user

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/plaza/server/auth"
	apierrors "github.com/hrygo/plaza/server/internal/errors"
	storetest "github.com/hrygo/plaza/store/test"
)

const testSecret = "test-secret"

func TestCreateUser(t *testing.T) {
	ctx := context.Background()
	svc := NewService(storetest.NewTestingStore(ctx, t), testSecret)

	user, err := svc.CreateUser(ctx, &CreateUserRequest{Username: " grace ", Email: "Grace@Example.com"})
	require.NoError(t, err)
	assert.Equal(t, "grace", user.Username)
	assert.Equal(t, "grace@example.com", user.Email)
	assert.Equal(t, "grace", user.Nickname)

	_, err = svc.CreateUser(ctx, &CreateUserRequest{Username: "grace", Email: "other@example.com"})
	assert.True(t, apierrors.IsCode(err, apierrors.ErrCodeConflict), "got %v", err)

	tests := []struct {
		name   string
		create *CreateUserRequest
	}{
		{"short username", &CreateUserRequest{Username: "g", Email: "g@example.com"}},
		{"username with space", &CreateUserRequest{Username: "g h", Email: "gh@example.com"}},
		{"trailing dash", &CreateUserRequest{Username: "grace-", Email: "gd@example.com"}},
		{"bad email", &CreateUserRequest{Username: "hopper", Email: "not-an-email"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateUser(ctx, tt.create)
			assert.True(t, apierrors.IsCode(err, apierrors.ErrCodeBadRequest), "got %v", err)
		})
	}
}

func TestGetAndUpdateUser(t *testing.T) {
	ctx := context.Background()
	svc := NewService(storetest.NewTestingStore(ctx, t), testSecret)
	grace, err := svc.CreateUser(ctx, &CreateUserRequest{Username: "grace", Email: "grace@example.com"})
	require.NoError(t, err)
	alan, err := svc.CreateUser(ctx, &CreateUserRequest{Username: "alan", Email: "alan@example.com"})
	require.NoError(t, err)

	byName, err := svc.GetUserByUsername(ctx, "grace")
	require.NoError(t, err)
	assert.Equal(t, grace.ID, byName.ID)

	_, err = svc.GetUser(ctx, 9999)
	assert.True(t, apierrors.IsCode(err, apierrors.ErrCodeNotFound))
	_, err = svc.GetUserByUsername(ctx, "nobody")
	assert.True(t, apierrors.IsCode(err, apierrors.ErrCodeNotFound))

	nickname := "Amazing Grace"
	_, err = svc.UpdateUser(ctx, alan.ID, grace.ID, &UpdateUserRequest{Nickname: &nickname})
	assert.True(t, apierrors.IsCode(err, apierrors.ErrCodeForbidden))

	username := "ghopper"
	updated, err := svc.UpdateUser(ctx, grace.ID, grace.ID, &UpdateUserRequest{Nickname: &nickname, Username: &username})
	require.NoError(t, err)
	assert.Equal(t, nickname, updated.Nickname)

	// The old username index entry must not serve the stale user.
	_, err = svc.GetUserByUsername(ctx, "grace")
	assert.True(t, apierrors.IsCode(err, apierrors.ErrCodeNotFound))
	renamed, err := svc.GetUserByUsername(ctx, "ghopper")
	require.NoError(t, err)
	assert.Equal(t, nickname, renamed.Nickname)

	taken := "alan"
	_, err = svc.UpdateUser(ctx, grace.ID, grace.ID, &UpdateUserRequest{Username: &taken})
	assert.True(t, apierrors.IsCode(err, apierrors.ErrCodeConflict))
}

func TestSessions(t *testing.T) {
	ctx := context.Background()
	st := storetest.NewTestingStore(ctx, t)
	svc := NewService(st, testSecret)
	grace, err := svc.CreateUser(ctx, &CreateUserRequest{Username: "grace", Email: "grace@example.com"})
	require.NoError(t, err)

	session, err := svc.IssueSession(ctx, grace.ID)
	require.NoError(t, err)
	claims, err := auth.ParseToken(testSecret, session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, session.SessionID, claims.SessionID)
	userID, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, grace.ID, userID)

	second, err := svc.IssueSession(ctx, grace.ID)
	require.NoError(t, err)
	sessions, err := svc.ListSessions(ctx, grace.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{session.SessionID, second.SessionID}, sessions)

	require.NoError(t, svc.RevokeSession(ctx, grace.ID, session.SessionID))
	live, err := st.HasUserSession(ctx, grace.ID, session.SessionID)
	require.NoError(t, err)
	assert.False(t, live)
	live, err = st.HasUserSession(ctx, grace.ID, second.SessionID)
	require.NoError(t, err)
	assert.True(t, live)

	_, err = svc.IssueSession(ctx, 9999)
	assert.True(t, apierrors.IsCode(err, apierrors.ErrCodeNotFound))
}
