package repository

import (
	"testing"
	"time"

	"medicapp-sync/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSession() *domain.Session {
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	return &domain.Session{
		Token:        "token-abc",
		ExpiresAt:    now.Add(30 * time.Minute),
		LastActivity: now,
		User: domain.SessionUser{
			ID:    "u1",
			Email: "ana@clinic.mx",
			Name:  "Ana",
			Role:  domain.RoleUser,
		},
	}
}

func TestSessionRoundTrip(t *testing.T) {
	store, _ := openTestStore(t)

	require.NoError(t, store.SaveSession(testSession()))

	session, err := store.LoadSession()
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "token-abc", session.Token)
	assert.Equal(t, "u1", session.User.ID)

	user, err := store.LoadSessionUser()
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, session.User, *user, "denormalized copy matches the envelope")
}

func TestLoadSession_NonePersisted(t *testing.T) {
	store, _ := openTestStore(t)

	session, err := store.LoadSession()
	require.NoError(t, err)
	assert.Nil(t, session)

	user, err := store.LoadSessionUser()
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestClearSession_RemovesBothKeys(t *testing.T) {
	store, _ := openTestStore(t)

	require.NoError(t, store.SaveSession(testSession()))
	require.NoError(t, store.ClearSession())

	session, err := store.LoadSession()
	require.NoError(t, err)
	assert.Nil(t, session)

	user, err := store.LoadSessionUser()
	require.NoError(t, err)
	assert.Nil(t, user)

	require.NoError(t, store.ClearSession(), "clearing twice is harmless")
}

func TestLoadSession_UnusableEnvelopeIsCorrupt(t *testing.T) {
	store, _ := openTestStore(t)

	// An envelope missing its token or expiry is not a session.
	broken := testSession()
	broken.Token = ""
	require.NoError(t, store.SaveSession(broken))

	_, err := store.LoadSession()
	assert.ErrorIs(t, err, ErrSessionCorrupt)
}

func TestSessionSurvivesReopen(t *testing.T) {
	store, path := openTestStore(t)

	require.NoError(t, store.SaveSession(testSession()))
	require.NoError(t, store.Close())

	reopened, err := OpenLocalStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	session, err := reopened.LoadSession()
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "token-abc", session.Token)
}
