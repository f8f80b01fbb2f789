package services

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alprslanymeria/oauthserver/internal/common"
	"github.com/alprslanymeria/oauthserver/internal/server/models"
	usersrepo "github.com/alprslanymeria/oauthserver/internal/server/repositories/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func newTestBinder(db *sql.DB, rm *fakeRepoManager) *FederatedIdentityBinder {
	return NewFederatedIdentityBinder(db, rm, newTestLedger(db, rm), nopLogger())
}

var googleAlice = FederatedIdentity{Email: "alice@gmail.com", Name: "Alice", Subject: "g-123", Picture: "https://pics/a.png"}

func TestBindOrCreate_TwiceSameEmail(t *testing.T) {
	db, mock := newSQLMockDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	rm := newFakeRepoManager()
	b := newTestBinder(db, rm)
	ctx := context.Background()

	first, err := b.BindOrCreate(ctx, googleAlice)
	require.NoError(t, err)

	second, err := b.BindOrCreate(ctx, googleAlice)
	require.NoError(t, err)

	assert.Equal(t, 1, rm.u.created)
	require.Len(t, rm.u.logins, 1)
	assert.Equal(t, ProviderGoogle, rm.u.logins[0].Provider)
	assert.Equal(t, "g-123", rm.u.logins[0].ProviderKey)

	issuer := newTestIssuer()
	c1, err := issuer.ParseAccessToken(first.AccessToken)
	require.NoError(t, err)
	c2, err := issuer.ParseAccessToken(second.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, c1.Subject, c2.Subject)

	u, err := rm.u.GetByID(ctx, c1.Subject)
	require.NoError(t, err)
	assert.True(t, u.EmailConfirmed)
	assert.True(t, u.IsActive)
	assert.Equal(t, "Alice", u.FirstName)
	assert.Equal(t, "https://pics/a.png", u.Picture)
	assert.NotEmpty(t, u.PasswordHash)

	assert.Equal(t, 1, rm.r.rows())
	assert.Equal(t, second.RefreshToken, rm.r.tokenOf(u.ID))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBindOrCreate_DefaultFirstName(t *testing.T) {
	db, mock := newSQLMockDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	rm := newFakeRepoManager()
	_, err := newTestBinder(db, rm).BindOrCreate(context.Background(), FederatedIdentity{Email: "bob@gmail.com", Subject: "g-9"})
	require.NoError(t, err)

	u, err := rm.u.GetByEmail(context.Background(), "bob@gmail.com")
	require.NoError(t, err)
	assert.Equal(t, "Google User", u.FirstName)
	assert.Equal(t, "bob@gmail.com", u.UserName)
}

func TestBindOrCreate_ExistingUserNotRelinked(t *testing.T) {
	db, mock := newSQLMockDB(t)

	rm := newFakeRepoManager(activeUser("u1", "alice@gmail.com"))
	tok, err := newTestBinder(db, rm).BindOrCreate(context.Background(), googleAlice)
	require.NoError(t, err)

	claims, err := newTestIssuer().ParseAccessToken(tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Empty(t, rm.u.logins)
	assert.Equal(t, 0, rm.u.created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBindOrCreate_LostRaceFallsBackToLookup(t *testing.T) {
	db, mock := newSQLMockDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	rm := newFakeRepoManager(activeUser("winner", "alice@gmail.com"))
	rm.u.hideEmail = true

	tok, err := newTestBinder(db, rm).BindOrCreate(context.Background(), googleAlice)
	require.NoError(t, err)

	claims, err := newTestIssuer().ParseAccessToken(tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "winner", claims.Subject)
	assert.Equal(t, 0, rm.u.created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBindOrCreate_Failures(t *testing.T) {
	t.Run("missing email", func(t *testing.T) {
		db, _ := newSQLMockDB(t)
		_, err := newTestBinder(db, newFakeRepoManager()).BindOrCreate(context.Background(), FederatedIdentity{Subject: "x"})
		requireKind(t, err, common.ErrorBusiness)
	})

	t.Run("invalid email fails validation", func(t *testing.T) {
		db, mock := newSQLMockDB(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		rm := newFakeRepoManager()
		_, err := newTestBinder(db, rm).BindOrCreate(context.Background(), FederatedIdentity{Email: "not an email", Subject: "x"})
		requireKind(t, err, common.ErrorBusiness)
		assert.NotEmpty(t, common.Messages(err))
		assert.Equal(t, 0, rm.r.rows())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("link failure rolls back", func(t *testing.T) {
		db, mock := newSQLMockDB(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		rm := newFakeRepoManager()
		rm.u.loginErr = errBoom{}
		_, err := newTestBinder(db, rm).BindOrCreate(context.Background(), googleAlice)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "error linking external login")
		assert.Equal(t, 0, rm.r.rows())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("subject linked to another user", func(t *testing.T) {
		db, mock := newSQLMockDB(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		rm := newFakeRepoManager()
		rm.u.logins = []models.UserLogin{{Provider: ProviderGoogle, ProviderKey: "g-123", UserID: "someone-else"}}

		_, err := newTestBinder(db, rm).BindOrCreate(context.Background(), googleAlice)
		requireKind(t, err, common.ErrorConflict)
		assert.Equal(t, []string{usersrepo.MsgLoginLinkedElsewhere}, common.Messages(err))
		assert.Equal(t, 0, rm.r.rows())
		require.Len(t, rm.u.logins, 1)
		assert.Equal(t, "someone-else", rm.u.logins[0].UserID)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("deactivated user", func(t *testing.T) {
		db, _ := newSQLMockDB(t)
		u := activeUser("u1", "alice@gmail.com")
		u.IsActive = false
		_, err := newTestBinder(db, newFakeRepoManager(u)).BindOrCreate(context.Background(), googleAlice)
		requireKind(t, err, common.ErrorForbidden)
	})
}
