package services

import (
	"bytes"
	"context"
	"database/sql"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alprslanymeria/oauthserver/internal/common"
	"github.com/alprslanymeria/oauthserver/internal/cryptox"
	"github.com/alprslanymeria/oauthserver/internal/dbx"
	"github.com/alprslanymeria/oauthserver/internal/logging"
	"github.com/alprslanymeria/oauthserver/internal/server/auth"
	"github.com/alprslanymeria/oauthserver/internal/server/models"
	passkeysrepo "github.com/alprslanymeria/oauthserver/internal/server/repositories/passkeys"
	refreshtokensrepo "github.com/alprslanymeria/oauthserver/internal/server/repositories/refreshtokens"
	usersrepo "github.com/alprslanymeria/oauthserver/internal/server/repositories/users"
)

// --- users ---

type fakeUsersRepo struct {
	mu      sync.Mutex
	byID    map[string]*models.User
	logins  []models.UserLogin
	created int

	// hideEmail makes the next GetByEmail miss, simulating a concurrent
	// creator that committed between our lookup and our insert.
	hideEmail bool
	loginErr  error
	getErr    error
}

func newFakeUsersRepo(users ...*models.User) *fakeUsersRepo {
	f := &fakeUsersRepo{byID: map[string]*models.User{}}
	for _, u := range users {
		cp := *u
		f.byID[u.ID] = &cp
	}
	return f
}

func (f *fakeUsersRepo) Create(_ context.Context, u *models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, x := range f.byID {
		if u.Email != "" && x.Email == u.Email {
			return nil, common.Conflict("Email is already registered.")
		}
		if x.UserName == u.UserName {
			return nil, common.Conflict("User name is already taken.")
		}
	}
	f.created++
	cp := *u
	f.byID[u.ID] = &cp
	return u, nil
}

func (f *fakeUsersRepo) Update(_ context.Context, u *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[u.ID]; !ok {
		return common.ErrorNotFound
	}
	cp := *u
	f.byID[u.ID] = &cp
	return nil
}

func (f *fakeUsersRepo) find(match func(*models.User) bool) (*models.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, u := range f.byID {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsersRepo) GetByID(_ context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.find(func(u *models.User) bool { return u.ID == id })
}

func (f *fakeUsersRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hideEmail {
		f.hideEmail = false
		return nil, common.ErrorNotFound
	}
	return f.find(func(u *models.User) bool { return u.Email == email })
}

func (f *fakeUsersRepo) GetByUserName(_ context.Context, name string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.find(func(u *models.User) bool { return u.UserName == name })
}

func (f *fakeUsersRepo) GetByPhone(_ context.Context, phone string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.find(func(u *models.User) bool { return u.PhoneNumber != "" && u.PhoneNumber == phone })
}

func (f *fakeUsersRepo) AddLogin(_ context.Context, l models.UserLogin) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loginErr != nil {
		return f.loginErr
	}
	for _, x := range f.logins {
		if x.Provider == l.Provider && x.ProviderKey == l.ProviderKey {
			if x.UserID != l.UserID {
				return common.Conflict(usersrepo.MsgLoginLinkedElsewhere)
			}
			return nil
		}
	}
	f.logins = append(f.logins, l)
	return nil
}

// --- refresh tokens ---

// fakeRefreshRepo keeps one row per user and implements Rotate as a real
// compare-and-swap under its mutex.
type fakeRefreshRepo struct {
	mu     sync.Mutex
	byUser map[string]models.RefreshToken

	findErr error
}

func newFakeRefreshRepo() *fakeRefreshRepo {
	return &fakeRefreshRepo{byUser: map[string]models.RefreshToken{}}
}

func (f *fakeRefreshRepo) Upsert(_ context.Context, userID, token string, expires time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byUser[userID] = models.RefreshToken{UserID: userID, Token: token, Expires: expires}
	return nil
}

func (f *fakeRefreshRepo) Find(_ context.Context, token string) (*models.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, rt := range f.byUser {
		if rt.Token == token {
			cp := rt
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeRefreshRepo) Rotate(_ context.Context, oldToken, newToken string, expires, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, rt := range f.byUser {
		if rt.Token == oldToken && rt.Expires.After(now) {
			f.byUser[id] = models.RefreshToken{UserID: id, Token: newToken, Expires: expires}
			return nil
		}
	}
	return common.ErrorNotFound
}

func (f *fakeRefreshRepo) Delete(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, rt := range f.byUser {
		if rt.Token == token {
			delete(f.byUser, id)
			return nil
		}
	}
	return common.ErrorNotFound
}

func (f *fakeRefreshRepo) rows() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byUser)
}

func (f *fakeRefreshRepo) tokenOf(userID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byUser[userID].Token
}

// --- passkeys ---

type fakePasskeyRepo struct {
	mu    sync.Mutex
	creds []*models.PasskeyCredential
}

func (f *fakePasskeyRepo) Create(_ context.Context, c *models.PasskeyCredential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, x := range f.creds {
		if bytes.Equal(x.CredentialID, c.CredentialID) {
			return common.Conflict("Passkey credential is already registered.")
		}
	}
	cp := *c
	f.creds = append(f.creds, &cp)
	return nil
}

func (f *fakePasskeyRepo) GetByCredentialID(_ context.Context, id []byte) (*models.PasskeyCredential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, x := range f.creds {
		if bytes.Equal(x.CredentialID, id) {
			cp := *x
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakePasskeyRepo) list(match func(*models.PasskeyCredential) bool) []*models.PasskeyCredential {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.PasskeyCredential
	for _, x := range f.creds {
		if match(x) {
			cp := *x
			out = append(out, &cp)
		}
	}
	return out
}

func (f *fakePasskeyRepo) ListByUser(_ context.Context, userID string) ([]*models.PasskeyCredential, error) {
	return f.list(func(c *models.PasskeyCredential) bool { return c.UserID == userID }), nil
}

func (f *fakePasskeyRepo) ListByUserHandle(_ context.Context, h []byte) ([]*models.PasskeyCredential, error) {
	return f.list(func(c *models.PasskeyCredential) bool { return bytes.Equal(c.UserHandle, h) }), nil
}

func (f *fakePasskeyRepo) ExistsByCredentialID(ctx context.Context, id []byte) (bool, error) {
	_, err := f.GetByCredentialID(ctx, id)
	return err == nil, nil
}

func (f *fakePasskeyRepo) UpdateCounter(_ context.Context, id string, expected, signCount uint32, backedUp bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, x := range f.creds {
		if x.ID == id && x.SignCount == expected {
			x.SignCount = signCount
			x.BackedUp = backedUp
			return nil
		}
	}
	return common.ErrorNotFound
}

// --- manager ---

type fakeRepoManager struct {
	u *fakeUsersRepo
	r *fakeRefreshRepo
	p *fakePasskeyRepo
}

func newFakeRepoManager(users ...*models.User) *fakeRepoManager {
	return &fakeRepoManager{u: newFakeUsersRepo(users...), r: newFakeRefreshRepo(), p: &fakePasskeyRepo{}}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error        { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) usersrepo.Repository                 { return m.u }
func (m *fakeRepoManager) RefreshTokens(dbx.DBTX) refreshtokensrepo.Repository { return m.r }
func (m *fakeRepoManager) Passkeys(dbx.DBTX) passkeysrepo.Repository           { return m.p }

// --- helpers ---

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

const testPassword = "Secr3t!pw"

func newTestIssuer() *auth.Issuer {
	return auth.NewIssuer(auth.IssuerConfig{
		SecretKey:       []byte("k"),
		Issuer:          "https://id.test",
		Audiences:       []string{"api"},
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 2 * time.Hour,
	})
}

func newTestLedger(db *sql.DB, rm *fakeRepoManager) *RefreshTokenLedger {
	return NewRefreshTokenLedger(db, rm, newTestIssuer())
}

// activeUser returns an active, e-mail confirmed user whose password is
// testPassword.
func activeUser(id, email string) *models.User {
	return &models.User{
		ID:             id,
		UserName:       strings.Split(email, "@")[0],
		Email:          email,
		PasswordHash:   cryptox.HashPassword(testPassword),
		IsActive:       true,
		EmailConfirmed: true,
	}
}

func nopLogger() logging.Logger { return logging.Nop{} }

func requireKind(t *testing.T, err, kind error) {
	t.Helper()
	if common.Kind(err) != kind {
		t.Fatalf("want %v, got %v", kind, err)
	}
}

// --- notifications ---

type fakeNotifier struct {
	mu   sync.Mutex
	sent []models.Notification
	err  error
}

func (f *fakeNotifier) Send(_ context.Context, n models.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, n)
	return nil
}

// lastCode returns the code from the most recent notification.
func (f *fakeNotifier) lastCode(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("no notification sent")
	}
	code, ok := strings.CutPrefix(f.sent[len(f.sent)-1].Body, "Your verification code is: ")
	if !ok {
		t.Fatalf("unexpected body %q", f.sent[len(f.sent)-1].Body)
	}
	return code
}
