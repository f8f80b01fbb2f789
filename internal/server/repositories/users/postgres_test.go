package users

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alprslanymeria/oauthserver/internal/common"
	"github.com/alprslanymeria/oauthserver/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

const insertQ = `(?s)^INSERT\s+INTO\s+users\s*\(id,\s*username,\s*email,\s*phone_number,.*VALUES\s*\(\$1,.*\$10\)\s*RETURNING\s+created_at\s*$`

var userColumns = []string{
	"id", "username", "email", "phone_number", "first_name", "picture", "password_hash",
	"is_active", "email_confirmed", "phone_confirmed", "created_at",
}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectQuery(insertQ).
		WithArgs("u1", "alice", "a@x.com", nil, "Alice", "", "hash", true, true, false).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))

	u := &models.User{
		ID: "u1", UserName: "alice", Email: "a@x.com", FirstName: "Alice",
		PasswordHash: "hash", IsActive: true, EmailConfirmed: true,
	}
	got, err := repo.Create(context.Background(), u)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if got.ID != "u1" || !got.CreatedAt.Equal(created) {
		t.Fatalf("unexpected user: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreate_UniqueViolationIsConflict(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(insertQ).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_phone_number_key"})

	_, err := repo.Create(context.Background(), &models.User{ID: "u1", UserName: "alice", PhoneNumber: "+1"})
	if !errors.Is(err, common.ErrorConflict) {
		t.Fatalf("want common.ErrorConflict, got %v", err)
	}
	if msgs := common.Messages(err); len(msgs) != 1 || msgs[0] != "Phone number is already registered." {
		t.Fatalf("unexpected messages: %v", msgs)
	}
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(insertQ).WillReturnError(errors.New("db down"))

	_, err := repo.Create(context.Background(), &models.User{ID: "u1", UserName: "alice"})
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestGetBy_Lookups(t *testing.T) {
	created := time.Now().UTC()

	tests := []struct {
		name   string
		column string
		arg    string
		call   func(r *PostgresRepository, arg string) (*models.User, error)
	}{
		{"by id", "id", "u1", func(r *PostgresRepository, a string) (*models.User, error) {
			return r.GetByID(context.Background(), a)
		}},
		{"by email", "email", "a@x.com", func(r *PostgresRepository, a string) (*models.User, error) {
			return r.GetByEmail(context.Background(), a)
		}},
		{"by username", "username", "alice", func(r *PostgresRepository, a string) (*models.User, error) {
			return r.GetByUserName(context.Background(), a)
		}},
		{"by phone", "phone_number", "+100", func(r *PostgresRepository, a string) (*models.User, error) {
			return r.GetByPhone(context.Background(), a)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock, db := newRepoWithMock(t)
			defer db.Close()

			q := `(?s)^\s*SELECT\s+id,\s*username,.*FROM\s+users\s+WHERE\s+` + tt.column + `\s*=\s*\$1\s*$`
			mock.ExpectQuery(q).
				WithArgs(tt.arg).
				WillReturnRows(sqlmock.NewRows(userColumns).
					AddRow("u1", "alice", "a@x.com", nil, "Alice", "", "hash", true, true, false, created))

			got, err := tt.call(repo, tt.arg)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.ID != "u1" || got.Email != "a@x.com" || got.PhoneNumber != "" || !got.IsActive {
				t.Fatalf("unexpected user: %+v", got)
			}
		})
	}
}

func TestGetByEmail_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)FROM\s+users\s+WHERE\s+email`).
		WithArgs("missing@x.com").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByEmail(context.Background(), "missing@x.com")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestUpdate(t *testing.T) {
	q := `(?s)^UPDATE\s+users\s+SET\s+username\s*=\s*\$2,.*WHERE\s+id\s*=\s*\$1\s*$`

	t.Run("updated", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectExec(q).
			WithArgs("u1", "alice", "a@x.com", nil, "Alice", "", "hash", false, true, false).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Update(context.Background(), &models.User{
			ID: "u1", UserName: "alice", Email: "a@x.com", FirstName: "Alice", PasswordHash: "hash", EmailConfirmed: true,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("missing row", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectExec(q).WillReturnResult(sqlmock.NewResult(0, 0))

		if err := repo.Update(context.Background(), &models.User{ID: "nope"}); !errors.Is(err, common.ErrorNotFound) {
			t.Fatalf("want common.ErrorNotFound, got %v", err)
		}
	})
}

func TestAddLogin(t *testing.T) {
	insert := `(?s)^INSERT\s+INTO\s+user_logins\s*\(provider,\s*provider_key,\s*user_id\).*ON\s+CONFLICT\s*\(provider,\s*provider_key\)\s*DO\s+NOTHING\s*$`
	owner := `^SELECT\s+user_id\s+FROM\s+user_logins\s+WHERE\s+provider\s*=\s*\$1\s+AND\s+provider_key\s*=\s*\$2$`
	login := models.UserLogin{Provider: "Google", ProviderKey: "sub-1", UserID: "u1"}

	t.Run("new link", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectExec(insert).
			WithArgs("Google", "sub-1", "u1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		if err := repo.AddLogin(context.Background(), login); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet expectations: %v", err)
		}
	})

	t.Run("same user twice", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectExec(insert).
			WithArgs("Google", "sub-1", "u1").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(owner).
			WithArgs("Google", "sub-1").
			WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("u1"))

		if err := repo.AddLogin(context.Background(), login); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet expectations: %v", err)
		}
	})

	t.Run("linked to another user", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectExec(insert).
			WithArgs("Google", "sub-1", "u1").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(owner).
			WithArgs("Google", "sub-1").
			WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("u2"))

		err := repo.AddLogin(context.Background(), login)
		if !errors.Is(err, common.ErrorConflict) {
			t.Fatalf("expected conflict, got %v", err)
		}
		if msgs := common.Messages(err); len(msgs) != 1 || msgs[0] != MsgLoginLinkedElsewhere {
			t.Fatalf("unexpected messages: %v", msgs)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet expectations: %v", err)
		}
	})
}
