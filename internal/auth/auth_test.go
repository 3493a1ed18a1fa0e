package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/krishanu7/battleship-engine/internal/apperr"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var (
	insertUserQuery = regexp.QuoteMeta("INSERT INTO users (id, username, email, password, created_at)")
	selectUserQuery = regexp.QuoteMeta("SELECT id, username, password FROM users WHERE username = $1")
)

func newMockService(t *testing.T) (*Service, sqlmock.Sqlmock, *Tokens) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	tokens := NewTokens("secret", time.Hour)
	return NewService(conn, tokens), mock, tokens
}

func TestService_Register(t *testing.T) {
	s, mock, _ := newMockService(t)
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(insertUserQuery).
		WithArgs(sqlmock.AnyArg(), "alice", "alice@example.com", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "email", "created_at"}).
			AddRow("u-1", "alice", "alice@example.com", created))

	user, err := s.Register(context.Background(), "alice", "alice@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, "u-1", user.ID)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, created, user.CreatedAt)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.Password), []byte("hunter22")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_Register_WithoutEmail(t *testing.T) {
	s, mock, _ := newMockService(t)

	mock.ExpectQuery(insertUserQuery).
		WithArgs(sqlmock.AnyArg(), "bob", nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "email", "created_at"}).
			AddRow("u-2", "bob", "", time.Now()))

	user, err := s.Register(context.Background(), "bob", "", "hunter22")
	require.NoError(t, err)
	assert.Empty(t, user.Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_Register_Failures(t *testing.T) {
	tests := []struct {
		name     string
		dbErr    error
		wantErr  error
		wantKind error
	}{
		{"username taken", &pq.Error{Code: "23505", Constraint: "users_username_key"}, ErrUsernameTaken, apperr.ErrBadState},
		{"email taken", &pq.Error{Code: "23505", Constraint: "users_email_key"}, ErrEmailTaken, apperr.ErrBadState},
		{"other constraint", &pq.Error{Code: "23514", Constraint: "users_check"}, nil, apperr.ErrUnavailable},
		{"connection lost", errors.New("driver: bad connection"), nil, apperr.ErrUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock, _ := newMockService(t)
			mock.ExpectQuery(insertUserQuery).WillReturnError(tt.dbErr)

			_, err := s.Register(context.Background(), "alice", "alice@example.com", "hunter22")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.ErrorIs(t, err, tt.wantKind)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}

	s, _, _ := newMockService(t)
	_, err := s.Register(context.Background(), "", "", "hunter22")
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestService_Login(t *testing.T) {
	s, mock, tokens := newMockService(t)
	ctx := context.Background()
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter22"), bcrypt.MinCost)
	require.NoError(t, err)
	userRows := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{"id", "username", "password"}).AddRow("u-1", "alice", string(hash))
	}

	mock.ExpectQuery(selectUserQuery).WithArgs("alice").WillReturnRows(userRows())
	token, err := s.Login(ctx, "alice", "hunter22")
	require.NoError(t, err)
	playerID, err := tokens.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", playerID)

	mock.ExpectQuery(selectUserQuery).WithArgs("alice").WillReturnRows(userRows())
	_, err = s.Login(ctx, "alice", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	mock.ExpectQuery(selectUserQuery).WithArgs("nobody").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "password"}))
	_, err = s.Login(ctx, "nobody", "hunter22")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	mock.ExpectQuery(selectUserQuery).WithArgs("alice").WillReturnError(errors.New("connection refused"))
	_, err = s.Login(ctx, "alice", "hunter22")
	assert.ErrorIs(t, err, apperr.ErrUnavailable)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthHandler(t *testing.T) {
	s, mock, _ := newMockService(t)
	h := NewAuthHandler(s)

	post := func(handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		handler(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth", strings.NewReader(body)))
		return rec
	}

	rec := post(h.Register, `{"username":"al","password":"short"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	mock.ExpectQuery(insertUserQuery).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "email", "created_at"}).
			AddRow("u-1", "alice", "", time.Now()))
	rec = post(h.Register, `{"username":"alice","password":"hunter22"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "password")

	mock.ExpectQuery(insertUserQuery).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_username_key"})
	rec = post(h.Register, `{"username":"alice","password":"hunter22"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	mock.ExpectQuery(selectUserQuery).WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "password"}))
	rec = post(h.Login, `{"username":"alice","password":"hunter22"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kind":"unauthenticated"`)

	assert.NoError(t, mock.ExpectationsWereMet())
}
