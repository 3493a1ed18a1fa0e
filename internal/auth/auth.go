package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/krishanu7/battleship-engine/db"
	"github.com/krishanu7/battleship-engine/internal/apperr"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUsernameTaken      = apperr.New(apperr.ErrBadState, "username already exists")
	ErrEmailTaken         = apperr.New(apperr.ErrBadState, "email already exists")
	ErrInvalidCredentials = apperr.New(apperr.ErrUnauthenticated, "invalid credentials")
	ErrMissingCredentials = apperr.New(apperr.ErrValidation, "username and password cannot be empty")
)

// Service manages player accounts.
type Service struct {
	db     *sql.DB
	tokens *Tokens
}

func NewService(conn *sql.DB, tokens *Tokens) *Service {
	return &Service{
		db:     conn,
		tokens: tokens,
	}
}

func (s *Service) Register(ctx context.Context, username, email, password string) (db.User, error) {
	if username == "" || password == "" {
		return db.User{}, ErrMissingCredentials
	}
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return db.User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	var emailArg any
	if email != "" {
		emailArg = email
	}
	query := "INSERT INTO users (id, username, email, password, created_at) VALUES ($1, $2, $3, $4, $5) RETURNING id, username, COALESCE(email, ''), created_at"
	var user db.User
	err = s.db.QueryRowContext(ctx, query, uuid.NewString(), username, emailArg, string(hashedPassword), time.Now().UTC()).
		Scan(&user.ID, &user.Username, &user.Email, &user.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			switch pqErr.Constraint {
			case "users_username_key":
				return db.User{}, ErrUsernameTaken
			case "users_email_key":
				return db.User{}, ErrEmailTaken
			}
		}
		return db.User{}, apperr.Wrap(apperr.ErrUnavailable, err, "failed to create user")
	}
	user.Password = string(hashedPassword)
	return user, nil
}

// Login checks the password and returns a signed token for the user.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	var user db.User
	err := s.db.QueryRowContext(ctx, `
	SELECT id, username, password
	FROM users
	WHERE username = $1
`, username).Scan(&user.ID, &user.Username, &user.Password)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", apperr.Wrap(apperr.ErrUnavailable, err, "failed to load user")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return s.tokens.Issue(user.ID)
}
