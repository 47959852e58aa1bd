package auth

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/n-rosenthal/sala-de-leitura/internal/audit"
)

var (
	ErrAlreadyExists = errors.New("already exists")
	ErrNotFound      = errors.New("not found")
	ErrAuthFailed    = errors.New("authentication failed")
)

type Service struct {
	store    AccountStore
	recorder audit.Recorder
	secret   []byte
	tokenTTL time.Duration
}

func NewService(conn *sql.DB, recorder audit.Recorder, secret []byte, tokenTTL time.Duration) *Service {
	return &Service{
		store:    NewStore(conn),
		recorder: recorder,
		secret:   secret,
		tokenTTL: tokenTTL,
	}
}

func (s *Service) Secret() []byte { return s.secret }

// Login verifies credentials and issues a signed token. The role claim is the
// domain role of the linked member, not an identity attribute.
func (s *Service) Login(ctx context.Context, username, password string, client audit.ClientContext) (string, error) {
	acct, err := s.store.GetByUsername(ctx, username)
	if err != nil {
		return "", err
	}
	if acct == nil || acct.IsDisabled {
		s.recordLogin(ctx, "", username, false, client)
		return "", ErrAuthFailed
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		s.recordLogin(ctx, acct.ID, username, false, client)
		return "", ErrAuthFailed
	}

	role, err := s.store.RoleForAccount(ctx, acct.ID)
	if err != nil {
		return "", err
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  acct.ID,
		"role": role,
		"exp":  time.Now().Add(s.tokenTTL).Unix(),
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", err
	}
	s.recordLogin(ctx, acct.ID, username, true, client)
	return signed, nil
}

// Register creates a new identity account and returns its id.
func (s *Service) Register(ctx context.Context, username, password string) (string, error) {
	exists, err := s.store.GetByUsername(ctx, username)
	if err != nil {
		return "", err
	}
	if exists != nil {
		return "", ErrAlreadyExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	if err := s.store.Create(ctx, &Account{
		ID:           id,
		Username:     username,
		PasswordHash: string(hash),
		IsDisabled:   false,
	}); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Service) Disable(ctx context.Context, id string) error {
	n, err := s.store.SetDisabled(ctx, id, true)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Service) recordLogin(ctx context.Context, accountID, username string, success bool, client audit.ClientContext) {
	if s.recorder == nil {
		return
	}
	action := audit.ActionLogin
	msg := "login ok"
	if !success {
		action = audit.ActionLoginFailed
		msg = "login failed for " + username
	}
	if err := s.recorder.Record(ctx, audit.Entry{
		ActorID:      accountID,
		Action:       action,
		ResourceType: "auth_account",
		ResourceID:   accountID,
		Success:      success,
		Message:      msg,
		Client:       client,
	}); err != nil {
		log.Printf("[WARN] audit record failed: %v", err)
	}
}
