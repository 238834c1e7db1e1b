package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-homework-api/internal/models"
	"github.com/noah-isme/gema-homework-api/internal/repository"
)

// Identity is an authenticated principal as known to the credential service.
// The role lives in the users collection and is resolved separately.
type Identity struct {
	ID    string
	Email string
}

// TokenClaims are the claims carried by a session token.
type TokenClaims struct {
	PrincipalID string
	SessionID   string
	Email       string
	ExpiresAt   time.Time
}

// CredentialService manages sign-in secrets and session tokens.
type CredentialService interface {
	SignUp(ctx context.Context, email, password string) (string, error)
	Verify(ctx context.Context, email, password string) (Identity, error)
	IssueToken(identity Identity, sessionID string) (string, time.Time, error)
	ParseToken(token string) (TokenClaims, error)
}

type credentialService struct {
	repo   repository.CredentialRepository
	secret []byte
	ttl    time.Duration
	cost   int
	logger zerolog.Logger
	now    func() time.Time
}

// NewCredentialService constructs the credential service.
func NewCredentialService(repo repository.CredentialRepository, secret string, ttl time.Duration, logger zerolog.Logger) CredentialService {
	return &credentialService{
		repo:   repo,
		secret: []byte(secret),
		ttl:    ttl,
		cost:   bcrypt.DefaultCost,
		logger: logger.With().Str("component", "credential_service").Logger(),
		now:    time.Now,
	}
}

func (s *credentialService) SignUp(ctx context.Context, email, password string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return "", validationError("Please enter email and password.")
	}

	exists, err := s.repo.ExistsByEmail(ctx, email)
	if err != nil {
		return "", backendError("Error signing up", err)
	}
	if exists {
		return "", authError("The email address is already in use by another account.", nil)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", backendError("Error signing up", err)
	}

	credential := models.Credential{
		PrincipalID:  uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
	}
	if err := s.repo.Create(ctx, &credential); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return "", authError("The email address is already in use by another account.", err)
		}
		return "", backendError("Error signing up", err)
	}

	s.logger.Info().Str("principal_id", credential.PrincipalID).Msg("principal signed up")
	return credential.PrincipalID, nil
}

func (s *credentialService) Verify(ctx context.Context, email, password string) (Identity, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return Identity{}, validationError("Enter email and password.")
	}

	credential, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Identity{}, authError("Invalid email or password.", nil)
		}
		return Identity{}, backendError("Error signing in", err)
	}

	if err := bcrypt.CompareHashAndPassword(credential.PasswordHash, []byte(password)); err != nil {
		return Identity{}, authError("Invalid email or password.", nil)
	}

	return Identity{ID: credential.PrincipalID, Email: credential.Email}, nil
}

func (s *credentialService) IssueToken(identity Identity, sessionID string) (string, time.Time, error) {
	issuedAt := s.now().UTC()
	expiresAt := issuedAt.Add(s.ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   identity.ID,
		"sid":   sessionID,
		"email": identity.Email,
		"iat":   issuedAt.Unix(),
		"exp":   expiresAt.Unix(),
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

func (s *credentialService) ParseToken(tokenString string) (TokenClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return TokenClaims{}, authError("invalid token", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return TokenClaims{}, authError("invalid token claims", nil)
	}

	subject, _ := claims["sub"].(string)
	sessionID, _ := claims["sid"].(string)
	email, _ := claims["email"].(string)
	if subject == "" || sessionID == "" {
		return TokenClaims{}, authError("invalid token claims", nil)
	}

	parsed := TokenClaims{PrincipalID: subject, SessionID: sessionID, Email: email}
	if expiry, err := claims.GetExpirationTime(); err == nil && expiry != nil {
		parsed.ExpiresAt = expiry.Time
	}
	return parsed, nil
}
