package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/argon2"

	"github.com/formhive/webhook-service/internal/config"
	"github.com/formhive/webhook-service/internal/storage"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserLocked         = errors.New("account is locked due to too many failed attempts")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token has expired")
	ErrEmailAlreadyExists = errors.New("email already exists")
	ErrInvalidAPIKey      = errors.New("invalid API key")
	ErrInvalidScopes      = errors.New("one or more scopes are not recognized")
	ErrAPIKeyNotFound     = errors.New("API key not found")
)

const (
	maxFailedLogins = 5
	lockoutDuration = 15 * time.Minute
)

type Service struct {
	db     *storage.DB
	config *config.Config
}

type Claims struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
	jwt.RegisteredClaims
}

type APIKeyClaims struct {
	KeyID   uuid.UUID `json:"key_id"`
	AgentID uuid.UUID `json:"agent_id"`
	Scopes  []string  `json:"scopes"`
}

type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	CreatedAt time.Time `json:"created_at"`
}

// user mirrors one row of the users table.
type user struct {
	ID                  uuid.UUID
	Email               string
	PasswordHash        string
	FirstName           string
	LastName            string
	FailedLoginAttempts int
	LockedUntil         *time.Time
	CreatedAt           time.Time
}

func NewService(db *storage.DB, config *config.Config) *Service {
	return &Service{
		db:     db,
		config: config,
	}
}

func (s *Service) RegisterUser(ctx context.Context, req RegisterRequest) (*UserResponse, error) {
	// check if email already exists
	if _, err := s.getUserByEmail(ctx, req.Email); err == nil {
		return nil, ErrEmailAlreadyExists
	}

	passwordHash, err := s.hashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	var resp UserResponse
	err = s.db.QueryRow(ctx,
		`INSERT INTO users (email, password_hash, first_name, last_name)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, email, first_name, last_name, created_at`,
		req.Email, passwordHash, req.FirstName, req.LastName).
		Scan(&resp.ID, &resp.Email, &resp.FirstName, &resp.LastName, &resp.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return &resp, nil
}

func (s *Service) LoginUser(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	u, err := s.getUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	if u.LockedUntil != nil && u.LockedUntil.After(time.Now()) {
		return nil, ErrUserLocked
	}

	valid, _ := s.verifyPassword(req.Password, u.PasswordHash)
	if !valid {
		if err := s.recordFailedLogin(ctx, u); err != nil {
			log.Println("failed to record failed login attempt:", err)
		}
		return nil, ErrInvalidCredentials
	}

	// update last login and reset failed attempts
	_, err = s.db.Exec(ctx,
		`UPDATE users
		 SET last_login_at = now(), failed_login_attempts = 0, locked_until = NULL, updated_at = now()
		 WHERE id = $1`, u.ID)
	if err != nil {
		log.Println("failed to update last login:", err)
	}

	token, err := s.generateUserToken(u)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &LoginResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(24 * time.Hour),
		User: &UserResponse{
			ID:        u.ID,
			Email:     u.Email,
			FirstName: u.FirstName,
			LastName:  u.LastName,
			CreatedAt: u.CreatedAt,
		},
	}, nil
}

func (s *Service) ValidateUserToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.JWTSecret), nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(time.Now()) {
		return nil, ErrTokenExpired
	}

	return claims, nil
}

// GenerateAPIKey mints a new agent-scoped key. The caller must already have
// verified that the requesting user owns the agent.
func (s *Service) GenerateAPIKey(ctx context.Context, req CreateAPIKeyRequest) (*CreateAPIKeyResponse, error) {
	if !ValidateScopes(req.Scopes) {
		return nil, ErrInvalidScopes
	}

	keyBytes := make([]byte, 32)
	if _, err := rand.Read(keyBytes); err != nil {
		return nil, fmt.Errorf("failed to generate random key: %w", err)
	}

	apiKey := base64.URLEncoding.EncodeToString(keyBytes)
	keyPrefix := apiKey[:8] // First 8 characters for identification
	keyHash := s.hashAPIKey(apiKey)

	var (
		id        uuid.UUID
		createdAt time.Time
	)
	err := s.db.QueryRow(ctx,
		`INSERT INTO api_keys (agent_id, name, key_hash, key_prefix, scopes, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		req.AgentID, req.Name, keyHash, keyPrefix, req.Scopes, req.ExpiresAt).
		Scan(&id, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create API key: %w", err)
	}

	return &CreateAPIKeyResponse{
		ID:        id,
		Name:      req.Name,
		Key:       apiKey, // Only returned once!
		KeyPrefix: keyPrefix,
		Scopes:    req.Scopes,
		ExpiresAt: req.ExpiresAt,
		CreatedAt: createdAt,
	}, nil
}

func (s *Service) ValidateAPIKey(ctx context.Context, apiKey string) (*APIKeyClaims, error) {
	keyHash := s.hashAPIKey(apiKey)

	var (
		claims    APIKeyClaims
		expiresAt *time.Time
	)
	err := s.db.QueryRow(ctx,
		`SELECT id, agent_id, scopes, expires_at FROM api_keys WHERE key_hash = $1`, keyHash).
		Scan(&claims.KeyID, &claims.AgentID, &claims.Scopes, &expiresAt)
	if err != nil {
		return nil, ErrInvalidAPIKey
	}

	if expiresAt != nil && expiresAt.Before(time.Now()) {
		return nil, ErrInvalidAPIKey
	}

	// Update last used timestamp (fire and forget)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := s.db.Exec(ctx, `UPDATE api_keys SET last_used_at = now() WHERE id = $1`, claims.KeyID); err != nil {
			log.Println("failed to update API key last used:", err)
		}
	}()

	return &claims, nil
}

// ListAPIKeys returns an agent's keys, never including key material.
func (s *Service) ListAPIKeys(ctx context.Context, agentID uuid.UUID) ([]*APIKeyListItem, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, key_prefix, scopes, expires_at, last_used_at, created_at
		 FROM api_keys WHERE agent_id = $1 ORDER BY created_at DESC`, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list API keys: %w", err)
	}
	defer rows.Close()

	var keys []*APIKeyListItem
	for rows.Next() {
		var k APIKeyListItem
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyPrefix, &k.Scopes, &k.ExpiresAt, &k.LastUsedAt, &k.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan API key: %w", err)
		}
		keys = append(keys, &k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read API keys: %w", err)
	}
	return keys, nil
}

func (s *Service) RevokeAPIKey(ctx context.Context, agentID, keyID uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM api_keys WHERE id = $1 AND agent_id = $2`, keyID, agentID)
	if err != nil {
		return fmt.Errorf("failed to revoke API key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAPIKeyNotFound
	}
	return nil
}

func (s *Service) getUserByEmail(ctx context.Context, email string) (*user, error) {
	var u user
	err := s.db.QueryRow(ctx,
		`SELECT id, email, password_hash, first_name, last_name,
		        failed_login_attempts, locked_until, created_at
		 FROM users WHERE email = $1`, email).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
			&u.FailedLoginAttempts, &u.LockedUntil, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

func (s *Service) recordFailedLogin(ctx context.Context, u *user) error {
	if u.FailedLoginAttempts+1 >= maxFailedLogins {
		_, err := s.db.Exec(ctx,
			`UPDATE users
			 SET failed_login_attempts = failed_login_attempts + 1, locked_until = $1, updated_at = now()
			 WHERE id = $2`,
			time.Now().Add(lockoutDuration), u.ID)
		return err
	}
	_, err := s.db.Exec(ctx,
		`UPDATE users
		 SET failed_login_attempts = failed_login_attempts + 1, updated_at = now()
		 WHERE id = $1`, u.ID)
	return err
}

func (s *Service) generateUserToken(u *user) (string, error) {
	claims := &Claims{
		UserID: u.ID,
		Email:  u.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "webhook-service",
			Subject:   u.ID.String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.JWTSecret))
}

func (s *Service) hashPassword(password string) (string, error) {
	// Generate random salt
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt, 1, 64*1024, 4, 32)

	encodedSalt := base64.StdEncoding.EncodeToString(salt)
	encodedHash := base64.StdEncoding.EncodeToString(hash)

	return fmt.Sprintf("%s:%s", encodedSalt, encodedHash), nil
}

func (s *Service) verifyPassword(password, hashedPassword string) (bool, error) {
	parts := strings.Split(hashedPassword, ":")
	if len(parts) != 2 {
		return false, errors.New("invalid password hash format")
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false, err
	}

	expectedHash, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false, err
	}

	hash := argon2.IDKey([]byte(password), salt, 1, 64*1024, 4, 32)

	return string(hash) == string(expectedHash), nil
}

func (s *Service) hashAPIKey(apiKey string) string {
	hash := sha256.Sum256([]byte(apiKey + s.config.APIKeySecret))
	return hex.EncodeToString(hash[:])
}
