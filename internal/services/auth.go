package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"learnizone-backend/internal/apperr"
	"learnizone-backend/internal/middleware"
	"learnizone-backend/internal/models"
	"learnizone-backend/internal/repository"
)

const (
	refreshTokenTTL = 7 * 24 * time.Hour
	bcryptCost      = 12
)

var errNoRefreshToken = errors.New("refresh token not found")

// RefreshTokenStore keeps opaque refresh tokens. Take removes the token it
// returns, so every token is used at most once.
type RefreshTokenStore interface {
	Save(ctx context.Context, token, userID string, ttl time.Duration) error
	Take(ctx context.Context, token string) (string, error)
	Revoke(ctx context.Context, token string) error
}

type RedisTokenStore struct {
	client *redis.Client
}

func NewRedisTokenStore(client *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{client: client}
}

func (s *RedisTokenStore) Save(ctx context.Context, token, userID string, ttl time.Duration) error {
	return s.client.Set(ctx, "refresh:"+token, userID, ttl).Err()
}

func (s *RedisTokenStore) Take(ctx context.Context, token string) (string, error) {
	userID, err := s.client.GetDel(ctx, "refresh:"+token).Result()
	if errors.Is(err, redis.Nil) {
		return "", errNoRefreshToken
	}
	return userID, err
}

func (s *RedisTokenStore) Revoke(ctx context.Context, token string) error {
	return s.client.Del(ctx, "refresh:"+token).Err()
}

// MemoryTokenStore keeps refresh tokens in process, for single-node runs
// without Redis. Tokens do not survive a restart.
type MemoryTokenStore struct {
	mu     sync.Mutex
	tokens map[string]memoryToken
	now    func() time.Time
}

type memoryToken struct {
	userID    string
	expiresAt time.Time
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: make(map[string]memoryToken), now: time.Now}
}

func (s *MemoryTokenStore) Save(_ context.Context, token, userID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = memoryToken{userID: userID, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryTokenStore) Take(_ context.Context, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[token]
	delete(s.tokens, token)
	if !ok || !s.now().Before(t.expiresAt) {
		return "", errNoRefreshToken
	}
	return t.userID, nil
}

func (s *MemoryTokenStore) Revoke(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
	return nil
}

type AuthService struct {
	userRepo *repository.UserRepo
	tokens   RefreshTokenStore
	jwt      *middleware.JWTAuth
}

func NewAuthService(userRepo *repository.UserRepo, tokens RefreshTokenStore, jwt *middleware.JWTAuth) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		tokens:   tokens,
		jwt:      jwt,
	}
}

// Register creates an account and signs it in.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthTokens, error) {
	fieldErrors := make(map[string]string)
	if strings.TrimSpace(req.FullName) == "" {
		fieldErrors["full_name"] = "Full name is required"
	}
	if err := validatePassword(req.Password); err != nil {
		fieldErrors["password"] = err.Error()
	}
	if len(fieldErrors) > 0 {
		return nil, &apperr.ValidationError{Fields: fieldErrors}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Email:        req.Email,
		PasswordHash: string(hash),
		FullName:     strings.TrimSpace(req.FullName),
		PhotoURL:     req.PhotoURL,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	return s.issueTokens(ctx, user)
}

func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.AuthTokens, error) {
	user, err := s.userRepo.GetByEmail(ctx, req.Email)
	if apperr.IsNotFound(err) {
		return nil, &apperr.UnauthorizedError{Message: "Invalid email or password"}
	}
	if err != nil {
		return nil, err
	}

	if !user.IsActive {
		return nil, &apperr.UnauthorizedError{Message: "Account is deactivated"}
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, &apperr.UnauthorizedError{Message: "Invalid email or password"}
	}

	now := time.Now().UTC()
	if err := s.userRepo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, err
	}
	user.LastLoginAt = &now

	return s.issueTokens(ctx, user)
}

// Refresh rotates a refresh token into a new token pair.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*models.AuthTokens, error) {
	userID, err := s.tokens.Take(ctx, refreshToken)
	if errors.Is(err, errNoRefreshToken) {
		return nil, &apperr.UnauthorizedError{Message: "Invalid or expired refresh token. Please log in again."}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read refresh token: %w", err)
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, &apperr.UnauthorizedError{Message: "Account is deactivated"}
	}
	return s.issueTokens(ctx, user)
}

func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	return s.tokens.Revoke(ctx, refreshToken)
}

func (s *AuthService) Profile(ctx context.Context, userID string) (*models.Profile, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	profile := user.Profile()
	return &profile, nil
}

func (s *AuthService) issueTokens(ctx context.Context, user *models.User) (*models.AuthTokens, error) {
	accessToken, err := s.jwt.GenerateAccessToken(user.ID, user.Email, user.FullName)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := generateToken(64)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.Save(ctx, refreshToken, user.ID, refreshTokenTTL); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	profile := user.Profile()
	return &models.AuthTokens{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(middleware.AccessTokenTTL.Seconds()),
		User:         &profile,
	}, nil
}

func generateToken(bytes int) (string, error) {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func validatePassword(pw string) error {
	if len(pw) < 8 {
		return fmt.Errorf("Password must be at least 8 characters")
	}
	for _, ch := range pw {
		if unicode.IsDigit(ch) {
			return nil
		}
	}
	return fmt.Errorf("Password must contain at least one number")
}
