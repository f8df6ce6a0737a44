package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/potholewatch/backend/internal/auth"
	"github.com/potholewatch/backend/internal/jurisdiction"
	"github.com/potholewatch/backend/internal/repo"
	"github.com/potholewatch/backend/internal/util"
)

var (
	// ErrInvalidCredentials is returned for an unknown email or wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrRefreshInvalid is returned for unknown, revoked or expired refresh tokens.
	ErrRefreshInvalid = auth.ErrInvalidRefresh
	// ErrEmailTaken is returned when signing up with a registered email.
	ErrEmailTaken = fmt.Errorf("email already registered: %w", repo.ErrDuplicate)
)

// ValidationError reports a rejected signup or account field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

type userRepository interface {
	InsertUser(ctx context.Context, in repo.NewUser) (repo.User, error)
	GetUserByEmail(ctx context.Context, email string) (repo.User, error)
	GetUserByID(ctx context.Context, id string) (repo.User, error)
}

type redisCommander interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// AuthService handles accounts and sessions. Refresh tokens live only in
// Redis, keyed by their hash, holding the owning user id.
type AuthService struct {
	repo       userRepository
	redis      redisCommander
	jwt        *auth.JWTManager
	refreshTTL time.Duration
}

// NewAuthService creates the service. users is any store implementing the
// user operations (Postgres or Mongo).
func NewAuthService(users userRepository, redisClient *redis.Client, jwtMgr *auth.JWTManager, refreshTTL time.Duration) *AuthService {
	return &AuthService{repo: users, redis: redisClient, jwt: jwtMgr, refreshTTL: refreshTTL}
}

// JWT exposes the token manager for middleware.
func (s *AuthService) JWT() *auth.JWTManager {
	return s.jwt
}

// Profile is the public view of a user.
type Profile struct {
	ID        string `json:"user_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	Authority string `json:"authority,omitempty"`
}

// LoginResult is returned by Login and Refresh.
type LoginResult struct {
	AccessToken   string
	RefreshToken  string
	ExpiresIn     time.Duration
	RefreshExpiry time.Time
	Profile       Profile
}

// SignupInput is the public signup payload.
type SignupInput struct {
	Name     string
	Email    string
	Password string
}

// Signup registers a regular user. Admin accounts are created with CreateUser.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (*Profile, error) {
	return s.CreateUser(ctx, in, auth.RoleUser)
}

// CreateUser registers an account with any known role. Scoped admins get
// their authority recorded as home authority.
func (s *AuthService) CreateUser(ctx context.Context, in SignupInput, role string) (*Profile, error) {
	email, err := util.NormalizeEmail(in.Email)
	if err != nil {
		return nil, &ValidationError{Field: "email", Message: err.Error()}
	}
	name, err := util.RequireString(in.Name)
	if err != nil {
		return nil, &ValidationError{Field: "name", Message: err.Error()}
	}
	if err := util.ValidatePassword(in.Password); err != nil {
		return nil, &ValidationError{Field: "password", Message: err.Error()}
	}
	role = auth.NormalizeRole(role)
	if !auth.IsKnownRole(role) {
		return nil, &ValidationError{Field: "role", Message: "unknown role " + role}
	}

	hash, err := auth.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	home := ""
	if authority, ok := auth.ScopedAuthority(role); ok {
		home = string(authority)
	}

	user, err := s.repo.InsertUser(ctx, repo.NewUser{
		Name:          name,
		Email:         email,
		PasswordHash:  hash,
		Role:          role,
		HomeAuthority: home,
	})
	if err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	log.Info().Str("user_id", user.ID).Str("role", user.Role).Msg("user created")
	profile := profileOf(user)
	return &profile, nil
}

// Login checks credentials and issues an access/refresh token pair.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.repo.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			log.Warn().Msg("login: user not found")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := auth.Verify(password, user.PasswordHash)
	if err != nil {
		log.Warn().Err(err).Msg("login: verify password failed")
		return nil, ErrInvalidCredentials
	}
	if !ok {
		log.Warn().Msg("login: wrong password")
		return nil, ErrInvalidCredentials
	}

	return s.issue(ctx, user)
}

// Refresh exchanges a refresh token for a new pair and revokes the old one.
func (s *AuthService) Refresh(ctx context.Context, rawToken string) (*LoginResult, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil, ErrRefreshInvalid
	}

	key := auth.RefreshRedisKey(auth.HashRefreshToken(rawToken))
	subject, err := s.redis.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrRefreshInvalid
	}
	if err != nil {
		return nil, err
	}

	user, err := s.repo.GetUserByID(ctx, subject)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRefreshInvalid
		}
		return nil, err
	}

	if err := s.redis.Del(ctx, key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	return s.issue(ctx, user)
}

// Logout revokes a refresh token. Unknown tokens are ignored.
func (s *AuthService) Logout(ctx context.Context, rawToken string) error {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil
	}
	key := auth.RefreshRedisKey(auth.HashRefreshToken(rawToken))
	if err := s.redis.Del(ctx, key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

// GetMe loads the profile for a token subject.
func (s *AuthService) GetMe(ctx context.Context, subject string) (*Profile, error) {
	user, err := s.repo.GetUserByID(ctx, subject)
	if err != nil {
		return nil, err
	}
	profile := profileOf(user)
	return &profile, nil
}

func (s *AuthService) issue(ctx context.Context, user repo.User) (*LoginResult, error) {
	profile := profileOf(user)

	token, _, err := s.jwt.GenerateAccessToken(auth.Identity{
		Subject:   user.ID,
		Role:      profile.Role,
		Name:      user.Name,
		Authority: profile.Authority,
	})
	if err != nil {
		return nil, err
	}

	rawRefresh, refreshHash, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}
	if err := s.redis.Set(ctx, auth.RefreshRedisKey(refreshHash), user.ID, s.refreshTTL).Err(); err != nil {
		return nil, err
	}

	return &LoginResult{
		AccessToken:   token,
		RefreshToken:  rawRefresh,
		ExpiresIn:     s.jwt.AccessTTL(),
		RefreshExpiry: time.Now().UTC().Add(s.refreshTTL),
		Profile:       profile,
	}, nil
}

// profileOf derives the authority shown to clients from the role, falling
// back to the stored home authority.
func profileOf(u repo.User) Profile {
	role := auth.NormalizeRole(u.Role)
	if role == "" {
		role = auth.RoleUser
	}
	authority := u.HomeAuthority
	if scoped, ok := auth.ScopedAuthority(role); ok {
		authority = string(scoped)
	} else if a, ok := jurisdiction.ParseAuthority(authority); ok {
		authority = string(a)
	} else {
		authority = ""
	}
	return Profile{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      role,
		Authority: authority,
	}
}
