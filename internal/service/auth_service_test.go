package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/potholewatch/backend/internal/auth"
	"github.com/potholewatch/backend/internal/repo"
)

type stubRepo struct {
	users map[string]repo.User
	seq   int
}

func (s *stubRepo) InsertUser(ctx context.Context, in repo.NewUser) (repo.User, error) {
	if s.users == nil {
		s.users = make(map[string]repo.User)
	}
	for _, u := range s.users {
		if u.Email == in.Email {
			return repo.User{}, repo.ErrDuplicate
		}
	}
	s.seq++
	u := repo.User{
		ID:            strconv.Itoa(s.seq),
		Name:          in.Name,
		Email:         in.Email,
		PasswordHash:  in.PasswordHash,
		Role:          in.Role,
		HomeAuthority: in.HomeAuthority,
		CreatedAt:     time.Now().UTC(),
	}
	s.users[u.ID] = u
	return u, nil
}

func (s *stubRepo) GetUserByEmail(ctx context.Context, email string) (repo.User, error) {
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return repo.User{}, repo.ErrNotFound
}

func (s *stubRepo) GetUserByID(ctx context.Context, id string) (repo.User, error) {
	u, ok := s.users[id]
	if !ok {
		return repo.User{}, repo.ErrNotFound
	}
	return u, nil
}

type stubRedis struct {
	store map[string]string
}

func (s *stubRedis) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	if s.store == nil {
		s.store = make(map[string]string)
	}
	s.store[key] = fmt.Sprint(value)
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("OK")
	return cmd
}

func (s *stubRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	val, ok := s.store[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(val)
	return cmd
}

func (s *stubRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var removed int64
	for _, key := range keys {
		if _, ok := s.store[key]; ok {
			delete(s.store, key)
			removed++
		}
	}
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(removed)
	return cmd
}

func newTestService() (*AuthService, *stubRepo, *stubRedis) {
	users := &stubRepo{}
	rdb := &stubRedis{}
	svc := &AuthService{
		repo:       users,
		redis:      rdb,
		jwt:        auth.NewJWTManager("0123456789abcdef0123456789abcdef", time.Minute),
		refreshTTL: time.Hour,
	}
	return svc, users, rdb
}

func TestSignupAndLogin(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	profile, err := svc.Signup(ctx, SignupInput{Name: "Asha", Email: "Asha@Example.com", Password: "pothole123"})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if profile.Role != auth.RoleUser || profile.Email != "asha@example.com" {
		t.Fatalf("unexpected profile %+v", profile)
	}

	result, err := svc.Login(ctx, "asha@example.com", "pothole123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	claims, err := svc.JWT().ParseAndValidate(result.AccessToken)
	if err != nil {
		t.Fatalf("token invalid: %v", err)
	}
	if claims.Subject != profile.ID || claims.Role != auth.RoleUser || claims.Name != "Asha" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if result.RefreshToken == "" {
		t.Fatal("expected refresh token")
	}
}

func TestSignupDuplicateEmail(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	in := SignupInput{Name: "A", Email: "a@example.com", Password: "password1"}
	if _, err := svc.Signup(ctx, in); err != nil {
		t.Fatalf("signup: %v", err)
	}
	_, err := svc.Signup(ctx, in)
	if !errors.Is(err, ErrEmailTaken) || !errors.Is(err, repo.ErrDuplicate) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestSignupValidation(t *testing.T) {
	svc, _, _ := newTestService()

	cases := []SignupInput{
		{Name: "A", Email: "not-an-email", Password: "password1"},
		{Name: "", Email: "a@example.com", Password: "password1"},
		{Name: "A", Email: "a@example.com", Password: "short"},
	}
	for _, in := range cases {
		var verr *ValidationError
		if _, err := svc.Signup(context.Background(), in); !errors.As(err, &verr) {
			t.Fatalf("input %+v: expected ValidationError, got %v", in, err)
		}
	}
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Signup(ctx, SignupInput{Name: "A", Email: "a@example.com", Password: "password1"}); err != nil {
		t.Fatalf("signup: %v", err)
	}
	if _, err := svc.Login(ctx, "a@example.com", "password2"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(ctx, "b@example.com", "password1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestScopedAdminCarriesAuthority(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.CreateUser(ctx, SignupInput{Name: "Thane Ops", Email: "ops@tmc.example", Password: "password1"}, "admin-tmc"); err != nil {
		t.Fatalf("create: %v", err)
	}
	result, err := svc.Login(ctx, "ops@tmc.example", "password1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if result.Profile.Authority != "TMC" {
		t.Fatalf("expected TMC authority, got %q", result.Profile.Authority)
	}
	claims, err := svc.JWT().ParseAndValidate(result.AccessToken)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Role != auth.RoleAdminTMC || claims.Authority != "TMC" {
		t.Fatalf("unexpected claims %+v", claims)
	}

	if _, err := svc.CreateUser(ctx, SignupInput{Name: "X", Email: "x@example.com", Password: "password1"}, "superuser"); err == nil {
		t.Fatal("expected unknown role to be rejected")
	}
}

func TestRefreshRotatesAndLogoutRevokes(t *testing.T) {
	svc, _, rdb := newTestService()
	ctx := context.Background()

	if _, err := svc.Signup(ctx, SignupInput{Name: "A", Email: "a@example.com", Password: "password1"}); err != nil {
		t.Fatalf("signup: %v", err)
	}
	first, err := svc.Login(ctx, "a@example.com", "password1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	second, err := svc.Refresh(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatal("refresh token must rotate")
	}
	if _, err := svc.Refresh(ctx, first.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("old refresh token must be revoked, got %v", err)
	}

	if err := svc.Logout(ctx, second.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if len(rdb.store) != 0 {
		t.Fatalf("expected no refresh tokens left, got %d", len(rdb.store))
	}
	if _, err := svc.Refresh(ctx, second.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected ErrRefreshInvalid after logout, got %v", err)
	}
}
