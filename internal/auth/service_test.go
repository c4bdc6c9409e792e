package auth

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/chatline/chatline-server/internal/store"
	"github.com/chatline/chatline-server/internal/store/sqlite"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := &JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "chatline",
		Audience: "chatline-clients",
		TTL:      time.Hour,
	}
	return NewService(st, cfg)
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	token, err := svc.Register(ctx, "alice", "password123")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if token == "" {
		t.Fatal("register returned empty token")
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if claims.Username != "alice" {
		t.Errorf("username claim = %q, want %q", claims.Username, "alice")
	}
	if claims.UserID == 0 {
		t.Error("user_id claim is zero")
	}

	loginToken, err := svc.Login(ctx, "alice", "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if loginToken == "" {
		t.Fatal("login returned empty token")
	}
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	cases := []struct {
		name     string
		username string
		password string
		wantErr  error
	}{
		{"short username", "ab", "password123", ErrInvalidUsername},
		{"long username", "this-username-is-way-too-long-to-accept", "password123", ErrInvalidUsername},
		{"short password", "alice", "12345", ErrInvalidPassword},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Register(ctx, tc.username, tc.password); !errors.Is(err, tc.wantErr) {
				t.Errorf("Register(%q, %q) = %v, want %v", tc.username, tc.password, err, tc.wantErr)
			}
		})
	}
}

// racingUserStore simulates a concurrent registration winning between the
// existence check and the insert: the lookup sees no user, the insert hits
// the UNIQUE constraint.
type racingUserStore struct {
	store.UserStore
}

func (racingUserStore) GetUserByUsername(context.Context, string) (*store.User, error) {
	return nil, store.ErrNotFound
}

func (racingUserStore) CreateUser(context.Context, string, string) (*store.User, error) {
	return nil, fmt.Errorf("insert user: UNIQUE constraint failed: users.username")
}

func TestRegisterMapsConstraintToUserExists(t *testing.T) {
	svc := NewService(racingUserStore{}, &JWTConfig{Secret: []byte("test-secret"), TTL: time.Hour})

	if _, err := svc.Register(context.Background(), "alice", "password123"); !errors.Is(err, ErrUserExists) {
		t.Errorf("register losing the insert race = %v, want ErrUserExists", err)
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	if _, err := svc.Register(ctx, "alice", "password123"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Register(ctx, "alice", "otherpassword"); !errors.Is(err, ErrUserExists) {
		t.Errorf("second register = %v, want ErrUserExists", err)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	if _, err := svc.Register(ctx, "alice", "password123"); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := svc.Login(ctx, "alice", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("login with wrong password = %v, want ErrInvalidCredentials", err)
	}
	if _, err := svc.Login(ctx, "nobody", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("login with unknown user = %v, want ErrInvalidCredentials", err)
	}
}

func TestValidateTokenRejectsForgedToken(t *testing.T) {
	svc := newTestService(t)

	otherCfg := &JWTConfig{
		Secret:   []byte("different-secret"),
		Issuer:   "chatline",
		Audience: "chatline-clients",
		TTL:      time.Hour,
	}
	forged, err := GenerateToken(otherCfg, 1, "alice")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	if _, err := svc.ValidateToken(forged); err == nil {
		t.Error("expected forged token to be rejected")
	}
}

func TestValidateTokenRejectsExpiredToken(t *testing.T) {
	svc := newTestService(t)

	expiredCfg := &JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "chatline",
		Audience: "chatline-clients",
		TTL:      -time.Minute,
	}
	expired, err := GenerateToken(expiredCfg, 1, "alice")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	if _, err := svc.ValidateToken(expired); err == nil {
		t.Error("expected expired token to be rejected")
	}
}
