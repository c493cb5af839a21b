package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vovakirdan/pulsechat-server/internal/store/sqlite"
)

func newTestAuthService(t *testing.T) *Service {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	jwtConfig := &JWTConfig{
		Secret:   []byte("test-secret-change-me"),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	}

	return NewService(st, jwtConfig)
}

func TestRegister_RejectsInvalidInput(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   RegisterInput
		want error
	}{
		{name: "blank name", in: RegisterInput{Name: "  ", Email: "a@example.com", Password: "password123"}, want: ErrInvalidName},
		{name: "bad email", in: RegisterInput{Name: "alice", Email: "not-an-email", Password: "password123"}, want: ErrInvalidEmail},
		{name: "short password", in: RegisterInput{Name: "alice", Email: "a@example.com", Password: "12345"}, want: ErrInvalidPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Register(ctx, tt.in); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestRegister_NormalizesAndRejectsDuplicates(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	sess, err := svc.Register(ctx, RegisterInput{Name: " alice ", Email: " Alice@Example.com ", Password: "password123"})
	if err != nil {
		t.Fatalf("expected registration success, got %v", err)
	}
	if sess.Token == "" {
		t.Fatalf("expected non-empty token")
	}
	if sess.User.Name != "alice" || sess.User.Email != "alice@example.com" {
		t.Fatalf("unexpected user: %+v", sess.User)
	}
	if sess.User.Pic != DefaultPic {
		t.Fatalf("expected default pic, got %q", sess.User.Pic)
	}

	if _, err := svc.Register(ctx, RegisterInput{Name: "other", Email: "alice@example.com", Password: "password123"}); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	reg, err := svc.Register(ctx, RegisterInput{Name: "bob", Email: "bob@example.com", Password: "password123", Pic: "https://cdn/bob.png"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	sess, err := svc.Login(ctx, "BOB@example.com", "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if sess.User.ID != reg.User.ID {
		t.Fatalf("login returned user %s, want %s", sess.User.ID, reg.User.ID)
	}

	claims, err := svc.ValidateToken(sess.Token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID != reg.User.ID || claims.Name != "bob" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	if _, err := svc.Login(ctx, "bob@example.com", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(ctx, "nobody@example.com", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestValidateToken_RejectsForeignTokens(t *testing.T) {
	cfg := &JWTConfig{Secret: []byte("one"), Issuer: "pulsechat", Audience: "pulsechat-clients", TTL: time.Hour}

	token, err := GenerateToken(cfg, "u1", "alice")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	tests := []struct {
		name string
		cfg  *JWTConfig
	}{
		{name: "wrong secret", cfg: &JWTConfig{Secret: []byte("two"), Issuer: cfg.Issuer, Audience: cfg.Audience}},
		{name: "wrong issuer", cfg: &JWTConfig{Secret: cfg.Secret, Issuer: "other", Audience: cfg.Audience}},
		{name: "wrong audience", cfg: &JWTConfig{Secret: cfg.Secret, Issuer: cfg.Issuer, Audience: "other"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ValidateToken(tt.cfg, token); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	expired := &JWTConfig{Secret: cfg.Secret, TTL: -time.Minute}
	old, err := GenerateToken(expired, "u1", "alice")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := ValidateToken(expired, old); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}
