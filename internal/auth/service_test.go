package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/countrelay/internal/testutil"
)

func newTestService(t *testing.T) (*Service, *SQLiteUserRepository) {
	t.Helper()
	repo := NewUserRepository(testutil.OpenDB(t))
	svc := NewService(repo, testSecret, time.Hour)
	svc.SetHashParams(fastParams)
	return svc, repo
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "  alice ", "hunter22")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if user.ID == 0 || user.Username != "alice" {
		t.Errorf("Register() = %+v", user)
	}

	token, loggedIn, err := svc.Login(ctx, "alice", "hunter22")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if loggedIn.ID != user.ID {
		t.Errorf("Login() user = %d, want %d", loggedIn.ID, user.ID)
	}

	id, err := svc.VerifyIdentity(ctx, token)
	if err != nil || id != user.ID {
		t.Errorf("VerifyIdentity() = %d, %v; want %d", id, err, user.ID)
	}
}

func TestRegister_Validation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "bad name!", "hunter22"); !errors.Is(err, ErrInvalidUsername) {
		t.Errorf("invalid username error = %v", err)
	}
	if _, err := svc.Register(ctx, "bob", "123"); !errors.Is(err, ErrPasswordTooShort) {
		t.Errorf("short password error = %v", err)
	}
	if _, err := svc.Register(ctx, "bob", "hunter22"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, err := svc.Register(ctx, "bob", "hunter23"); !errors.Is(err, ErrUsernameExists) {
		t.Errorf("duplicate username error = %v", err)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "carol", "hunter22"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, _, err := svc.Login(ctx, "carol", "wrong-pw"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password error = %v", err)
	}
	if _, _, err := svc.Login(ctx, "nobody", "hunter22"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown user error = %v", err)
	}
}

func TestVerifyIdentity_Rejections(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.VerifyIdentity(ctx, ""); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("empty token error = %v", err)
	}

	ghost, _ := GenerateSessionToken(&User{ID: 777, Username: "ghost"}, testSecret, time.Hour)
	if _, err := svc.VerifyIdentity(ctx, ghost); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("token for missing user error = %v", err)
	}
}

func TestRegisterRFID(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "dave", "hunter22")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if err := svc.RegisterRFID(ctx, user.ID, "  BADGE1 "); err != nil {
		t.Fatalf("RegisterRFID() error = %v", err)
	}
	got, err := repo.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.RFIDUID != "BADGE1" {
		t.Errorf("RFIDUID = %q, want BADGE1", got.RFIDUID)
	}

	if err := svc.RegisterRFID(ctx, user.ID, ""); err != nil {
		t.Fatalf("clearing RFID error = %v", err)
	}
	got, _ = repo.GetByID(ctx, user.ID)
	if got.RFIDUID != "" {
		t.Errorf("RFIDUID after clear = %q", got.RFIDUID)
	}

	if err := svc.RegisterRFID(ctx, 9999, "X"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("RegisterRFID(unknown) error = %v", err)
	}
}
