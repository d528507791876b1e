package admin

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"bingoo.app/core/internal/common"
)

const adminID int64 = 42

func newTestService(t *testing.T) (*Service, *time.Time) {
	t.Helper()
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	svc := NewService(NewMemoryStore(), []int64{adminID}, hash)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	return svc, &now
}

func TestHashPasswordFormat(t *testing.T) {
	hash, err := HashPassword("pw")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=3,p=2$") {
		t.Fatalf("unexpected hash format: %s", hash)
	}
	if !verifyArgon2id("pw", hash) || verifyArgon2id("other", hash) {
		t.Fatalf("verify mismatch")
	}
	if verifyArgon2id("pw", "garbage") {
		t.Fatalf("garbage hash must not verify")
	}
}

func TestVerifyPasswordCreatesSession(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if svc.HasActiveSession(ctx, adminID) {
		t.Fatalf("no session expected before login")
	}
	if err := svc.VerifyPassword(ctx, adminID, "s3cret"); err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if !svc.HasActiveSession(ctx, adminID) {
		t.Fatalf("expected active session")
	}
	if err := svc.RequireSession(ctx, adminID); err != nil {
		t.Fatalf("RequireSession: %v", err)
	}

	if err := svc.Logout(ctx, adminID); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if !errors.Is(svc.RequireSession(ctx, adminID), common.ErrSessionExpired) {
		t.Fatalf("expected session to be closed")
	}
}

func TestSessionExpires(t *testing.T) {
	svc, now := newTestService(t)
	ctx := context.Background()

	if err := svc.VerifyPassword(ctx, adminID, "s3cret"); err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	*now = now.Add(25 * time.Hour)
	if svc.HasActiveSession(ctx, adminID) {
		t.Fatalf("session should expire after 24h")
	}
}

func TestVerifyPasswordRejectsNonAdmin(t *testing.T) {
	svc, _ := newTestService(t)
	if err := svc.VerifyPassword(context.Background(), 7, "s3cret"); !errors.Is(err, common.ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin, got %v", err)
	}
}

func TestLockoutAfterThreeFailures(t *testing.T) {
	svc, now := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := svc.VerifyPassword(ctx, adminID, "wrong"); !errors.Is(err, common.ErrWrongPassword) {
			t.Fatalf("attempt %d: expected ErrWrongPassword, got %v", i+1, err)
		}
	}
	// Даже верный пароль блокируется
	if err := svc.VerifyPassword(ctx, adminID, "s3cret"); !errors.Is(err, common.ErrTooManyAttempts) {
		t.Fatalf("expected ErrTooManyAttempts, got %v", err)
	}

	*now = now.Add(61 * time.Minute)
	if err := svc.VerifyPassword(ctx, adminID, "s3cret"); err != nil {
		t.Fatalf("expected login after lockout, got %v", err)
	}
}

func TestStateExpires(t *testing.T) {
	svc, now := newTestService(t)

	svc.SetState(adminID, StateAwaitingPassword)
	if st := svc.GetState(adminID); st == nil || st.Name != StateAwaitingPassword {
		t.Fatalf("expected awaiting_password state, got %+v", st)
	}
	*now = now.Add(6 * time.Minute)
	if st := svc.GetState(adminID); st != nil {
		t.Fatalf("expected state to expire, got %+v", st)
	}
}

func TestHandlerLoginDialog(t *testing.T) {
	svc, _ := newTestService(t)
	h := NewHandler(svc)
	ctx := context.Background()

	if _, handled := h.HandleMessage(ctx, 7, "/login"); handled {
		t.Fatalf("non-admin messages must not be handled")
	}

	reply, handled := h.HandleMessage(ctx, adminID, "/login")
	if !handled || !strings.Contains(reply.Text, "пароль") {
		t.Fatalf("expected password prompt, got %+v", reply)
	}

	reply, handled = h.HandleMessage(ctx, adminID, "s3cret")
	if !handled || !reply.DeleteInput || !strings.HasPrefix(reply.Text, "✅") {
		t.Fatalf("expected successful login, got %+v", reply)
	}
	if !svc.HasActiveSession(ctx, adminID) {
		t.Fatalf("expected active session")
	}

	// Обычный текст после входа не относится к диалогу
	if _, handled := h.HandleMessage(ctx, adminID, "/treasury"); handled {
		t.Fatalf("other commands must pass through")
	}

	reply, _ = h.HandleMessage(ctx, adminID, "/logout")
	if svc.HasActiveSession(ctx, adminID) {
		t.Fatalf("expected logout, got %+v", reply)
	}
}

func TestHandlerInlinePassword(t *testing.T) {
	svc, _ := newTestService(t)
	h := NewHandler(svc)

	reply, handled := h.HandleMessage(context.Background(), adminID, "/login wrong")
	if !handled || !reply.DeleteInput || !strings.Contains(reply.Text, common.ErrWrongPassword.Error()) {
		t.Fatalf("expected wrong password reply, got %+v", reply)
	}
}
