package auth

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"MindTrack/pkg/config"
	"MindTrack/pkg/logger"
	"MindTrack/pkg/model"
	"MindTrack/pkg/repository"
)

type captureMailer struct {
	mu   sync.Mutex
	sent []ResetMessage
}

func (m *captureMailer) SendPasswordReset(ctx context.Context, msg ResetMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func newTestService(mailer Mailer) *Service {
	return NewService(repository.NewMemoryStore(), nil, mailer, Options{Secret: []byte("test-secret")}, logger.Discard())
}

func mustSignUp(t *testing.T, s *Service, email, password string) *model.User {
	t.Helper()
	user, err := s.SignUp(context.Background(), email, password, "Dana")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	return user
}

func TestSignUp(t *testing.T) {
	s := newTestService(nil)
	ctx := context.Background()

	user := mustSignUp(t, s, " Dana@Example.com ", "secret1")
	if user.Email != "dana@example.com" || user.PasswordHash == "secret1" || user.Locale != model.DefaultLocale {
		t.Errorf("user: %+v", user)
	}

	if _, err := s.SignUp(ctx, "DANA@example.com", "another1", ""); !errors.Is(err, ErrAlreadyRegistered) {
		t.Errorf("duplicate: %v", err)
	}
	if _, err := s.SignUp(ctx, "x@example.com", "12345", ""); !errors.Is(err, ErrWeakPassword) {
		t.Errorf("short password: %v", err)
	}
	if _, err := s.SignUp(ctx, "not-an-email", "123456", ""); !errors.Is(err, ErrInvalidEmail) {
		t.Errorf("bad email: %v", err)
	}
}

func TestSignInAndSession(t *testing.T) {
	s := newTestService(nil)
	ctx := context.Background()
	user := mustSignUp(t, s, "dana@example.com", "secret1")

	if _, err := s.SignIn(ctx, "dana@example.com", "wrong-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: %v", err)
	}
	if _, err := s.SignIn(ctx, "nobody@example.com", "secret1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown email: %v", err)
	}

	session, err := s.SignIn(ctx, "DANA@example.com", "secret1")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if session.AccessToken == "" || session.User.ID != user.ID || !session.ExpiresAt.After(time.Now()) {
		t.Errorf("session: %+v", session)
	}

	current, err := s.CurrentSession(ctx, session.AccessToken)
	if err != nil {
		t.Fatalf("CurrentSession: %v", err)
	}
	if current.User.ID != user.ID || current.User.LastLoginAt == nil {
		t.Errorf("current user: %+v", current.User)
	}

	if err := s.SignOut(ctx, session.AccessToken); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if _, err := s.CurrentSession(ctx, session.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("revoked token accepted: %v", err)
	}
}

func TestRejectsForeignAndExpiredTokens(t *testing.T) {
	s := newTestService(nil)
	ctx := context.Background()
	mustSignUp(t, s, "dana@example.com", "secret1")
	session, err := s.SignIn(ctx, "dana@example.com", "secret1")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}

	other := NewService(s.users, nil, nil, Options{Secret: []byte("other-secret")}, logger.Discard())
	if _, err := other.CurrentSession(ctx, session.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("foreign signature accepted: %v", err)
	}

	s.now = func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }
	if _, err := s.CurrentSession(ctx, session.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired token accepted: %v", err)
	}

	if _, err := s.CurrentSession(ctx, "garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("garbage accepted: %v", err)
	}
}

func TestPasswordReset(t *testing.T) {
	mailer := &captureMailer{}
	s := newTestService(mailer)
	ctx := context.Background()
	mustSignUp(t, s, "dana@example.com", "secret1")

	if err := s.ResetPassword(ctx, "nobody@example.com"); err != nil {
		t.Fatalf("unknown email must succeed silently: %v", err)
	}
	if len(mailer.sent) != 0 {
		t.Fatalf("mail sent for unknown email")
	}

	if err := s.ResetPassword(ctx, "dana@example.com"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if len(mailer.sent) != 1 || mailer.sent[0].To != "dana@example.com" {
		t.Fatalf("sent: %+v", mailer.sent)
	}
	token := mailer.sent[0].Link
	if d := time.Until(mailer.sent[0].ExpiresAt); d <= 0 || d > time.Hour {
		t.Errorf("reset expiry: %v", d)
	}

	session, _ := s.SignIn(ctx, "dana@example.com", "secret1")
	if err := s.ConfirmReset(ctx, session.AccessToken, "newsecret"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("access token used as reset token: %v", err)
	}
	if _, err := s.CurrentSession(ctx, token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("reset token used as access token: %v", err)
	}

	if err := s.ConfirmReset(ctx, token, "newsecret"); err != nil {
		t.Fatalf("ConfirmReset: %v", err)
	}
	if err := s.ConfirmReset(ctx, token, "again12"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("reset token reused: %v", err)
	}
	if _, err := s.SignIn(ctx, "dana@example.com", "newsecret"); err != nil {
		t.Errorf("sign in with new password: %v", err)
	}
	if _, err := s.SignIn(ctx, "dana@example.com", "secret1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("old password still works: %v", err)
	}
}

func TestResetLinkUsesConfiguredURL(t *testing.T) {
	mailer := &captureMailer{}
	s := NewService(repository.NewMemoryStore(), nil, mailer,
		Options{Secret: []byte("k"), ResetURL: "https://app.example.com/reset"}, logger.Discard())
	mustSignUp(t, s, "dana@example.com", "secret1")

	if err := s.ResetPassword(context.Background(), "dana@example.com"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if !strings.HasPrefix(mailer.sent[0].Link, "https://app.example.com/reset?token=") {
		t.Errorf("link: %s", mailer.sent[0].Link)
	}
}

func TestSubscribe(t *testing.T) {
	s := newTestService(&captureMailer{})
	ctx := context.Background()
	user := mustSignUp(t, s, "dana@example.com", "secret1")

	var events []string
	unsubscribe := s.Subscribe(func(c StateChange) {
		if c.UserID != user.ID {
			t.Errorf("user id: %s", c.UserID)
		}
		events = append(events, c.Event)
	})

	session, err := s.SignIn(ctx, "dana@example.com", "secret1")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	name := "Dana K"
	if _, err := s.UpdateProfile(ctx, user.ID, model.ProfileUpdate{DisplayName: &name}); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if err := s.ResetPassword(ctx, "dana@example.com"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if err := s.SignOut(ctx, session.AccessToken); err != nil {
		t.Fatalf("SignOut: %v", err)
	}

	want := []string{EventSignedIn, EventUserUpdated, EventPasswordRecovery, EventSignedOut}
	if strings.Join(events, ",") != strings.Join(want, ",") {
		t.Errorf("events: %v, want %v", events, want)
	}

	unsubscribe()
	unsubscribe()
	if _, err := s.SignIn(ctx, "dana@example.com", "secret1"); err != nil {
		t.Fatal(err)
	}
	if len(events) != len(want) {
		t.Errorf("received events after unsubscribe: %v", events)
	}
}

func TestUpdateProfile(t *testing.T) {
	s := newTestService(nil)
	ctx := context.Background()
	user := mustSignUp(t, s, "dana@example.com", "secret1")

	lang, condition := "en", "epilepsy"
	updated, err := s.UpdateProfile(ctx, user.ID, model.ProfileUpdate{Locale: &lang, PrimaryCondition: &condition})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if updated.Locale != "en" || updated.PrimaryCondition != "epilepsy" || updated.DisplayName != "Dana" {
		t.Errorf("profile: %+v", updated)
	}

	bad := "Mars/Olympus"
	if _, err := s.UpdateProfile(ctx, user.ID, model.ProfileUpdate{Timezone: &bad}); !errors.Is(err, ErrInvalidTimezone) {
		t.Error("unknown timezone accepted")
	}
}

func TestSMTPMailerBuildsMessage(t *testing.T) {
	m := NewSMTPMailer(config.SMTPConfig{Host: "smtp.example.com", Port: 2525, From: "noreply@example.com"})
	var gotAddr string
	var gotTo []string
	var gotMsg string
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		if a != nil {
			t.Error("auth must be nil without username")
		}
		return nil
	}

	err := m.SendPasswordReset(context.Background(), ResetMessage{
		To: "dana@example.com", Name: "Dana", Link: "https://x/reset?token=abc",
		ExpiresAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("SendPasswordReset: %v", err)
	}
	if gotAddr != "smtp.example.com:2525" || len(gotTo) != 1 || gotTo[0] != "dana@example.com" {
		t.Errorf("envelope: %s %v", gotAddr, gotTo)
	}
	for _, want := range []string{"To: dana@example.com", "Hello Dana", "https://x/reset?token=abc", "2024-03-01 12:00 UTC"} {
		if !strings.Contains(gotMsg, want) {
			t.Errorf("message missing %q:\n%s", want, gotMsg)
		}
	}
}

func TestNewMailerFallsBackToLog(t *testing.T) {
	if _, ok := NewMailer(config.SMTPConfig{}, logger.Discard()).(*LogMailer); !ok {
		t.Error("want LogMailer without SMTP host")
	}
	if _, ok := NewMailer(config.SMTPConfig{Host: "smtp"}, logger.Discard()).(*SMTPMailer); !ok {
		t.Error("want SMTPMailer with SMTP host")
	}
}

func TestEmptySecretUsesRandomKey(t *testing.T) {
	users := repository.NewMemoryStore()
	a := NewService(users, nil, nil, Options{}, logger.Discard())
	b := NewService(users, nil, nil, Options{}, logger.Discard())
	ctx := context.Background()

	mustSignUp(t, a, "noa@example.com", "secret1")
	session, err := a.SignIn(ctx, "noa@example.com", "secret1")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if _, err := a.CurrentSession(ctx, session.AccessToken); err != nil {
		t.Fatalf("own token rejected: %v", err)
	}
	if _, err := b.CurrentSession(ctx, session.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("token accepted by a service with a different random key: %v", err)
	}
}
