package appsec

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/tmarces/appsec/lockout"
	"github.com/tmarces/appsec/password"
)

func testHasher(t *testing.T) *password.Argon2 {
	t.Helper()
	h, err := password.NewArgon2(password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	})
	if err != nil {
		t.Fatalf("NewArgon2 failed: %v", err)
	}
	return h
}

func newTestDirectory(t *testing.T, hasher *password.Argon2) *fakeDirectory {
	t.Helper()
	hash, err := hasher.Hash("correct-horse")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	return &fakeDirectory{
		users: map[string]*UserRecord{
			"alice": {
				UserID:       "u-1",
				Username:     "alice",
				PasswordHash: hash,
				UserType:     "USER",
				Groups:       []string{"g1"},
				Email:        "alice@example.com",
			},
			"bob": {
				UserID:       "u-2",
				Username:     "bob",
				PasswordHash: hash,
				Disabled:     true,
			},
		},
		template: "Your recovery code is {{recovery_code}}",
	}
}

type directoryFixture struct {
	auth      *DirectoryAuthenticator
	directory *fakeDirectory
	accounts  *lockout.Registry
	queuer    *fakeQueuer
	store     *RecoveryStore
}

func newDirectoryFixture(t *testing.T) *directoryFixture {
	t.Helper()
	hasher := testHasher(t)
	directory := newTestDirectory(t, hasher)
	accounts := lockout.NewRegistry()
	queuer := &fakeQueuer{}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRecoveryStore(client)

	cfg := quietConfig()
	cfg.Recovery.TemplateID = "recovery"

	auth, err := NewDirectoryAuthenticator(cfg, accounts, directory, hasher, nil, NewMetrics(), store, queuer)
	if err != nil {
		t.Fatalf("NewDirectoryAuthenticator failed: %v", err)
	}
	return &directoryFixture{auth: auth, directory: directory, accounts: accounts, queuer: queuer, store: store}
}

func TestDirectoryLoginSuccess(t *testing.T) {
	fx := newDirectoryFixture(t)
	sink := &recordingSink{}

	resp, err := fx.auth.Login(context.Background(), LoginRequest{
		AppID: "app1", Username: "alice", Password: "correct-horse", DeviceID: "dev-1",
	}, sink)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if resp.Status != StatusLoggedInOK {
		t.Fatalf("Status = %v, want %v", resp.Status, StatusLoggedInOK)
	}
	if resp.Claims.UserID != "u-1" || len(resp.Claims.Groups) != 1 {
		t.Fatalf("claims mismatch: %+v", resp.Claims)
	}
	if _, ok := sink.lastSet(); !ok {
		t.Fatal("refresh cookie not set")
	}

	fx.directory.mu.Lock()
	defer fx.directory.mu.Unlock()
	if len(fx.directory.attempts) != 1 || !fx.directory.attempts[0] {
		t.Fatalf("mirrored attempts = %v, want one success", fx.directory.attempts)
	}
	if fx.directory.rotations != 1 {
		t.Fatalf("token rotations mirrored = %d, want 1", fx.directory.rotations)
	}
}

func TestDirectoryLoginWrongPassword(t *testing.T) {
	fx := newDirectoryFixture(t)

	resp, err := fx.auth.Login(context.Background(), LoginRequest{
		AppID: "app1", Username: "alice", Password: "battery-staple",
	}, NopCookieSink{})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if resp.Status != StatusUnknown {
		t.Fatalf("Status = %v, want %v", resp.Status, StatusUnknown)
	}

	rec, _ := fx.accounts.Get("app1", "alice")
	rec.Lock()
	defer rec.Unlock()
	if rec.FailedAttempts() != 1 {
		t.Fatalf("FailedAttempts = %d, want 1", rec.FailedAttempts())
	}

	fx.directory.mu.Lock()
	defer fx.directory.mu.Unlock()
	if len(fx.directory.attempts) != 1 || fx.directory.attempts[0] {
		t.Fatalf("mirrored attempts = %v, want one failure", fx.directory.attempts)
	}
}

func TestDirectoryLoginUnknownUser(t *testing.T) {
	fx := newDirectoryFixture(t)

	resp, err := fx.auth.Login(context.Background(), LoginRequest{
		AppID: "app1", Username: "ghost", Password: "pw",
	}, NopCookieSink{})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if resp.Status != StatusUserIDNotFound {
		t.Fatalf("Status = %v, want %v", resp.Status, StatusUserIDNotFound)
	}
}

func TestDirectoryLoginDisabledAccount(t *testing.T) {
	fx := newDirectoryFixture(t)

	resp, err := fx.auth.Login(context.Background(), LoginRequest{
		AppID: "app1", Username: "bob", Password: "correct-horse",
	}, NopCookieSink{})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if resp.Status != StatusAccountDisabled {
		t.Fatalf("Status = %v, want %v", resp.Status, StatusAccountDisabled)
	}

	// A disabled account is not a credential failure.
	rec, _ := fx.accounts.Get("app1", "bob")
	rec.Lock()
	defer rec.Unlock()
	if rec.FailedAttempts() != 0 {
		t.Fatalf("FailedAttempts = %d, want 0", rec.FailedAttempts())
	}
}

func TestDirectoryLoginOutageFailsClosed(t *testing.T) {
	fx := newDirectoryFixture(t)
	fx.directory.mu.Lock()
	fx.directory.getErr = errors.New("connection refused")
	fx.directory.mu.Unlock()

	resp, err := fx.auth.Login(context.Background(), LoginRequest{
		AppID: "app1", Username: "alice", Password: "correct-horse",
	}, NopCookieSink{})
	if err != nil {
		t.Fatalf("Login surfaced an error on outage: %v", err)
	}
	if resp.Status != StatusUnknown {
		t.Fatalf("Status = %v, want %v", resp.Status, StatusUnknown)
	}

	// An outage is charged like any other failed verification.
	rec, _ := fx.accounts.Get("app1", "alice")
	rec.Lock()
	defer rec.Unlock()
	if rec.FailedAttempts() != 1 {
		t.Fatalf("FailedAttempts = %d after outage, want 1", rec.FailedAttempts())
	}
}

func TestDirectoryMirrorFailureDoesNotChangeOutcome(t *testing.T) {
	fx := newDirectoryFixture(t)
	fx.directory.mu.Lock()
	fx.directory.mirrorErr = errors.New("audit table full")
	fx.directory.mu.Unlock()

	resp, err := fx.auth.Login(context.Background(), LoginRequest{
		AppID: "app1", Username: "alice", Password: "correct-horse",
	}, NopCookieSink{})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if resp.Status != StatusLoggedInOK {
		t.Fatalf("Status = %v, want %v", resp.Status, StatusLoggedInOK)
	}
}

func TestDirectoryRefreshMirrorsRotation(t *testing.T) {
	fx := newDirectoryFixture(t)
	ctx := context.Background()

	login, err := fx.auth.Login(ctx, LoginRequest{
		AppID: "app1", Username: "alice", Password: "correct-horse",
	}, NopCookieSink{})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	resp, err := fx.auth.Refresh(ctx, login.Claims, login.RefreshToken, NopCookieSink{})
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if resp.Status != StatusRefreshTokenValid {
		t.Fatalf("Status = %v, want %v", resp.Status, StatusRefreshTokenValid)
	}

	fx.directory.mu.Lock()
	defer fx.directory.mu.Unlock()
	if fx.directory.rotations != 2 {
		t.Fatalf("rotations mirrored = %d, want 2", fx.directory.rotations)
	}
}

func TestDirectoryRecoverPassword(t *testing.T) {
	fx := newDirectoryFixture(t)
	ctx := context.Background()

	if err := fx.auth.RecoverPassword(ctx, "app1", "alice"); err != nil {
		t.Fatalf("RecoverPassword failed: %v", err)
	}

	queued := fx.queuer.queued()
	if len(queued) != 1 {
		t.Fatalf("queued emails = %d, want 1", len(queued))
	}
	msg := queued[0]
	if len(msg.To) != 1 || msg.To[0] != "alice@example.com" {
		t.Fatalf("To = %v, want the account email", msg.To)
	}
	code := msg.Tags["recovery_code"]
	if code == "" {
		t.Fatal("no recovery code in the queued email")
	}

	userID, err := fx.auth.ValidateRecoveryCode(ctx, "app1", "alice", code)
	if err != nil {
		t.Fatalf("ValidateRecoveryCode failed: %v", err)
	}
	if userID != "u-1" {
		t.Fatalf("userID = %q, want %q", userID, "u-1")
	}

	// Single use.
	if _, err := fx.auth.ValidateRecoveryCode(ctx, "app1", "alice", code); !errors.Is(err, ErrRecoveryCodeInvalid) {
		t.Fatalf("second validation error = %v, want ErrRecoveryCodeInvalid", err)
	}
}

func TestDirectoryRecoverUnknownUserIsSilent(t *testing.T) {
	fx := newDirectoryFixture(t)

	if err := fx.auth.RecoverPassword(context.Background(), "app1", "ghost"); err != nil {
		t.Fatalf("RecoverPassword for unknown user = %v, want nil", err)
	}
	if len(fx.queuer.queued()) != 0 {
		t.Fatal("email queued for unknown account")
	}
}

func TestDirectoryRecoverWithoutTemplate(t *testing.T) {
	fx := newDirectoryFixture(t)
	fx.directory.mu.Lock()
	fx.directory.template = ""
	fx.directory.mu.Unlock()

	if err := fx.auth.RecoverPassword(context.Background(), "app1", "alice"); !errors.Is(err, ErrRecoveryTemplateMissing) {
		t.Fatalf("RecoverPassword error = %v, want ErrRecoveryTemplateMissing", err)
	}
}

func TestDirectoryRecoverWithoutEmail(t *testing.T) {
	fx := newDirectoryFixture(t)
	fx.directory.mu.Lock()
	fx.directory.users["alice"].Email = ""
	fx.directory.mu.Unlock()

	if err := fx.auth.RecoverPassword(context.Background(), "app1", "alice"); !errors.Is(err, ErrRecoveryEmailMissing) {
		t.Fatalf("RecoverPassword error = %v, want ErrRecoveryEmailMissing", err)
	}
}

func TestDirectoryRecoverQueueRefused(t *testing.T) {
	fx := newDirectoryFixture(t)
	fx.queuer.mu.Lock()
	fx.queuer.err = errors.New("queue shut down")
	fx.queuer.mu.Unlock()

	if err := fx.auth.RecoverPassword(context.Background(), "app1", "alice"); !errors.Is(err, ErrEmailNotQueued) {
		t.Fatalf("RecoverPassword error = %v, want ErrEmailNotQueued", err)
	}
}

func TestDirectoryRecoveryWithoutBackendUnsupported(t *testing.T) {
	hasher := testHasher(t)
	auth, err := NewDirectoryAuthenticator(quietConfig(), lockout.NewRegistry(), newTestDirectory(t, hasher), hasher, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewDirectoryAuthenticator failed: %v", err)
	}
	if err := auth.RecoverPassword(context.Background(), "app1", "alice"); !errors.Is(err, ErrRecoveryNotSupported) {
		t.Fatalf("RecoverPassword error = %v, want ErrRecoveryNotSupported", err)
	}
	if _, err := auth.ValidateRecoveryCode(context.Background(), "app1", "alice", "123"); !errors.Is(err, ErrRecoveryNotSupported) {
		t.Fatalf("ValidateRecoveryCode error = %v, want ErrRecoveryNotSupported", err)
	}
}

func TestDirectoryLockoutAcrossLoginAttempts(t *testing.T) {
	fx := newDirectoryFixture(t)
	ctx := context.Background()
	req := LoginRequest{AppID: "app1", Username: "alice", Password: "wrong"}

	var resp AuthResponse
	var err error
	for i := 0; i < 11; i++ {
		resp, err = fx.auth.Login(ctx, req, NopCookieSink{})
		if err != nil {
			t.Fatalf("Login %d failed: %v", i+1, err)
		}
	}
	if !resp.AccountLocked {
		t.Fatal("account not locked after 11 wrong passwords")
	}

	// Even the right password is refused while locked.
	resp, err = fx.auth.Login(ctx, LoginRequest{
		AppID: "app1", Username: "alice", Password: "correct-horse",
	}, NopCookieSink{})
	if err != nil {
		t.Fatalf("Login while locked failed: %v", err)
	}
	if resp.Status != StatusAccountLocked {
		t.Fatalf("Status = %v, want %v", resp.Status, StatusAccountLocked)
	}
}

func TestDirectoryRefreshExpirationRenewed(t *testing.T) {
	fx := newDirectoryFixture(t)
	ctx := context.Background()

	login, err := fx.auth.Login(ctx, LoginRequest{
		AppID: "app1", Username: "alice", Password: "correct-horse",
	}, NopCookieSink{})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	resp, err := fx.auth.Refresh(ctx, login.Claims, login.RefreshToken, NopCookieSink{})
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if !resp.RefreshExpiration.After(time.Now().Add(11 * time.Hour)) {
		t.Fatalf("RefreshExpiration = %v, want roughly 12h out", resp.RefreshExpiration)
	}
}
