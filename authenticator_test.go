package appsec

import (
	"context"
	"sync"
	"time"
)

// recordingSink captures cookie writes for assertions.
type recordingSink struct {
	mu      sync.Mutex
	sets    []sinkWrite
	deletes []sinkWrite
}

type sinkWrite struct {
	name  string
	value string
	path  string
}

func (s *recordingSink) SetRefreshCookie(name, value, path string, expires time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets = append(s.sets, sinkWrite{name: name, value: value, path: path})
}

func (s *recordingSink) DeleteRefreshCookie(name, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, sinkWrite{name: name, path: path})
}

func (s *recordingSink) lastSet() (sinkWrite, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sets) == 0 {
		return sinkWrite{}, false
	}
	return s.sets[len(s.sets)-1], true
}

func (s *recordingSink) deleteCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.deletes)
}

// fakeCredStore scripts the credential store's behavior and counts
// verification calls.
type fakeCredStore struct {
	mu     sync.Mutex
	result CredentialResult
	err    error
	calls  int
}

func (f *fakeCredStore) VerifyCredentials(ctx context.Context, appID, username, password, deviceID string) (CredentialResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return CredentialResult{}, f.err
	}
	return f.result, nil
}

func (f *fakeCredStore) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeDirectory is an in-memory user directory that records its mirror
// calls.
type fakeDirectory struct {
	mu             sync.Mutex
	users          map[string]*UserRecord
	template       string
	recoveryEmails []string
	getErr         error
	mirrorErr      error
	attempts       []bool
	rotations      int
	queuedTokens   []string
}

func (f *fakeDirectory) GetUser(ctx context.Context, appID, username string) (*UserRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	user, ok := f.users[username]
	if !ok {
		return nil, nil
	}
	copied := *user
	return &copied, nil
}

func (f *fakeDirectory) RecordLoginAttempt(ctx context.Context, appID, userID string, success bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, success)
	return f.mirrorErr
}

func (f *fakeDirectory) RotateRefreshToken(ctx context.Context, appID, userID, token string, expires time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rotations++
	f.queuedTokens = append(f.queuedTokens, token)
	return f.mirrorErr
}

func (f *fakeDirectory) GetEmailTemplate(ctx context.Context, appID, templateID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.template, nil
}

func (f *fakeDirectory) GetRecoveryEmails(ctx context.Context, appID, username string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recoveryEmails, nil
}

// fakeQueuer captures queued emails.
type fakeQueuer struct {
	mu       sync.Mutex
	messages []EmailMessage
	err      error
}

func (f *fakeQueuer) QueueEmail(ctx context.Context, msg EmailMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeQueuer) queued() []EmailMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]EmailMessage, len(f.messages))
	copy(out, f.messages)
	return out
}

func quietConfig() Config {
	return Config{
		APIBasePath: "api",
		Warn:        func(string, ...any) {},
	}
}
