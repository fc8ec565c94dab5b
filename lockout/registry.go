package lockout

import "sync"

// Key builds the registry key for an account within an application.
func Key(appID, account string) string {
	return appID + "." + account
}

// Registry is a process-wide map of account lockout records keyed by
// {application}.{account}. It is constructed explicitly and shared by
// reference between the components that need it, so multiple independent
// instances can coexist in one process.
//
// Records are created on first use and removed only on logoff; otherwise
// the registry grows with the set of accounts that have attempted a
// logon. That unbounded growth is a known, accepted caveat.
type Registry struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{records: make(map[string]*Record)}
}

// Get returns the record for the account, or false if none exists.
func (g *Registry) Get(appID, account string) (*Record, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rec, ok := g.records[Key(appID, account)]
	return rec, ok
}

// GetOrCreate returns the record for the account, creating it if absent.
func (g *Registry) GetOrCreate(appID, account string) *Record {
	key := Key(appID, account)

	g.mu.RLock()
	rec, ok := g.records[key]
	g.mu.RUnlock()
	if ok {
		return rec
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if rec, ok := g.records[key]; ok {
		return rec
	}
	rec = &Record{}
	g.records[key] = rec
	return rec
}

// Remove deletes the account's record. Removing an absent key is a no-op.
func (g *Registry) Remove(appID, account string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.records, Key(appID, account))
}

// Len returns the number of tracked records.
func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.records)
}
