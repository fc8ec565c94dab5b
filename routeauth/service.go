package routeauth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ErrConfigUnavailable indicates the configuration store could not be
// queried during a refresh. The existing cache is left untouched.
var ErrConfigUnavailable = errors.New("route configuration store unavailable")

// Row is one allowed-route grant as returned by the configuration store.
type Row struct {
	GroupID     string
	RouteID     string
	RoutePath   string
	LastUpdated time.Time
}

// ConfigStore supplies the group route grants for an application.
type ConfigStore interface {
	GroupRoutes(ctx context.Context, appID string) ([]Row, error)
}

// GroupRecord is the cached permission set for one {application, group}.
type GroupRecord struct {
	GroupID string
	// LastUpdated is the newest grant timestamp among the group's
	// routes. Freshness/debugging only; never used for conflict
	// resolution.
	LastUpdated   time.Time
	AllowedRoutes map[string]struct{}
}

// Principal is the caller identity relevant to an authorization check.
type Principal struct {
	UserType string
	Groups   []string
}

// Config controls route construction and the bypass rules.
type Config struct {
	// BasePath is the API base segment used when qualifying route paths,
	// e.g. "api" yields routes of the form /api/{app}/ent/{route}.
	BasePath string

	// AdminUserType is the user type that bypasses all route checks.
	// Defaults to "ADMIN".
	AdminUserType string

	// PublicRoutes are fully qualified paths everyone may call. A
	// trailing "*" matches any path with the preceding prefix.
	PublicRoutes []string

	// Warn receives diagnostic messages. Defaults to log.Printf.
	Warn func(format string, args ...any)
}

// Service is the authorization cache. Construct with NewService and share
// by reference; all methods are safe for concurrent use.
type Service struct {
	cfg   Config
	store ConfigStore

	exactPublic  map[string]struct{}
	prefixPublic []string

	mu    sync.Mutex   // serializes refresh swaps
	cache atomic.Value // map[string]*GroupRecord keyed {app}.{group}
}

// NewService creates a Service reading grants from store.
func NewService(cfg Config, store ConfigStore) *Service {
	if cfg.AdminUserType == "" {
		cfg.AdminUserType = "ADMIN"
	}
	if cfg.Warn == nil {
		cfg.Warn = log.Printf
	}

	s := &Service{
		cfg:         cfg,
		store:       store,
		exactPublic: make(map[string]struct{}),
	}
	for _, p := range cfg.PublicRoutes {
		if strings.HasSuffix(p, "*") {
			s.prefixPublic = append(s.prefixPublic, strings.TrimSuffix(p, "*"))
			continue
		}
		s.exactPublic[p] = struct{}{}
	}
	s.cache.Store(make(map[string]*GroupRecord))
	return s
}

// RoutePath returns the fully qualified path for an entity route within
// an application: /{base}/{app}/ent/{route}.
func (s *Service) RoutePath(appID, route string) string {
	return "/" + s.cfg.BasePath + "/" + appID + "/ent/" + route
}

// IsAuthorized reports whether the principal may call routePath within
// the application. It is a pure read over the current cache snapshot and
// never blocks on a refresh.
//
// Order of evaluation: admin user-type bypass, then the public route set,
// then the principal's group grants. A principal with no groups and no
// other match is denied.
func (s *Service) IsAuthorized(appID, routePath string, p Principal) bool {
	if strings.EqualFold(p.UserType, s.cfg.AdminUserType) {
		return true
	}
	if s.isPublic(routePath) {
		return true
	}
	if len(p.Groups) == 0 {
		return false
	}

	cache := s.snapshot()
	for _, group := range p.Groups {
		rec, ok := cache[appID+"."+group]
		if !ok {
			continue
		}
		if _, ok := rec.AllowedRoutes[routePath]; ok {
			return true
		}
	}
	return false
}

func (s *Service) isPublic(routePath string) bool {
	if _, ok := s.exactPublic[routePath]; ok {
		return true
	}
	for _, prefix := range s.prefixPublic {
		if strings.HasPrefix(routePath, prefix) {
			return true
		}
	}
	return false
}

// Refresh rebuilds the application's group records from the configuration
// store and swaps them into the cache atomically. An empty appID is a
// no-op. On store failure the existing cache is left untouched
// (stale-but-available) and an ErrConfigUnavailable-wrapped error is
// returned; callers triggered by an unrelated configuration write should
// log it rather than propagate it.
func (s *Service) Refresh(ctx context.Context, appID string) error {
	if appID == "" {
		return nil
	}

	rows, err := s.store.GroupRoutes(ctx, appID)
	if err != nil {
		s.cfg.Warn("routeauth: refresh for app %q failed, serving stale cache: %v", appID, err)
		return fmt.Errorf("%w: %v", ErrConfigUnavailable, err)
	}

	fresh := make(map[string]*GroupRecord)
	for _, row := range rows {
		key := appID + "." + row.GroupID
		rec, ok := fresh[key]
		if !ok {
			rec = &GroupRecord{
				GroupID:       row.GroupID,
				AllowedRoutes: make(map[string]struct{}),
			}
			fresh[key] = rec
		}
		rec.AllowedRoutes[s.RoutePath(appID, row.RoutePath)] = struct{}{}
		if row.LastUpdated.After(rec.LastUpdated) {
			rec.LastUpdated = row.LastUpdated
		}
	}

	prefix := appID + "."

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.snapshot()
	next := make(map[string]*GroupRecord, len(current)+len(fresh))
	for key, rec := range current {
		if strings.HasPrefix(key, prefix) {
			continue
		}
		next[key] = rec
	}
	for key, rec := range fresh {
		next[key] = rec
	}
	s.cache.Store(next)
	return nil
}

// GroupCount returns the number of cached group records across all
// applications.
func (s *Service) GroupCount() int {
	return len(s.snapshot())
}

// Group returns the cached record for {appID, groupID}, or false.
// The returned record is part of an immutable snapshot; do not mutate.
func (s *Service) Group(appID, groupID string) (*GroupRecord, bool) {
	rec, ok := s.snapshot()[appID+"."+groupID]
	return rec, ok
}

func (s *Service) snapshot() map[string]*GroupRecord {
	return s.cache.Load().(map[string]*GroupRecord)
}
