package appsec

import (
	"context"
	"time"

	"github.com/tmarces/appsec/routeauth"
	"github.com/tmarces/appsec/taskqueue"
)

// Service is the composition root of the security core: one
// authenticator strategy, the route authorization cache, and the
// background task queue, wired over a shared configuration.
type Service struct {
	cfg     Config
	auth    Authenticator
	routes  *routeauth.Service
	tasks   *taskqueue.Queue
	metrics *Metrics
}

// NewService wires the facade. metrics may be nil.
func NewService(cfg Config, auth Authenticator, routes *routeauth.Service, tasks *taskqueue.Queue, metrics *Metrics) (*Service, error) {
	if auth == nil || routes == nil || tasks == nil {
		return nil, ErrNotReady
	}
	return &Service{
		cfg:     cfg.withDefaults(),
		auth:    auth,
		routes:  routes,
		tasks:   tasks,
		metrics: metrics,
	}, nil
}

// Authenticator returns the wired strategy.
func (s *Service) Authenticator() Authenticator { return s.auth }

// Tasks returns the background task queue.
func (s *Service) Tasks() *taskqueue.Queue { return s.tasks }

// Routes returns the authorization cache.
func (s *Service) Routes() *routeauth.Service { return s.routes }

// Start warms the authorization cache for the given applications. A
// failed refresh is logged and skipped; startup proceeds with an empty
// cache for that application and callers are denied until a later
// refresh succeeds.
func (s *Service) Start(ctx context.Context, appIDs []string) {
	for _, appID := range appIDs {
		if err := s.routes.Refresh(ctx, appID); err != nil {
			s.metrics.Inc(MetricCacheRefreshFailure)
			s.cfg.Warn("appsec: startup cache warm for app %q failed: %v", appID, err)
			continue
		}
		s.metrics.Inc(MetricCacheRefresh)
	}
}

// IsAuthorized checks whether the claims' principal may call the route
// within the application, counting the outcome.
func (s *Service) IsAuthorized(appID, routePath string, claims Claims) bool {
	allowed := s.routes.IsAuthorized(appID, routePath, claims.Principal())
	if allowed {
		s.metrics.Inc(MetricAuthzAllowed)
	} else {
		s.metrics.Inc(MetricAuthzDenied)
	}
	return allowed
}

// HandleGroupChange refreshes the application's cached grants after a
// group or route configuration write. The triggering write has already
// committed, so a failed refresh is logged and swallowed; the cache
// stays on its previous snapshot.
func (s *Service) HandleGroupChange(ctx context.Context, appID string) {
	if err := s.routes.Refresh(ctx, appID); err != nil {
		s.metrics.Inc(MetricCacheRefreshFailure)
		s.cfg.Warn("appsec: group change refresh for app %q failed: %v", appID, err)
		return
	}
	s.metrics.Inc(MetricCacheRefresh)
}

// ScheduleRecurringRefresh enqueues a single-instance recurring task that
// refreshes the application's grants on the interval. Returns the task
// id, or "" when the queue refuses the task.
func (s *Service) ScheduleRecurringRefresh(appID string, interval time.Duration) string {
	return s.tasks.Enqueue("routeauth-refresh:"+appID, func(ctx context.Context) (string, error) {
		if err := s.routes.Refresh(ctx, appID); err != nil {
			s.metrics.Inc(MetricCacheRefreshFailure)
			return "", err
		}
		s.metrics.Inc(MetricCacheRefresh)
		return "refreshed app " + appID, nil
	}, taskqueue.Options{SingleInstance: true, Recurrence: interval})
}

// Close stops the background task queue, waiting for in-flight tasks.
func (s *Service) Close() {
	s.tasks.Close()
}
