package services

import (
	"log/slog"
	"time"

	"github.com/teamhub/assessment-engine/internal/cache"
	"github.com/teamhub/assessment-engine/internal/proctoring"
	"github.com/teamhub/assessment-engine/internal/repositories"
	"github.com/teamhub/assessment-engine/internal/scorer"
	"github.com/teamhub/assessment-engine/internal/validator"
)

// Dependencies is everything the services share.
type Dependencies struct {
	Repo      repositories.Repository
	Identity  IdentityResolver
	Roster    RosterLookup
	Validator *validator.Validator
	Cache     cache.CacheService
	CacheTTL  time.Duration
	Events    EventService
	Scorer    scorer.Scorer
	Policy    proctoring.Policy
	Logger    *slog.Logger

	// Now overrides the clock. Defaults to time.Now in UTC.
	Now func() time.Time
}

func (d Dependencies) clock() func() time.Time {
	if d.Now != nil {
		return d.Now
	}
	return func() time.Time { return time.Now().UTC() }
}

type serviceManager struct {
	test    TestService
	attempt AttemptService
	grading GradingService
	export  ExportService
}

// NewServiceManager builds all services. Missing optional collaborators get
// defaults: a directory resolver, a no-op cache and the default proctoring
// policy.
func NewServiceManager(deps Dependencies) ServiceManager {
	if deps.Identity == nil || deps.Roster == nil {
		dir := NewDirectoryResolver(deps.Repo)
		if deps.Identity == nil {
			deps.Identity = dir
		}
		if deps.Roster == nil {
			deps.Roster = dir
		}
	}
	if deps.Cache == nil {
		deps.Cache = cache.NewNoopCache()
	}
	if deps.Policy.Weights == nil {
		deps.Policy = proctoring.DefaultPolicy()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Events == nil {
		deps.Events = NewEventService(nil, deps.Logger)
	}

	return &serviceManager{
		test:    NewTestService(deps),
		attempt: NewAttemptService(deps),
		grading: NewGradingService(deps),
		export:  NewExportService(deps),
	}
}

func (m *serviceManager) Test() TestService       { return m.test }
func (m *serviceManager) Attempt() AttemptService { return m.attempt }
func (m *serviceManager) Grading() GradingService { return m.grading }
func (m *serviceManager) Export() ExportService   { return m.export }
