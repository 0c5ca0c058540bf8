package application

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/example/studio-admin/internal/cache"
	"github.com/example/studio-admin/internal/metrics"
	"github.com/example/studio-admin/internal/persistence"
	"github.com/example/studio-admin/internal/recurrence"
)

// Defaults applied by NewStudio for zero Config members.
const (
	DefaultBookingWindowWeeks = 2
	DefaultReportMonths       = 6
	DefaultCascadeParallelism = 8

	// maxInValues is the largest value list a single "in" filter may carry.
	maxInValues = 30
)

// Config tunes a Studio.
type Config struct {
	BookingWindowWeeks int
	ReportMonths       int
	CascadeParallelism int
	Location           *time.Location
	LookupTTL          time.Duration
}

func (c Config) withDefaults() Config {
	if c.BookingWindowWeeks <= 0 {
		c.BookingWindowWeeks = DefaultBookingWindowWeeks
	}
	if c.BookingWindowWeeks*7 > maxInValues {
		c.BookingWindowWeeks = maxInValues / 7
	}
	if c.ReportMonths <= 0 {
		c.ReportMonths = DefaultReportMonths
	}
	if c.CascadeParallelism <= 0 {
		c.CascadeParallelism = DefaultCascadeParallelism
	}
	return c
}

// Studio owns the collection caches and relays every mutation to the
// document store. A patch is applied to the cache only after the remote
// call succeeded.
type Studio struct {
	repos   *persistence.Repositories
	engine  *recurrence.Engine
	metrics *metrics.Recorder
	now     func() time.Time
	logger  *slog.Logger
	cfg     Config

	courses   *cache.Collection[persistence.Course]
	overrides *cache.Collection[persistence.LessonOverride]
	bookings  *cache.Collection[persistence.Booking]
	members   *cache.Collection[persistence.Member]
	expenses  *cache.Collection[persistence.FixedExpense]
	pending   *cache.Collection[persistence.PendingUser]
	census    *cache.Collection[persistence.CensusPerson]

	memberMonth *cache.Collection[PaidStatus]
	censusMonth *cache.Collection[PaidStatus]

	windowMu sync.RWMutex
	window   []string

	locks   *keyedMutex
	lookups *lookupCache
}

// NewStudio constructs a studio over repos.
func NewStudio(repos *persistence.Repositories, cfg Config, now func() time.Time) *Studio {
	return NewStudioWithLogger(repos, cfg, now, nil, nil)
}

// NewStudioWithLogger constructs a studio reporting to recorder and logger.
// Both may be nil.
func NewStudioWithLogger(repos *persistence.Repositories, cfg Config, now func() time.Time, recorder *metrics.Recorder, logger *slog.Logger) *Studio {
	if now == nil {
		now = time.Now
	}
	cfg = cfg.withDefaults()
	s := &Studio{
		repos:   repos,
		engine:  recurrence.NewEngine(cfg.Location),
		metrics: recorder,
		now:     now,
		logger:  defaultLogger(logger),
		cfg:     cfg,
		locks:   newKeyedMutex(),
		lookups: newLookupCache(cfg.LookupTTL, 0, now),
	}

	var observer cache.Observer
	if recorder != nil {
		observer = recorder
	}
	s.courses = cache.New(persistence.CoursesCollection, courseKey, repos.Courses.List,
		cache.WithClone(cloneCourse), cache.WithObserver[persistence.Course](observer))
	s.overrides = cache.New(persistence.LessonOverridesCollection, overrideKey, s.fetchOverrides,
		cache.WithClone(cloneOverride), cache.WithObserver[persistence.LessonOverride](observer))
	s.bookings = cache.New(persistence.BookingsCollection, bookingKey, s.fetchWindowBookings,
		cache.WithObserver[persistence.Booking](observer))
	s.members = cache.New(persistence.MembersCollection, memberKey, repos.Members.List,
		cache.WithObserver[persistence.Member](observer))
	s.expenses = cache.New(persistence.FixedExpensesCollection, expenseKey, repos.Expenses.List,
		cache.WithObserver[persistence.FixedExpense](observer))
	s.pending = cache.New(persistence.PendingUsersCollection, pendingKey, repos.Pending.List,
		cache.WithObserver[persistence.PendingUser](observer))
	s.census = cache.New(persistence.CensusCollection, censusKey, repos.Census.List,
		cache.WithObserver[persistence.CensusPerson](observer))
	s.memberMonth = cache.New("users/payments/current", paidStatusKey, s.monthFetcher(persistence.MemberPayments),
		cache.WithObserver[PaidStatus](observer))
	s.censusMonth = cache.New("censusPersons/payments/current", paidStatusKey, s.monthFetcher(persistence.CensusPayments),
		cache.WithObserver[PaidStatus](observer))
	return s
}

func (s *Studio) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "Studio", operation, attrs...)
}

// finish logs and counts the outcome of a mutation. It is deferred with a
// pointer to the named error result.
func (s *Studio) finish(ctx context.Context, logger *slog.Logger, operation string, errp *error) {
	err := *errp
	s.metrics.Mutation(operation, err)
	if err != nil {
		logger.ErrorContext(ctx, "mutation failed", "error", err, "error_kind", ErrorKind(err))
		return
	}
	logger.InfoContext(ctx, "mutation applied")
}

// Engine exposes the schedule engine used by the studio.
func (s *Studio) Engine() *recurrence.Engine {
	return s.engine
}

// Init loads courses, their overrides and the bookings of the booking
// window. Collections already loaded are not fetched again.
func (s *Studio) Init(ctx context.Context) (err error) {
	if s == nil {
		return fmt.Errorf("Studio is nil")
	}
	logger := s.loggerWith(ctx, "Init")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if _, err := s.courses.Load(gctx); err != nil {
			return remoteError("Init", persistence.CoursesCollection, err)
		}
		if _, err := s.overrides.Load(gctx); err != nil {
			return remoteError("Init", persistence.LessonOverridesCollection, err)
		}
		return nil
	})
	g.Go(func() error {
		if _, err := s.bookings.Load(gctx); err != nil {
			return remoteError("Init", persistence.BookingsCollection, err)
		}
		return nil
	})
	if err = g.Wait(); err != nil {
		logger.ErrorContext(ctx, "failed to load studio data", "error", err, "error_kind", ErrorKind(err))
		return err
	}
	logger.DebugContext(ctx, "studio data loaded")
	return nil
}

// Loaded reports whether Init has completed.
func (s *Studio) Loaded() bool {
	return s.courses.Loaded() && s.overrides.Loaded() && s.bookings.Loaded()
}

// Refresh drops every cached collection and runs Init again. Lazily loaded
// collections are fetched on their next use.
func (s *Studio) Refresh(ctx context.Context) error {
	s.courses.Reset()
	s.overrides.Reset()
	s.bookings.Reset()
	s.members.Reset()
	s.expenses.Reset()
	s.pending.Reset()
	s.census.Reset()
	s.memberMonth.Reset()
	s.censusMonth.Reset()
	s.lookups.Invalidate()
	return s.Init(ctx)
}

// fetchOverrides loads the overrides of every course, one query per course
// issued in parallel.
func (s *Studio) fetchOverrides(ctx context.Context) ([]persistence.LessonOverride, error) {
	courses, err := s.courses.Load(ctx)
	if err != nil {
		return nil, err
	}
	results := make([][]persistence.LessonOverride, len(courses))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.CascadeParallelism)
	for i, course := range courses {
		g.Go(func() error {
			rows, err := s.repos.Overrides.ListForCourse(gctx, course.ID)
			if err != nil {
				return err
			}
			results[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return slices.Concat(results...), nil
}

// fetchWindowBookings loads the bookings of the current booking window in a
// single query.
func (s *Studio) fetchWindowBookings(ctx context.Context) ([]persistence.Booking, error) {
	window := s.engine.WeekWindow(s.now(), s.cfg.BookingWindowWeeks)
	rows, err := s.repos.Bookings.ListByDates(ctx, window)
	if err != nil {
		return nil, err
	}
	s.windowMu.Lock()
	s.window = window
	s.windowMu.Unlock()
	return rows, nil
}

// Window returns the dates covered by the cached bookings.
func (s *Studio) Window() []string {
	s.windowMu.RLock()
	defer s.windowMu.RUnlock()
	return slices.Clone(s.window)
}

func (s *Studio) inWindow(date string) bool {
	s.windowMu.RLock()
	defer s.windowMu.RUnlock()
	return slices.Contains(s.window, date)
}

func courseKey(c persistence.Course) string           { return c.ID }
func overrideKey(o persistence.LessonOverride) string { return o.ID }
func bookingKey(b persistence.Booking) string         { return b.ID }
func memberKey(m persistence.Member) string           { return m.ID }
func expenseKey(e persistence.FixedExpense) string    { return e.ID }
func pendingKey(p persistence.PendingUser) string     { return p.ID }
func censusKey(p persistence.CensusPerson) string     { return p.ID }

func courseByName(a, b persistence.Course) int { return cmp.Compare(a.Name, b.Name) }

func memberByName(a, b persistence.Member) int { return cmp.Compare(a.DisplayName, b.DisplayName) }

func expenseByMonthDesc(a, b persistence.FixedExpense) int { return cmp.Compare(b.YearMonth, a.YearMonth) }

func censusByLastName(a, b persistence.CensusPerson) int {
	return cmp.Or(cmp.Compare(a.LastName, b.LastName), cmp.Compare(a.FirstName, b.FirstName))
}

func cloneCourse(c persistence.Course) persistence.Course {
	c.Schedule = slices.Clone(c.Schedule)
	return c
}

func cloneOverride(o persistence.LessonOverride) persistence.LessonOverride {
	o.NewStartTime = cloneString(o.NewStartTime)
	o.NewEndTime = cloneString(o.NewEndTime)
	return o
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	s := *v
	return &s
}
