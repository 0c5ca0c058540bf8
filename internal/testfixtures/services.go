package testfixtures

import (
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/example/studio-admin/internal/application"
	"github.com/example/studio-admin/internal/metrics"
	"github.com/example/studio-admin/internal/persistence"
)

// StudioFactory assists tests with constructing a Studio over a recording
// remote store using deterministic identifiers and clocks.
type StudioFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Config      application.Config
	Logger      *slog.Logger
}

// StudioFactoryOption configures a StudioFactory instance.
type StudioFactoryOption func(*StudioFactory)

// NewStudioFactory constructs a StudioFactory with defaults.
func NewStudioFactory(opts ...StudioFactoryOption) *StudioFactory {
	factory := &StudioFactory{
		Clock:       NewClock(ReferenceTime()),
		IDGenerator: NewIDGenerator("doc"),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(ReferenceTime())
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("doc")
	}
	if factory.Logger == nil {
		factory.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) StudioFactoryOption {
	return func(factory *StudioFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) StudioFactoryOption {
	return func(factory *StudioFactory) {
		factory.IDGenerator = generator
	}
}

// WithStudioConfig overrides the studio configuration.
func WithStudioConfig(cfg application.Config) StudioFactoryOption {
	return func(factory *StudioFactory) {
		factory.Config = cfg
	}
}

// WithLogger routes studio logs to logger.
func WithLogger(logger *slog.Logger) StudioFactoryOption {
	return func(factory *StudioFactory) {
		factory.Logger = logger
	}
}

// StudioHarness bundles a studio with the fake store and metrics behind it.
type StudioHarness struct {
	Studio   *application.Studio
	Remote   *RemoteStore
	Repos    *persistence.Repositories
	Metrics  *metrics.Recorder
	Registry *prometheus.Registry
	Clock    *Clock
}

// NewStudio builds a studio over a fresh RemoteStore.
func (f *StudioFactory) NewStudio() *StudioHarness {
	remote := NewRemoteStore(f.Clock, f.IDGenerator)
	repos := persistence.NewRepositories(remote, f.Clock.NowFunc())
	registry := prometheus.NewRegistry()
	recorder := metrics.New(registry)
	studio := application.NewStudioWithLogger(repos, f.Config, f.Clock.NowFunc(), recorder, f.Logger)
	return &StudioHarness{
		Studio:   studio,
		Remote:   remote,
		Repos:    repos,
		Metrics:  recorder,
		Registry: registry,
		Clock:    f.Clock,
	}
}
