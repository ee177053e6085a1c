package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/agenda-bot/internal/application"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// AgendaServiceDeps captures dependencies for constructing an agenda service.
type AgendaServiceDeps struct {
	Items       application.AgendaRepository
	Warnings    application.WarningLedger
	Config      *application.RoomConfigService
	IDGenerator func() string
	Now         func() time.Time
	Logger      *slog.Logger
}

// NewAgendaService builds an agenda service using the supplied dependencies
// combined with the factory defaults.
func (f *ServiceFactory) NewAgendaService(deps AgendaServiceDeps) *application.AgendaService {
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = f.IDGenerator.NextFunc()
	}
	now := deps.Now
	if now == nil {
		now = f.Clock.NowFunc()
	}
	config := deps.Config
	if config == nil {
		config = f.NewRoomConfigService(RoomConfigServiceDeps{})
	}
	return application.NewAgendaServiceWithLogger(
		deps.Items,
		deps.Warnings,
		config,
		idGen,
		now,
		deps.Logger,
	)
}

// TrackerDeps captures dependencies for constructing a current item tracker.
type TrackerDeps struct {
	Items  application.AgendaRepository
	Config *application.RoomConfigService
	Now    func() time.Time
	Logger *slog.Logger
}

// NewCurrentItemTracker builds a tracker using the supplied dependencies.
func (f *ServiceFactory) NewCurrentItemTracker(deps TrackerDeps) *application.CurrentItemTracker {
	now := deps.Now
	if now == nil {
		now = f.Clock.NowFunc()
	}
	config := deps.Config
	if config == nil {
		config = f.NewRoomConfigService(RoomConfigServiceDeps{})
	}
	return application.NewCurrentItemTrackerWithLogger(
		deps.Items,
		config,
		now,
		deps.Logger,
	)
}

// RoomConfigServiceDeps captures dependencies for constructing a room config
// resolver.
type RoomConfigServiceDeps struct {
	Sections application.RoomConfigRepository
	Defaults *application.GlobalDefaults
	Now      func() time.Time
	Logger   *slog.Logger
}

// NewRoomConfigService builds a config resolver using the supplied
// dependencies. A nil Defaults uses the builtin defaults.
func (f *ServiceFactory) NewRoomConfigService(deps RoomConfigServiceDeps) *application.RoomConfigService {
	now := deps.Now
	if now == nil {
		now = f.Clock.NowFunc()
	}
	defaults := application.BuiltinDefaults()
	if deps.Defaults != nil {
		defaults = *deps.Defaults
	}
	return application.NewRoomConfigServiceWithLogger(
		deps.Sections,
		defaults,
		now,
		deps.Logger,
	)
}

// TimeMonitorDeps captures dependencies for constructing a time monitor.
type TimeMonitorDeps struct {
	Items    application.ActiveItemSource
	Warnings application.WarningLedger
	Config   application.MonitoringConfigSource
	Sessions application.SessionGate
	Sink     application.MessageSink
	Now      func() time.Time
	Logger   *slog.Logger
}

// NewTimeMonitor builds a time monitor using the supplied dependencies.
func (f *ServiceFactory) NewTimeMonitor(deps TimeMonitorDeps) *application.TimeMonitor {
	now := deps.Now
	if now == nil {
		now = f.Clock.NowFunc()
	}
	return application.NewTimeMonitorWithLogger(
		deps.Items,
		deps.Warnings,
		deps.Config,
		deps.Sessions,
		deps.Sink,
		now,
		deps.Logger,
	)
}
