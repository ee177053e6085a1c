package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/example/agenda-bot/internal/application"
	"github.com/example/agenda-bot/internal/config"
	httptransport "github.com/example/agenda-bot/internal/http"
	"github.com/example/agenda-bot/internal/logging"
	"github.com/example/agenda-bot/internal/persistence"
	"github.com/example/agenda-bot/internal/persistence/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "agendabot: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("agendabot", pflag.ContinueOnError)
	httpPort := flags.Int("http-port", 0, "HTTP listen port (overrides AGENDABOT_HTTP_PORT)")
	sqliteDSN := flags.String("sqlite-dsn", "", "SQLite DSN (overrides AGENDABOT_SQLITE_DSN)")
	sweepInterval := flags.Duration("sweep-interval", 0, "time-monitoring sweep interval (overrides AGENDABOT_SWEEP_INTERVAL)")
	defaultsFile := flags.String("defaults-file", "", "YAML file with global room defaults (overrides AGENDABOT_DEFAULTS_FILE)")
	logLevel := flags.String("log-level", "info", "log level: debug, info, warn or error")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if *defaultsFile != "" {
		os.Setenv("AGENDABOT_DEFAULTS_FILE", *defaultsFile)
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if *httpPort > 0 {
		cfg.HTTPPort = *httpPort
	}
	if *sqliteDSN != "" {
		cfg.SQLiteDSN = *sqliteDSN
	}
	if *sweepInterval > 0 {
		cfg.SweepInterval = *sweepInterval
	}

	logger := logging.NewJSONLogger(os.Stdout, parseLogLevel(*logLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := sqlite.NewConnectionPool(cfg.SQLiteDSN)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		if closeErr := pool.Close(); closeErr != nil {
			logger.Error("failed to close storage", "error", closeErr)
		}
	}()

	if err := pool.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate storage: %w", err)
	}

	items := &agendaStore{repo: sqlite.NewAgendaRepository(pool)}
	warnings := &warningStore{repo: sqlite.NewWarningRepository(pool)}
	sections := &configStore{repo: sqlite.NewRoomConfigRepository(pool)}

	idGenerator := func() string { return uuid.NewString() }

	configService := application.NewRoomConfigServiceWithLogger(sections, globalDefaults(cfg.Defaults), time.Now, logger)
	agendaService := application.NewAgendaServiceWithLogger(items, warnings, configService, idGenerator, time.Now, logger)
	tracker := application.NewCurrentItemTrackerWithLogger(items, configService, time.Now, logger)

	httpClient := &http.Client{Timeout: 10 * time.Second}
	var sink application.MessageSink
	if cfg.MessageSinkURL != "" {
		sink = &webhookMessageSink{client: httpClient, url: cfg.MessageSinkURL}
	} else {
		sink = &loggingMessageSink{logger: logger}
	}
	var sessions application.SessionGate
	if cfg.SessionProbeURL != "" {
		sessions = &httpSessionGate{client: httpClient, url: cfg.SessionProbeURL}
	} else {
		sessions = alwaysLiveGate{}
	}

	monitor := application.NewTimeMonitorWithLogger(items, warnings, configService, sessions, sink, time.Now, logger)
	go monitor.Run(ctx, cfg.SweepInterval)

	commands := httptransport.NewCommandHandler(agendaService, tracker, configService, logger)
	router := httptransport.NewRouter(httptransport.RouterConfig{
		Commands:   commands,
		Middleware: []func(http.Handler) http.Handler{httptransport.RequestLogger(logger)},
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
		}
	}()

	logger.Info("agendabot listening",
		"addr", server.Addr,
		"sweep_interval", cfg.SweepInterval.String(),
	)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-shutdownDone
	return nil
}

func parseLogLevel(value string) slog.Level {
	switch value {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// globalDefaults overlays operator supplied defaults on the builtin fallback
// values. Unset fields keep the builtin value.
func globalDefaults(d config.Defaults) application.GlobalDefaults {
	defaults := application.BuiltinDefaults()
	if d.TimeMonitoringEnabled != nil {
		defaults.TimeMonitoringEnabled = *d.TimeMonitoringEnabled
	}
	if d.WarningThreshold != nil {
		defaults.WarningThreshold = *d.WarningThreshold
	}
	if d.OvertimeThreshold != nil {
		defaults.OvertimeThreshold = *d.OvertimeThreshold
	}
	if d.ResponseMode != "" {
		defaults.ResponseMode = application.ResponseMode(d.ResponseMode)
	}
	if d.MaxItems != nil {
		defaults.Limits.MaxItems = *d.MaxItems
	}
	if d.MaxPlannedMinutes != nil {
		defaults.Limits.MaxPlannedMinutes = *d.MaxPlannedMinutes
	}
	if d.AutoAdvance != nil {
		defaults.Behaviors.AutoAdvance = *d.AutoAdvance
	}
	if d.AutoCleanupOnEnd != nil {
		defaults.Behaviors.AutoCleanupOnEnd = *d.AutoCleanupOnEnd
	}
	if d.SymbolCurrent != "" {
		defaults.Symbols.Current = d.SymbolCurrent
	}
	if d.SymbolCompleted != "" {
		defaults.Symbols.Completed = d.SymbolCompleted
	}
	if d.SymbolPending != "" {
		defaults.Symbols.Pending = d.SymbolPending
	}
	if d.Language != "" {
		defaults.Language = d.Language
	}
	return defaults
}

// agendaStore adapts the persistence agenda repository to the application
// layer, converting models and mapping storage errors to service sentinels.
type agendaStore struct {
	repo persistence.AgendaRepository
}

func (s *agendaStore) CreateItem(ctx context.Context, item application.AgendaItem, requestedPosition int) (application.AgendaItem, error) {
	created, err := s.repo.CreateItem(ctx, toPersistenceItem(item), requestedPosition)
	if err != nil {
		return application.AgendaItem{}, mapStorageError(err)
	}
	return toApplicationItem(created), nil
}

func (s *agendaStore) GetItem(ctx context.Context, id string) (application.AgendaItem, error) {
	item, err := s.repo.GetItem(ctx, id)
	if err != nil {
		return application.AgendaItem{}, mapStorageError(err)
	}
	return toApplicationItem(item), nil
}

func (s *agendaStore) GetItemByPosition(ctx context.Context, roomID string, position int) (application.AgendaItem, error) {
	item, err := s.repo.GetItemByPosition(ctx, roomID, position)
	if err != nil {
		return application.AgendaItem{}, mapStorageError(err)
	}
	return toApplicationItem(item), nil
}

func (s *agendaStore) ListItems(ctx context.Context, roomID string) ([]application.AgendaItem, error) {
	items, err := s.repo.ListItems(ctx, roomID)
	if err != nil {
		return nil, mapStorageError(err)
	}
	return toApplicationItems(items), nil
}

func (s *agendaStore) ListActiveItems(ctx context.Context) ([]application.AgendaItem, error) {
	items, err := s.repo.ListActiveItems(ctx)
	if err != nil {
		return nil, mapStorageError(err)
	}
	return toApplicationItems(items), nil
}

func (s *agendaStore) UpdateItem(ctx context.Context, item application.AgendaItem) error {
	return mapStorageError(s.repo.UpdateItem(ctx, toPersistenceItem(item)))
}

func (s *agendaStore) Reorder(ctx context.Context, roomID string, positions map[string]int) error {
	return mapStorageError(s.repo.Reorder(ctx, roomID, positions))
}

func (s *agendaStore) Move(ctx context.Context, roomID string, from, to int) error {
	return mapStorageError(s.repo.Move(ctx, roomID, from, to))
}

func (s *agendaStore) Swap(ctx context.Context, roomID string, a, b int) error {
	return mapStorageError(s.repo.Swap(ctx, roomID, a, b))
}

func (s *agendaStore) Remove(ctx context.Context, roomID string, position int) error {
	return mapStorageError(s.repo.Remove(ctx, roomID, position))
}

func (s *agendaStore) RemoveCompleted(ctx context.Context, roomID string) (int, error) {
	count, err := s.repo.RemoveCompleted(ctx, roomID)
	return count, mapStorageError(err)
}

func (s *agendaStore) SetCurrentItem(ctx context.Context, roomID, itemID string, startedAt time.Time) error {
	return mapStorageError(s.repo.SetCurrentItem(ctx, roomID, itemID, startedAt))
}

func (s *agendaStore) ClearActiveItems(ctx context.Context, roomID string) (int, error) {
	count, err := s.repo.ClearActiveItems(ctx, roomID)
	return count, mapStorageError(err)
}

// warningStore adapts the warning ledger repository to the application layer.
type warningStore struct {
	repo persistence.WarningRepository
}

func (s *warningStore) RecordWarning(ctx context.Context, record application.WarningRecord) error {
	err := s.repo.RecordWarning(ctx, persistence.WarningRecord{
		ItemID:         record.ItemID,
		Tier:           string(record.Tier),
		ElapsedMinutes: record.ElapsedMinutes,
		PlannedMinutes: record.PlannedMinutes,
		RecordedAt:     record.RecordedAt,
	})
	if errors.Is(err, persistence.ErrDuplicate) {
		return application.ErrDuplicateWarning
	}
	return mapStorageError(err)
}

func (s *warningStore) ListWarningsForItem(ctx context.Context, itemID string) ([]application.WarningRecord, error) {
	records, err := s.repo.ListWarningsForItem(ctx, itemID)
	if err != nil {
		return nil, mapStorageError(err)
	}
	result := make([]application.WarningRecord, 0, len(records))
	for _, record := range records {
		result = append(result, application.WarningRecord{
			ItemID:         record.ItemID,
			Tier:           application.WarningTier(record.Tier),
			ElapsedMinutes: record.ElapsedMinutes,
			PlannedMinutes: record.PlannedMinutes,
			RecordedAt:     record.RecordedAt,
		})
	}
	return result, nil
}

func (s *warningStore) DeleteWarningsForItem(ctx context.Context, itemID string) error {
	return mapStorageError(s.repo.DeleteWarningsForItem(ctx, itemID))
}

// configStore adapts the room config repository to the application layer.
type configStore struct {
	repo persistence.RoomConfigRepository
}

func (s *configStore) GetSection(ctx context.Context, roomID, section string) (application.ConfigSection, error) {
	stored, err := s.repo.GetSection(ctx, roomID, section)
	if err != nil {
		return application.ConfigSection{}, mapStorageError(err)
	}
	return toApplicationSection(stored), nil
}

func (s *configStore) ListSections(ctx context.Context, roomID string) ([]application.ConfigSection, error) {
	stored, err := s.repo.ListSections(ctx, roomID)
	if err != nil {
		return nil, mapStorageError(err)
	}
	result := make([]application.ConfigSection, 0, len(stored))
	for _, section := range stored {
		result = append(result, toApplicationSection(section))
	}
	return result, nil
}

func (s *configStore) UpsertSection(ctx context.Context, section application.ConfigSection) error {
	return mapStorageError(s.repo.UpsertSection(ctx, persistence.ConfigSection{
		RoomID:       section.RoomID,
		Section:      section.Section,
		Payload:      section.Payload,
		ConfiguredBy: section.ConfiguredBy,
		ConfiguredAt: section.ConfiguredAt,
	}))
}

func (s *configStore) DeleteSection(ctx context.Context, roomID, section string) error {
	return mapStorageError(s.repo.DeleteSection(ctx, roomID, section))
}

func (s *configStore) DeleteRoomConfig(ctx context.Context, roomID string) error {
	return mapStorageError(s.repo.DeleteRoomConfig(ctx, roomID))
}

func mapStorageError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persistence.ErrNotFound):
		return application.ErrNotFound
	default:
		return err
	}
}

func toApplicationItem(item persistence.AgendaItem) application.AgendaItem {
	return application.AgendaItem{
		ID:             item.ID,
		RoomID:         item.RoomID,
		Position:       item.Position,
		Title:          item.Title,
		PlannedMinutes: item.PlannedMinutes,
		IsCompleted:    item.IsCompleted,
		CompletedAt:    item.CompletedAt,
		StartTime:      item.StartTime,
		CreatedAt:      item.CreatedAt,
		UpdatedAt:      item.UpdatedAt,
	}
}

func toApplicationItems(items []persistence.AgendaItem) []application.AgendaItem {
	result := make([]application.AgendaItem, 0, len(items))
	for _, item := range items {
		result = append(result, toApplicationItem(item))
	}
	return result
}

func toPersistenceItem(item application.AgendaItem) persistence.AgendaItem {
	return persistence.AgendaItem{
		ID:             item.ID,
		RoomID:         item.RoomID,
		Position:       item.Position,
		Title:          item.Title,
		PlannedMinutes: item.PlannedMinutes,
		IsCompleted:    item.IsCompleted,
		CompletedAt:    item.CompletedAt,
		StartTime:      item.StartTime,
		CreatedAt:      item.CreatedAt,
		UpdatedAt:      item.UpdatedAt,
	}
}

func toApplicationSection(section persistence.ConfigSection) application.ConfigSection {
	return application.ConfigSection{
		RoomID:       section.RoomID,
		Section:      section.Section,
		Payload:      section.Payload,
		ConfiguredBy: section.ConfiguredBy,
		ConfiguredAt: section.ConfiguredAt,
	}
}

// webhookMessageSink posts warning messages to an external delivery endpoint.
type webhookMessageSink struct {
	client *http.Client
	url    string
}

func (s *webhookMessageSink) Send(ctx context.Context, roomID, text string, silent bool) error {
	payload, err := json.Marshal(map[string]any{
		"room_id": roomID,
		"text":    text,
		"silent":  silent,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("message sink returned status %d", resp.StatusCode)
	}
	return nil
}

// loggingMessageSink records warning messages in the process log. It stands in
// when no delivery endpoint is configured.
type loggingMessageSink struct {
	logger *slog.Logger
}

func (s *loggingMessageSink) Send(_ context.Context, roomID, text string, silent bool) error {
	s.logger.Info("time warning",
		"room_id", roomID,
		"text", text,
		"silent", silent,
	)
	return nil
}

// httpSessionGate asks an external endpoint whether a room has a live call.
type httpSessionGate struct {
	client *http.Client
	url    string
}

func (g *httpSessionGate) IsLive(ctx context.Context, roomID string) (bool, error) {
	probeURL := fmt.Sprintf("%s?room_id=%s", g.url, url.QueryEscape(roomID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
	if err != nil {
		return false, err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("session probe returned status %d", resp.StatusCode)
	}
	var body struct {
		Live bool `json:"live"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, err
	}
	return body.Live, nil
}

// alwaysLiveGate treats every room as having a live call. Deployments without
// a session probe monitor items whenever one is started.
type alwaysLiveGate struct{}

func (alwaysLiveGate) IsLive(context.Context, string) (bool, error) {
	return true, nil
}
