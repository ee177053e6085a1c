package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/agenda-bot/internal/timeutil"
)

// ActiveItemSource yields the items eligible for time monitoring across all
// rooms.
type ActiveItemSource interface {
	ListActiveItems(ctx context.Context) ([]AgendaItem, error)
}

// SessionGate reports whether a room currently has a live call. Warnings are
// suppressed outside live sessions.
type SessionGate interface {
	IsLive(ctx context.Context, roomID string) (bool, error)
}

// MessageSink delivers composed warning text to a room.
type MessageSink interface {
	Send(ctx context.Context, roomID, text string, silent bool) error
}

// MonitoringConfigSource resolves per-room monitoring and delivery settings.
type MonitoringConfigSource interface {
	GetTimeMonitoring(ctx context.Context, roomID string) (TimeMonitoringConfig, error)
	ResponseMode(ctx context.Context, roomID string) (ResponseMode, ConfigSource, error)
}

// SweepStats summarizes one monitoring pass.
type SweepStats struct {
	Scanned int
	Skipped int
	Emitted int
	Failed  int
}

// TimeMonitor periodically scans active agenda items and escalates warnings
// through the three tiers. The warning ledger makes emission idempotent and
// monotonic per item.
type TimeMonitor struct {
	items    ActiveItemSource
	warnings WarningLedger
	config   MonitoringConfigSource
	sessions SessionGate
	sink     MessageSink
	labeler  timeutil.UnitLabeler
	now      func() time.Time
	logger   *slog.Logger

	sweepMu sync.Mutex
}

// NewTimeMonitor constructs the monitor with the default logger and unit
// labels.
func NewTimeMonitor(items ActiveItemSource, warnings WarningLedger, config MonitoringConfigSource, sessions SessionGate, sink MessageSink, now func() time.Time) *TimeMonitor {
	return NewTimeMonitorWithLogger(items, warnings, config, sessions, sink, now, nil)
}

// NewTimeMonitorWithLogger constructs the monitor with a specified logger.
func NewTimeMonitorWithLogger(items ActiveItemSource, warnings WarningLedger, config MonitoringConfigSource, sessions SessionGate, sink MessageSink, now func() time.Time, logger *slog.Logger) *TimeMonitor {
	if now == nil {
		now = time.Now
	}
	return &TimeMonitor{
		items:    items,
		warnings: warnings,
		config:   config,
		sessions: sessions,
		sink:     sink,
		labeler:  timeutil.DefaultLabeler,
		now:      now,
		logger:   defaultLogger(logger),
	}
}

// SetUnitLabeler overrides the duration unit labels used in warning text.
func (m *TimeMonitor) SetUnitLabeler(labeler timeutil.UnitLabeler) {
	if labeler != nil {
		m.labeler = labeler
	}
}

// Run executes a sweep every interval until the context is cancelled. Sweeps
// run on this goroutine only, so ErrSweepInProgress never occurs here unless
// Sweep is also being called externally.
func (m *TimeMonitor) Run(ctx context.Context, interval time.Duration) {
	logger := serviceLogger(ctx, m.logger, "TimeMonitor", "Run", "interval", interval.String())
	logger.InfoContext(ctx, "time monitor started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.InfoContext(ctx, "time monitor stopped")
			return
		case <-ticker.C:
			stats, err := m.Sweep(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "sweep failed", "error", err, "error_kind", ErrorKind(err))
				continue
			}
			logger.InfoContext(ctx, "sweep finished",
				"scanned", stats.Scanned,
				"skipped", stats.Skipped,
				"emitted", stats.Emitted,
				"failed", stats.Failed,
			)
		}
	}
}

// Sweep runs one monitoring pass over every active item. It is non-reentrant:
// a second call while one is in flight fails with ErrSweepInProgress. Per-item
// failures are logged and skipped so one bad room cannot starve the rest.
func (m *TimeMonitor) Sweep(ctx context.Context) (SweepStats, error) {
	if !m.sweepMu.TryLock() {
		return SweepStats{}, ErrSweepInProgress
	}
	defer m.sweepMu.Unlock()

	logger := serviceLogger(ctx, m.logger, "TimeMonitor", "Sweep")

	items, err := m.items.ListActiveItems(ctx)
	if err != nil {
		return SweepStats{}, fmt.Errorf("failed to list active items: %w", err)
	}

	stats := SweepStats{Scanned: len(items)}
	sessions := make(map[string]bool)
	configs := make(map[string]TimeMonitoringConfig)
	silentRooms := make(map[string]bool)
	now := m.now()

	for _, item := range items {
		emitted, err := m.sweepItem(ctx, item, now, sessions, configs, silentRooms)
		if err != nil {
			stats.Failed++
			logger.ErrorContext(ctx, "item sweep failed",
				"room_id", item.RoomID,
				"item_id", item.ID,
				"error", err,
				"error_kind", ErrorKind(err),
			)
			continue
		}
		if emitted {
			stats.Emitted++
		} else {
			stats.Skipped++
		}
	}
	return stats, nil
}

func (m *TimeMonitor) sweepItem(ctx context.Context, item AgendaItem, now time.Time, sessions map[string]bool, configs map[string]TimeMonitoringConfig, silentRooms map[string]bool) (bool, error) {
	live, ok := sessions[item.RoomID]
	if !ok {
		var err error
		live, err = m.sessions.IsLive(ctx, item.RoomID)
		if err != nil {
			return false, fmt.Errorf("failed to check session liveness: %w", err)
		}
		sessions[item.RoomID] = live
	}
	if !live {
		return false, nil
	}

	cfg, ok := configs[item.RoomID]
	if !ok {
		var err error
		cfg, err = m.config.GetTimeMonitoring(ctx, item.RoomID)
		if err != nil {
			return false, fmt.Errorf("failed to resolve monitoring config: %w", err)
		}
		configs[item.RoomID] = cfg
	}
	if !cfg.Enabled {
		return false, nil
	}

	elapsed := timeutil.ElapsedMinutes(*item.StartTime, now)
	ratio := timeutil.Ratio(elapsed, float64(item.PlannedMinutes))

	tier := tierForRatio(ratio, cfg)
	if tier == "" {
		return false, nil
	}

	records, err := m.warnings.ListWarningsForItem(ctx, item.ID)
	if err != nil {
		return false, fmt.Errorf("failed to read warning ledger: %w", err)
	}
	maxRank := 0
	for _, record := range records {
		if rank := record.Tier.Rank(); rank > maxRank {
			maxRank = rank
		}
	}
	// Emit only above everything already on the ledger. This is both the
	// idempotence check and the monotonicity check in one comparison.
	if tier.Rank() <= maxRank {
		return false, nil
	}

	silent, ok := silentRooms[item.RoomID]
	if !ok {
		mode, _, err := m.config.ResponseMode(ctx, item.RoomID)
		if err != nil {
			return false, fmt.Errorf("failed to resolve response mode: %w", err)
		}
		silent = mode == ResponseModeSilent
		silentRooms[item.RoomID] = silent
	}

	elapsedWhole := int(elapsed)
	text := m.composeWarning(tier, item, elapsedWhole)
	if err := m.sink.Send(ctx, item.RoomID, text, silent); err != nil {
		return false, fmt.Errorf("failed to dispatch warning: %w", err)
	}

	// Dispatch before record: a failed send retries next sweep, a failed
	// record after a successful send risks one duplicate message at most.
	err = m.warnings.RecordWarning(ctx, WarningRecord{
		ItemID:         item.ID,
		Tier:           tier,
		ElapsedMinutes: elapsedWhole,
		PlannedMinutes: item.PlannedMinutes,
		RecordedAt:     now,
	})
	if err != nil && !errors.Is(err, ErrDuplicateWarning) {
		return false, fmt.Errorf("failed to record warning: %w", err)
	}
	return true, nil
}

// tierForRatio returns the highest tier whose threshold the ratio meets, or
// empty when below every threshold. The overtime boundary is fixed at 1.0.
func tierForRatio(ratio float64, cfg TimeMonitoringConfig) WarningTier {
	switch {
	case ratio >= cfg.OvertimeThreshold:
		return TierOvertimeCritical
	case ratio >= 1.0:
		return TierOvertime
	case ratio >= cfg.WarningThreshold:
		return TierApproaching
	}
	return ""
}

func (m *TimeMonitor) composeWarning(tier WarningTier, item AgendaItem, elapsed int) string {
	elapsedText := timeutil.FormatMinutes(elapsed, m.labeler)
	plannedText := timeutil.FormatMinutes(item.PlannedMinutes, m.labeler)
	switch tier {
	case TierApproaching:
		return fmt.Sprintf("Time check: %q has used %s of the planned %s.", item.Title, elapsedText, plannedText)
	case TierOvertime:
		return fmt.Sprintf("%q has reached its planned %s and is now at %s.", item.Title, plannedText, elapsedText)
	case TierOvertimeCritical:
		return fmt.Sprintf("%q is significantly over time: %s elapsed against %s planned. Consider wrapping up.", item.Title, elapsedText, plannedText)
	}
	return ""
}
