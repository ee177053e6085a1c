package application

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type monitorFixture struct {
	monitor *TimeMonitor
	repo    *agendaRepoFake
	ledger  *warningLedgerFake
	config  *RoomConfigService
	gate    *sessionGateFake
	sink    *messageSinkFake
}

func newMonitorFixture(t *testing.T, now time.Time) *monitorFixture {
	t.Helper()
	repo := &agendaRepoFake{}
	ledger := newWarningLedgerFake()
	config := NewRoomConfigService(newConfigRepoFake(), BuiltinDefaults(), fixedClock(now))
	gate := &sessionGateFake{live: map[string]bool{"room-1": true}}
	sink := &messageSinkFake{}
	monitor := NewTimeMonitor(repo, ledger, config, gate, sink, fixedClock(now))
	return &monitorFixture{monitor: monitor, repo: repo, ledger: ledger, config: config, gate: gate, sink: sink}
}

func activeItem(roomID, id string, planned int, startedAt time.Time) AgendaItem {
	return AgendaItem{
		ID:             id,
		RoomID:         roomID,
		Position:       1,
		Title:          "Budget review",
		PlannedMinutes: planned,
		StartTime:      &startedAt,
	}
}

func TestTimeMonitor_Sweep(t *testing.T) {
	now := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

	t.Run("escalates through the tiers without repeats", func(t *testing.T) {
		f := newMonitorFixture(t, now)
		f.repo.items = append(f.repo.items, activeItem("room-1", "item-1", 10, now.Add(-9*time.Minute)))

		stats, err := f.monitor.Sweep(context.Background())
		if err != nil {
			t.Fatalf("first sweep failed: %v", err)
		}
		if stats.Emitted != 1 {
			t.Fatalf("expected one warning at minute 9, got %d", stats.Emitted)
		}
		if len(f.sink.sent) != 1 || !strings.Contains(f.sink.sent[0].Text, "Time check") {
			t.Fatalf("expected an approaching message, got %+v", f.sink.sent)
		}

		// Two minutes later the ratio crosses 1.0; the approaching record
		// must not repeat and the overtime tier fires instead.
		f.monitor.now = fixedClock(now.Add(2 * time.Minute))
		f.repo.items[0].StartTime = timePtr(now.Add(-9 * time.Minute))

		stats, err = f.monitor.Sweep(context.Background())
		if err != nil {
			t.Fatalf("second sweep failed: %v", err)
		}
		if stats.Emitted != 1 {
			t.Fatalf("expected exactly one new warning, got %d", stats.Emitted)
		}
		if len(f.sink.sent) != 2 || !strings.Contains(f.sink.sent[1].Text, "reached its planned") {
			t.Fatalf("expected an overtime message, got %+v", f.sink.sent)
		}
		if f.ledger.count("item-1") != 2 {
			t.Fatalf("expected two ledger records, got %d", f.ledger.count("item-1"))
		}
	})

	t.Run("is idempotent with no elapsed time", func(t *testing.T) {
		f := newMonitorFixture(t, now)
		f.repo.items = append(f.repo.items, activeItem("room-1", "item-1", 10, now.Add(-9*time.Minute)))

		if _, err := f.monitor.Sweep(context.Background()); err != nil {
			t.Fatalf("first sweep failed: %v", err)
		}
		stats, err := f.monitor.Sweep(context.Background())
		if err != nil {
			t.Fatalf("second sweep failed: %v", err)
		}

		if stats.Emitted != 0 {
			t.Fatalf("expected no new warnings on identical state, got %d", stats.Emitted)
		}
		if len(f.sink.sent) != 1 {
			t.Fatalf("expected one dispatched message total, got %d", len(f.sink.sent))
		}
	})

	t.Run("never emits below a tier already on the ledger", func(t *testing.T) {
		f := newMonitorFixture(t, now)
		f.repo.items = append(f.repo.items, activeItem("room-1", "item-1", 10, now.Add(-9*time.Minute)))
		if err := f.ledger.RecordWarning(context.Background(), WarningRecord{
			ItemID: "item-1",
			Tier:   TierOvertimeCritical,
		}); err != nil {
			t.Fatalf("RecordWarning failed: %v", err)
		}

		stats, err := f.monitor.Sweep(context.Background())
		if err != nil {
			t.Fatalf("Sweep failed: %v", err)
		}

		if stats.Emitted != 0 {
			t.Fatalf("expected monotonic suppression, got %d emissions", stats.Emitted)
		}
		if len(f.sink.sent) != 0 {
			t.Fatalf("expected no messages, got %+v", f.sink.sent)
		}
	})

	t.Run("skips rooms without a live session", func(t *testing.T) {
		f := newMonitorFixture(t, now)
		f.gate.live["room-1"] = false
		f.repo.items = append(f.repo.items, activeItem("room-1", "item-1", 10, now.Add(-30*time.Minute)))

		stats, err := f.monitor.Sweep(context.Background())
		if err != nil {
			t.Fatalf("Sweep failed: %v", err)
		}

		if stats.Emitted != 0 || stats.Skipped != 1 {
			t.Fatalf("expected one skipped item, got %+v", stats)
		}
	})

	t.Run("skips rooms with monitoring disabled", func(t *testing.T) {
		f := newMonitorFixture(t, now)
		enabled := false
		if _, err := f.config.SetTimeMonitoring(context.Background(), SetTimeMonitoringParams{
			Actor:  Actor{UserID: "alice", CanModerate: true},
			RoomID: "room-1",
			Patch:  TimeMonitoringPatch{Enabled: &enabled},
		}); err != nil {
			t.Fatalf("SetTimeMonitoring failed: %v", err)
		}
		f.repo.items = append(f.repo.items, activeItem("room-1", "item-1", 10, now.Add(-30*time.Minute)))

		stats, err := f.monitor.Sweep(context.Background())
		if err != nil {
			t.Fatalf("Sweep failed: %v", err)
		}

		if stats.Emitted != 0 {
			t.Fatalf("expected no warnings with monitoring disabled, got %d", stats.Emitted)
		}
	})

	t.Run("delivers silently when the room asks for it", func(t *testing.T) {
		f := newMonitorFixture(t, now)
		if err := f.config.SetResponseMode(context.Background(), Actor{UserID: "alice", CanModerate: true}, "room-1", ResponseModeSilent); err != nil {
			t.Fatalf("SetResponseMode failed: %v", err)
		}
		f.repo.items = append(f.repo.items, activeItem("room-1", "item-1", 10, now.Add(-9*time.Minute)))

		if _, err := f.monitor.Sweep(context.Background()); err != nil {
			t.Fatalf("Sweep failed: %v", err)
		}

		if len(f.sink.sent) != 1 || !f.sink.sent[0].Silent {
			t.Fatalf("expected a silent message, got %+v", f.sink.sent)
		}
	})

	t.Run("isolates dispatch failures per item", func(t *testing.T) {
		f := newMonitorFixture(t, now)
		f.gate.live["room-2"] = true
		f.sink.err = errors.New("sink unavailable")
		broken := activeItem("room-1", "item-1", 10, now.Add(-9*time.Minute))
		healthy := activeItem("room-2", "item-2", 10, now.Add(-9*time.Minute))
		healthy.Position = 2
		f.repo.items = append(f.repo.items, broken, healthy)

		stats, err := f.monitor.Sweep(context.Background())
		if err != nil {
			t.Fatalf("Sweep failed: %v", err)
		}

		if stats.Failed != 2 {
			t.Fatalf("expected both dispatches to fail, got %+v", stats)
		}
		if f.ledger.count("item-1") != 0 || f.ledger.count("item-2") != 0 {
			t.Fatal("expected no ledger records after failed dispatch")
		}

		// Next sweep retries once the sink recovers.
		f.sink.err = nil
		stats, err = f.monitor.Sweep(context.Background())
		if err != nil {
			t.Fatalf("retry sweep failed: %v", err)
		}
		if stats.Emitted != 2 {
			t.Fatalf("expected both warnings on retry, got %+v", stats)
		}
	})

	t.Run("rejects overlapping sweeps", func(t *testing.T) {
		f := newMonitorFixture(t, now)
		f.monitor.sweepMu.Lock()
		defer f.monitor.sweepMu.Unlock()

		_, err := f.monitor.Sweep(context.Background())

		if !errors.Is(err, ErrSweepInProgress) {
			t.Fatalf("expected ErrSweepInProgress, got %v", err)
		}
	})
}

func TestTierForRatio(t *testing.T) {
	cfg := TimeMonitoringConfig{WarningThreshold: 0.8, OvertimeThreshold: 1.5}

	cases := []struct {
		ratio float64
		want  WarningTier
	}{
		{0.5, ""},
		{0.79, ""},
		{0.8, TierApproaching},
		{0.99, TierApproaching},
		{1.0, TierOvertime},
		{1.49, TierOvertime},
		{1.5, TierOvertimeCritical},
		{3.2, TierOvertimeCritical},
	}
	for _, tc := range cases {
		if got := tierForRatio(tc.ratio, cfg); got != tc.want {
			t.Errorf("tierForRatio(%v) = %q, want %q", tc.ratio, got, tc.want)
		}
	}
}
