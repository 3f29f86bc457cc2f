package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rl1809/scrap-lifecycle/internal/adapter/storage"
	"github.com/rl1809/scrap-lifecycle/internal/core/domain"
)

// Mock StatsReader
type stubStatsReader struct {
	lots      []domain.InventoryLot
	updates   []time.Time
	err       error
	lastSince time.Time
}

func (s *stubStatsReader) ListLots(ctx context.Context) ([]domain.InventoryLot, error) {
	return s.lots, s.err
}

func (s *stubStatsReader) CountSince(ctx context.Context, since time.Time) (int, error) {
	s.lastSince = since
	if s.err != nil {
		return 0, s.err
	}
	n := 0
	for _, at := range s.updates {
		if !at.Before(since) {
			n++
		}
	}
	return n, nil
}

var statsNow = time.Date(2026, 6, 15, 9, 30, 0, 0, time.UTC)

func fixedNow() time.Time { return statsNow }

func TestStageDistribution(t *testing.T) {
	reader := &stubStatsReader{lots: []domain.InventoryLot{
		{ID: 1, LifecycleStage: domain.StageSorting},
		{ID: 2, LifecycleStage: domain.StageSorting},
		{ID: 3, LifecycleStage: ""},
		{ID: 4, LifecycleStage: domain.StageDistribution},
		{ID: 5, LifecycleStage: "shredding"},
	}}
	metrics := &mockMetrics{}
	svc := NewStatsService(reader, metrics, fixedNow)

	dist, err := svc.StageDistribution(context.Background())
	if err != nil {
		t.Fatalf("stage distribution: %v", err)
	}

	want := map[string]int{
		"collection":   1,
		"sorting":      2,
		"cleaning":     0,
		"melting":      0,
		"distribution": 1,
		"shredding":    1,
	}
	if len(dist) != len(want) {
		t.Errorf("expected %d keys, got %v", len(want), dist)
	}
	for k, v := range want {
		if dist[k] != v {
			t.Errorf("%s: expected %d, got %d", k, v, dist[k])
		}
	}
	if metrics.distribution["sorting"] != 2 {
		t.Errorf("expected gauge update, got %v", metrics.distribution)
	}
}

func TestStageDistribution_Empty(t *testing.T) {
	svc := NewStatsService(&stubStatsReader{}, nil, fixedNow)

	dist, err := svc.StageDistribution(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	for _, st := range domain.Stages() {
		n, ok := dist[string(st)]
		if !ok || n != 0 {
			t.Errorf("expected %s present with 0, got %d (present=%v)", st, n, ok)
		}
	}
}

func TestRecentTransitionCount_Boundary(t *testing.T) {
	day := 24 * time.Hour
	reader := &stubStatsReader{updates: []time.Time{
		statsNow.Add(-7 * day),
		statsNow.Add(-8 * day),
		statsNow.Add(-time.Hour),
	}}
	svc := NewStatsService(reader, nil, fixedNow)

	tests := []struct {
		window int
		want   int
	}{
		{7, 2},
		{0, 2},
		{-3, 2},
		{1, 1},
		{30, 3},
	}

	for _, tt := range tests {
		got, err := svc.RecentTransitionCount(context.Background(), tt.window)
		if err != nil {
			t.Fatalf("window %d: %v", tt.window, err)
		}
		if got != tt.want {
			t.Errorf("window %d: expected %d, got %d", tt.window, tt.want, got)
		}
	}
}

func TestRecentTransitionCount_MemoryStore(t *testing.T) {
	now := statsNow.Add(-8 * 24 * time.Hour)
	store := storage.NewMemoryAdapter(func() time.Time { return now })
	lifecycle := NewLifecycleService(store)
	lot := newTestLot(t, store, "LOT-STATS")

	for _, at := range []time.Time{statsNow.Add(-8 * 24 * time.Hour), statsNow.Add(-7 * 24 * time.Hour)} {
		now = at
		if _, err := lifecycle.ApplyTransition(context.Background(), domain.TransitionRequest{
			InventoryID: lot.ID,
			Patch:       domain.LotPatch{LifecycleStage: stagePtr(domain.StageCleaning)},
			UpdatedBy:   1,
		}); err != nil {
			t.Fatal(err)
		}
	}

	svc := NewStatsService(store, nil, fixedNow)
	got, err := svc.RecentTransitionCount(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}
	if got != 1 {
		t.Errorf("expected 1 transition in window, got %d", got)
	}
}

func TestStatsService_StorageError(t *testing.T) {
	svc := NewStatsService(&stubStatsReader{err: errors.New("connection reset")}, nil, fixedNow)

	if _, err := svc.StageDistribution(context.Background()); !errors.Is(err, domain.ErrStorage) {
		t.Errorf("expected ErrStorage, got: %v", err)
	}
	if _, err := svc.RecentTransitionCount(context.Background(), 7); !errors.Is(err, domain.ErrStorage) {
		t.Errorf("expected ErrStorage, got: %v", err)
	}
	if _, err := svc.Dashboard(context.Background(), 7); !errors.Is(err, domain.ErrStorage) {
		t.Errorf("expected ErrStorage, got: %v", err)
	}
}

func TestDashboard(t *testing.T) {
	reader := &stubStatsReader{
		lots: []domain.InventoryLot{
			{ID: 1, LifecycleStage: domain.StageMelting},
			{ID: 2, LifecycleStage: domain.StageCollection},
			{ID: 3, LifecycleStage: domain.StageMelting},
		},
		updates: []time.Time{statsNow.Add(-2 * time.Hour), statsNow.Add(-10 * 24 * time.Hour)},
	}
	svc := NewStatsService(reader, nil, fixedNow)

	d, err := svc.Dashboard(context.Background(), 0)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}

	if d.TotalLots != 3 {
		t.Errorf("expected 3 lots, got %d", d.TotalLots)
	}
	if d.StageDistribution["melting"] != 2 {
		t.Errorf("expected 2 melting lots, got %d", d.StageDistribution["melting"])
	}
	if d.RecentTransitions != 1 {
		t.Errorf("expected 1 recent transition, got %d", d.RecentTransitions)
	}
	if d.WindowDays != DefaultWindowDays {
		t.Errorf("expected default window, got %d", d.WindowDays)
	}
	if d.StageProgress["distribution"] != 100 || d.StageProgress["collection"] != 20 {
		t.Errorf("unexpected progress table %v", d.StageProgress)
	}
	if !d.GeneratedAt.Equal(statsNow) {
		t.Errorf("expected generatedAt %v, got %v", statsNow, d.GeneratedAt)
	}
}

func TestStatsService_StageProgress(t *testing.T) {
	svc := NewStatsService(&stubStatsReader{}, nil, fixedNow)

	tests := map[domain.Stage]float64{
		domain.StageCollection:   20,
		domain.StageSorting:      40,
		domain.StageCleaning:     60,
		domain.StageMelting:      80,
		domain.StageDistribution: 100,
		"":                       20,
		"shredding":              0,
	}
	for stage, want := range tests {
		if got := svc.StageProgress(stage); got != want {
			t.Errorf("%q: expected %v, got %v", stage, want, got)
		}
	}
}

func TestStatsService_WithDefaultWindow(t *testing.T) {
	reader := &stubStatsReader{updates: []time.Time{
		statsNow.Add(-20 * 24 * time.Hour),
		statsNow.Add(-40 * 24 * time.Hour),
	}}
	svc := NewStatsService(reader, nil, fixedNow).WithDefaultWindow(30).WithDefaultWindow(-1)

	d, err := svc.Dashboard(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if d.WindowDays != 30 || d.RecentTransitions != 1 {
		t.Errorf("expected 1 transition in 30 days, got %d in %d", d.RecentTransitions, d.WindowDays)
	}
}

func TestRecentTransitionCount_LongWindow(t *testing.T) {
	reader := &stubStatsReader{updates: []time.Time{
		statsNow.Add(-time.Hour),
		time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC),
	}}
	svc := NewStatsService(reader, nil, fixedNow)

	for _, window := range []int{106752, 200000, 1000000} {
		got, err := svc.RecentTransitionCount(context.Background(), window)
		if err != nil {
			t.Fatalf("window %d: %v", window, err)
		}
		if !reader.lastSince.Before(statsNow) {
			t.Errorf("window %d: cutoff %v is not in the past", window, reader.lastSince)
		}
		if got != 2 {
			t.Errorf("window %d: expected 2, got %d", window, got)
		}
	}
	if !reader.lastSince.Equal(time.Unix(0, 0)) {
		t.Errorf("expected cutoff clamped to the epoch, got %v", reader.lastSince)
	}

	d, err := svc.Dashboard(context.Background(), 200000)
	if err != nil {
		t.Fatal(err)
	}
	if d.RecentTransitions != 2 || d.WindowDays != 200000 {
		t.Errorf("expected 2 transitions over 200000 days, got %d over %d", d.RecentTransitions, d.WindowDays)
	}
}
