package service

import (
	"context"
	"time"

	"github.com/rl1809/scrap-lifecycle/internal/core/domain"
	"github.com/rl1809/scrap-lifecycle/internal/port"
)

const DefaultWindowDays = 7

// oldestCutoff bounds very long windows so the cutoff stays storable by
// every SQL dialect.
var oldestCutoff = time.Unix(0, 0).UTC()

// StatsReader is the read side the aggregator needs.
type StatsReader interface {
	ListLots(ctx context.Context) ([]domain.InventoryLot, error)
	CountSince(ctx context.Context, since time.Time) (int, error)
}

// StatsService derives dashboard figures on demand; nothing is cached.
type StatsService struct {
	reader  StatsReader
	metrics port.MetricsRecorder
	now     func() time.Time
	window  int
}

func NewStatsService(reader StatsReader, metrics port.MetricsRecorder, now func() time.Time) *StatsService {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if now == nil {
		now = time.Now
	}
	return &StatsService{reader: reader, metrics: metrics, now: now, window: DefaultWindowDays}
}

// WithDefaultWindow replaces the window used when a caller passes
// windowDays <= 0. Non-positive days are ignored.
func (s *StatsService) WithDefaultWindow(days int) *StatsService {
	if days > 0 {
		s.window = days
	}
	return s
}

// StageDistribution counts lots per stage. Every canonical stage is present;
// a lot without a stage counts as collection.
func (s *StatsService) StageDistribution(ctx context.Context) (map[string]int, error) {
	lots, err := s.reader.ListLots(ctx)
	if err != nil {
		return nil, storageError("stage distribution", err)
	}

	counts := make(map[string]int, len(domain.Stages()))
	for _, st := range domain.Stages() {
		counts[string(st)] = 0
	}
	for _, lot := range lots {
		counts[string(lot.LifecycleStage.Normalize())]++
	}

	s.metrics.SetStageDistribution(counts)
	return counts, nil
}

// RecentTransitionCount counts audit entries from the last windowDays days,
// boundary included. windowDays <= 0 means the default window.
func (s *StatsService) RecentTransitionCount(ctx context.Context, windowDays int) (int, error) {
	if windowDays <= 0 {
		windowDays = s.window
	}
	since := s.now().UTC().AddDate(0, 0, -windowDays)
	if since.Before(oldestCutoff) {
		since = oldestCutoff
	}

	n, err := s.reader.CountSince(ctx, since)
	if err != nil {
		return 0, storageError("recent transitions", err)
	}
	return n, nil
}

func (s *StatsService) StageProgress(stage domain.Stage) float64 {
	return domain.StageProgress(stage)
}

type Dashboard struct {
	TotalLots         int                `json:"totalLots"`
	StageDistribution map[string]int     `json:"stageDistribution"`
	StageProgress     map[string]float64 `json:"stageProgress"`
	RecentTransitions int                `json:"recentTransitions"`
	WindowDays        int                `json:"windowDays"`
	GeneratedAt       time.Time          `json:"generatedAt"`
}

func (s *StatsService) Dashboard(ctx context.Context, windowDays int) (*Dashboard, error) {
	if windowDays <= 0 {
		windowDays = s.window
	}

	dist, err := s.StageDistribution(ctx)
	if err != nil {
		return nil, err
	}
	recent, err := s.RecentTransitionCount(ctx, windowDays)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, n := range dist {
		total += n
	}
	progress := make(map[string]float64, len(domain.Stages()))
	for _, st := range domain.Stages() {
		progress[string(st)] = domain.StageProgress(st)
	}

	return &Dashboard{
		TotalLots:         total,
		StageDistribution: dist,
		StageProgress:     progress,
		RecentTransitions: recent,
		WindowDays:        windowDays,
		GeneratedAt:       s.now().UTC(),
	}, nil
}
