package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rl1809/scrap-lifecycle/internal/core/domain"
	"github.com/rl1809/scrap-lifecycle/internal/port"
)

const (
	DefaultMaxRetries    = 3
	idempotencyKeyPrefix = "lifecycle:req:"
)

type LifecycleService struct {
	store      port.Store
	cache      port.CacheRepository
	metrics    port.MetricsRecorder
	log        *slog.Logger
	strict     bool
	maxRetries int
}

type Option func(*LifecycleService)

// WithCache enables request-id deduplication.
func WithCache(cache port.CacheRepository) Option {
	return func(s *LifecycleService) { s.cache = cache }
}

func WithMetrics(m port.MetricsRecorder) Option {
	return func(s *LifecycleService) {
		if m != nil {
			s.metrics = m
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(s *LifecycleService) {
		if log != nil {
			s.log = log
		}
	}
}

// WithStrictValidation rejects stages and statuses outside the canonical sets.
func WithStrictValidation(strict bool) Option {
	return func(s *LifecycleService) { s.strict = strict }
}

// WithMaxRetries bounds how often a transition is re-run after losing a
// version race on the same lot.
func WithMaxRetries(n int) Option {
	return func(s *LifecycleService) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

func NewLifecycleService(store port.Store, opts ...Option) *LifecycleService {
	s := &LifecycleService{
		store:      store,
		metrics:    nopMetrics{},
		log:        slog.New(slog.DiscardHandler),
		maxRetries: DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ApplyTransition updates one lot and appends the matching audit entry in a
// single transaction. Stage order is not enforced.
func (s *LifecycleService) ApplyTransition(ctx context.Context, req domain.TransitionRequest) (*domain.InventoryLot, error) {
	start := time.Now()
	lot, err := s.applyTransition(ctx, req)
	s.metrics.ObserveTransition(stageLabel(req.Patch), resultLabel(err), time.Since(start))

	if err != nil {
		s.log.Warn("lifecycle transition failed",
			"inventory_id", req.InventoryID,
			"updated_by", req.UpdatedBy,
			"request_id", req.RequestID,
			"err", err,
		)
		return nil, err
	}

	s.log.Info("lifecycle transition applied",
		"inventory_id", lot.ID,
		"stage", lot.LifecycleStage,
		"status", lot.Status,
		"updated_by", req.UpdatedBy,
	)
	return lot, nil
}

func (s *LifecycleService) applyTransition(ctx context.Context, req domain.TransitionRequest) (*domain.InventoryLot, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	if req.RequestID == "" || s.cache == nil {
		return s.transition(ctx, req)
	}

	key := idempotencyKeyPrefix + req.RequestID
	ok, err := s.cache.SetIdempotency(ctx, key)
	if err != nil {
		return nil, &domain.StorageError{Op: "idempotency check", Err: err}
	}
	if !ok {
		return nil, domain.ErrDuplicateRequest
	}

	lot, err := s.transition(ctx, req)
	if err != nil {
		// A failed transition left nothing behind, so the caller may retry with the same id.
		if relErr := s.cache.ReleaseIdempotency(context.WithoutCancel(ctx), key); relErr != nil {
			s.log.Error("release idempotency key", "request_id", req.RequestID, "err", relErr)
		}
		return nil, err
	}
	return lot, nil
}

func (s *LifecycleService) transition(ctx context.Context, req domain.TransitionRequest) (*domain.InventoryLot, error) {
	var updated *domain.InventoryLot

	for attempt := 0; ; attempt++ {
		err := s.store.WithinTx(ctx, func(ctx context.Context, lots port.LotRepository, audit port.AuditLog) error {
			current, err := lots.GetLot(ctx, req.InventoryID)
			if err != nil {
				return err
			}
			previous := current.LifecycleStage

			lot, err := lots.UpdateLot(ctx, current.ID, current.Version, req.Patch)
			if err != nil {
				return err
			}

			entry := domain.NewLifecycleUpdate(current.ID, previous, req.Patch, req.UpdatedBy)
			if _, err := audit.Append(ctx, entry); err != nil {
				return fmt.Errorf("append audit entry: %w", err)
			}

			updated = lot
			return nil
		})
		if err == nil {
			return updated, nil
		}

		if errors.Is(err, port.ErrOptimisticLock) && attempt < s.maxRetries {
			s.log.Debug("version conflict, retrying transition",
				"inventory_id", req.InventoryID,
				"attempt", attempt+1,
			)
			continue
		}
		return nil, storageError("apply transition", err)
	}
}

func (s *LifecycleService) validate(req domain.TransitionRequest) error {
	if req.UpdatedBy <= 0 {
		return domain.InvalidArgument("updatedBy must identify the acting user")
	}

	p := req.Patch
	if p.LifecycleStage != nil && strings.TrimSpace(string(*p.LifecycleStage)) == "" {
		return domain.InvalidArgument("lifecycleStage must not be empty")
	}
	if !s.strict {
		return nil
	}
	if p.LifecycleStage != nil && !p.LifecycleStage.Valid() {
		return domain.InvalidArgument("unknown lifecycle stage %q", *p.LifecycleStage)
	}
	if p.Status != nil && !p.Status.Valid() {
		return domain.InvalidArgument("unknown status %q", *p.Status)
	}
	return nil
}

func (s *LifecycleService) GetLot(ctx context.Context, id int64) (*domain.InventoryLot, error) {
	lot, err := s.store.GetLot(ctx, id)
	if err != nil {
		return nil, storageError("get lot", err)
	}
	return lot, nil
}

func (s *LifecycleService) ListLots(ctx context.Context) ([]domain.InventoryLot, error) {
	lots, err := s.store.ListLots(ctx)
	if err != nil {
		return nil, storageError("list lots", err)
	}
	return lots, nil
}

// CreateLot registers a lot at intake: stage collection, status available.
func (s *LifecycleService) CreateLot(ctx context.Context, in domain.NewLot) (*domain.InventoryLot, error) {
	if strings.TrimSpace(in.ItemID) == "" {
		return nil, domain.InvalidArgument("itemId is required")
	}
	if in.Quantity.IsNegative() {
		return nil, domain.InvalidArgument("quantity must not be negative")
	}

	lot, err := s.store.CreateLot(ctx, in)
	if err != nil {
		return nil, storageError("create lot", err)
	}
	s.log.Info("inventory lot created", "inventory_id", lot.ID, "item_id", lot.ItemID)
	return lot, nil
}

// ListHistory returns the audit trail, most recent first. A nil inventoryID
// lists every lot.
func (s *LifecycleService) ListHistory(ctx context.Context, inventoryID *int64) ([]domain.LifecycleUpdate, error) {
	var (
		entries []domain.LifecycleUpdate
		err     error
	)
	if inventoryID == nil {
		entries, err = s.store.ListAll(ctx)
	} else {
		entries, err = s.store.ListByInventory(ctx, *inventoryID)
	}
	if err != nil {
		return nil, storageError("list history", err)
	}
	return entries, nil
}

// storageError passes domain errors through and wraps everything else.
func storageError(op string, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrDuplicateRequest),
		errors.Is(err, domain.ErrStorage):
		return err
	case errors.Is(err, port.ErrOptimisticLock):
		return &domain.StorageError{Op: op, Err: fmt.Errorf("%w: %w", domain.ErrConflict, err)}
	}
	return &domain.StorageError{Op: op, Err: err}
}

func stageLabel(p domain.LotPatch) string {
	if p.LifecycleStage == nil {
		return "unchanged"
	}
	if !p.LifecycleStage.Valid() {
		return "other"
	}
	return string(*p.LifecycleStage)
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidArgument):
		return "invalid"
	case errors.Is(err, domain.ErrDuplicateRequest):
		return "duplicate"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	}
	return "error"
}

type nopMetrics struct{}

func (nopMetrics) ObserveTransition(string, string, time.Duration) {}
func (nopMetrics) SetStageDistribution(map[string]int)             {}
