package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Stage string

const (
	StageCollection   Stage = "collection"
	StageSorting      Stage = "sorting"
	StageCleaning     Stage = "cleaning"
	StageMelting      Stage = "melting"
	StageDistribution Stage = "distribution"
)

// stageOrder is the physical processing pipeline, first to last.
var stageOrder = []Stage{
	StageCollection,
	StageSorting,
	StageCleaning,
	StageMelting,
	StageDistribution,
}

// Stages returns the canonical stages in pipeline order.
func Stages() []Stage {
	out := make([]Stage, len(stageOrder))
	copy(out, stageOrder)
	return out
}

func (s Stage) Valid() bool {
	return s.Index() >= 0
}

// Index is the position of s in the pipeline, or -1 for a non-canonical value.
func (s Stage) Index() int {
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// Normalize maps a missing stage to collection. Anything else is returned as is.
func (s Stage) Normalize() Stage {
	if s == "" {
		return StageCollection
	}
	return s
}

// StageProgress is the percentage of the pipeline completed once a lot reaches
// stage. Non-canonical stages report 0.
func StageProgress(stage Stage) float64 {
	idx := stage.Normalize().Index()
	if idx < 0 {
		return 0
	}
	return float64((idx+1)*100) / float64(len(stageOrder))
}

type Status string

const (
	StatusAvailable Status = "available"
	StatusReserved  Status = "reserved"
	StatusSold      Status = "sold"
	StatusRecycled  Status = "recycled"
	StatusDisposed  Status = "disposed"
)

var statuses = []Status{
	StatusAvailable,
	StatusReserved,
	StatusSold,
	StatusRecycled,
	StatusDisposed,
}

func (s Status) Valid() bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}

// InventoryLot is the current state of one batch of scrap material.
type InventoryLot struct {
	ID              int64
	ItemID          string
	MetalType       string
	Grade           string
	Quantity        decimal.Decimal
	Unit            string
	LifecycleStage  Stage
	Status          Status
	Barcode         *string
	QRCode          *string
	BatchNumber     *string
	InspectionNotes *string
	Version         int // optimistic locking
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewLot carries the intake attributes of a lot. Stage and status are not
// caller-controlled at intake.
type NewLot struct {
	ItemID    string
	MetalType string
	Grade     string
	Quantity  decimal.Decimal
	Unit      string
}

// LotPatch is a partial update. Nil fields leave the lot untouched, so a
// patch can set an annotation but not clear it.
type LotPatch struct {
	LifecycleStage  *Stage
	Status          *Status
	Barcode         *string
	QRCode          *string
	BatchNumber     *string
	InspectionNotes *string
}

// Apply merges p into lot.
func (p LotPatch) Apply(lot *InventoryLot) {
	if p.LifecycleStage != nil {
		lot.LifecycleStage = *p.LifecycleStage
	}
	if p.Status != nil {
		lot.Status = *p.Status
	}
	if p.Barcode != nil {
		lot.Barcode = copyString(p.Barcode)
	}
	if p.QRCode != nil {
		lot.QRCode = copyString(p.QRCode)
	}
	if p.BatchNumber != nil {
		lot.BatchNumber = copyString(p.BatchNumber)
	}
	if p.InspectionNotes != nil {
		lot.InspectionNotes = copyString(p.InspectionNotes)
	}
}

// Clone returns a deep copy of the lot.
func (l InventoryLot) Clone() InventoryLot {
	l.Barcode = copyString(l.Barcode)
	l.QRCode = copyString(l.QRCode)
	l.BatchNumber = copyString(l.BatchNumber)
	l.InspectionNotes = copyString(l.InspectionNotes)
	return l
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
