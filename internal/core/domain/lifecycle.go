package domain

import "time"

// TransitionRequest asks for one lot's stage, status or annotations to change.
type TransitionRequest struct {
	InventoryID int64
	Patch       LotPatch
	UpdatedBy   int64
	RequestID   string // optional, deduplicates retried deliveries
}

// LifecycleUpdate is an immutable audit entry for one transition. Pointer
// fields hold what the transition submitted; nil means the field was not part
// of the request.
type LifecycleUpdate struct {
	ID              int64
	InventoryID     int64
	PreviousStage   *Stage
	NewStage        Stage
	Status          *Status
	Barcode         *string
	QRCode          *string
	BatchNumber     *string
	InspectionNotes *string
	UpdatedBy       int64
	UpdatedAt       time.Time
}

// NewLifecycleUpdate builds the audit entry for applying patch to a lot whose
// stage was previous. An absent stage in the patch means the stage stays put.
func NewLifecycleUpdate(inventoryID int64, previous Stage, patch LotPatch, updatedBy int64) LifecycleUpdate {
	newStage := previous
	if patch.LifecycleStage != nil {
		newStage = *patch.LifecycleStage
	}

	var prev *Stage
	if previous != "" {
		p := previous
		prev = &p
	}

	var status *Status
	if patch.Status != nil {
		s := *patch.Status
		status = &s
	}

	return LifecycleUpdate{
		InventoryID:     inventoryID,
		PreviousStage:   prev,
		NewStage:        newStage,
		Status:          status,
		Barcode:         copyString(patch.Barcode),
		QRCode:          copyString(patch.QRCode),
		BatchNumber:     copyString(patch.BatchNumber),
		InspectionNotes: copyString(patch.InspectionNotes),
		UpdatedBy:       updatedBy,
	}
}
