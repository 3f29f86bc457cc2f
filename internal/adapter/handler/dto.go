package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/scrap-lifecycle/internal/core/domain"
)

// Wire types shared by the HTTP API and the JSON-coded gRPC service.

type CreateLotRequest struct {
	ItemID    string          `json:"itemId"`
	MetalType string          `json:"metalType"`
	Grade     string          `json:"grade"`
	Quantity  decimal.Decimal `json:"quantity"`
	Unit      string          `json:"unit"`
}

// LifecyclePayload carries the fields of a transition. Omitted and null fields
// both keep their current value on the lot: annotations can be set or
// overwritten but never cleared through a transition.
type LifecyclePayload struct {
	LifecycleStage  *string `json:"lifecycleStage,omitempty"`
	Status          *string `json:"status,omitempty"`
	Barcode         *string `json:"barcode,omitempty"`
	QRCode          *string `json:"qrCode,omitempty"`
	BatchNumber     *string `json:"batchNumber,omitempty"`
	InspectionNotes *string `json:"inspectionNotes,omitempty"`
}

func (p LifecyclePayload) patch() domain.LotPatch {
	var out domain.LotPatch
	if p.LifecycleStage != nil {
		st := domain.Stage(*p.LifecycleStage)
		out.LifecycleStage = &st
	}
	if p.Status != nil {
		st := domain.Status(*p.Status)
		out.Status = &st
	}
	out.Barcode = p.Barcode
	out.QRCode = p.QRCode
	out.BatchNumber = p.BatchNumber
	out.InspectionNotes = p.InspectionNotes
	return out
}

type LotResponse struct {
	ID              int64           `json:"id"`
	ItemID          string          `json:"itemId"`
	MetalType       string          `json:"metalType"`
	Grade           string          `json:"grade"`
	Quantity        decimal.Decimal `json:"quantity"`
	Unit            string          `json:"unit"`
	LifecycleStage  string          `json:"lifecycleStage"`
	Status          string          `json:"status"`
	Barcode         *string         `json:"barcode"`
	QRCode          *string         `json:"qrCode"`
	BatchNumber     *string         `json:"batchNumber"`
	InspectionNotes *string         `json:"inspectionNotes"`
	StageProgress   float64         `json:"stageProgress"`
	Version         int             `json:"version"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

func toLotResponse(lot *domain.InventoryLot) LotResponse {
	return LotResponse{
		ID:              lot.ID,
		ItemID:          lot.ItemID,
		MetalType:       lot.MetalType,
		Grade:           lot.Grade,
		Quantity:        lot.Quantity,
		Unit:            lot.Unit,
		LifecycleStage:  string(lot.LifecycleStage),
		Status:          string(lot.Status),
		Barcode:         lot.Barcode,
		QRCode:          lot.QRCode,
		BatchNumber:     lot.BatchNumber,
		InspectionNotes: lot.InspectionNotes,
		StageProgress:   domain.StageProgress(lot.LifecycleStage),
		Version:         lot.Version,
		CreatedAt:       lot.CreatedAt,
		UpdatedAt:       lot.UpdatedAt,
	}
}

type LifecycleUpdateResponse struct {
	ID              int64     `json:"id"`
	InventoryID     int64     `json:"inventoryId"`
	PreviousStage   *string   `json:"previousStage"`
	NewStage        string    `json:"newStage"`
	Status          *string   `json:"status"`
	Barcode         *string   `json:"barcode"`
	QRCode          *string   `json:"qrCode"`
	BatchNumber     *string   `json:"batchNumber"`
	InspectionNotes *string   `json:"inspectionNotes"`
	UpdatedBy       int64     `json:"updatedBy"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func toUpdateResponses(entries []domain.LifecycleUpdate) []LifecycleUpdateResponse {
	out := make([]LifecycleUpdateResponse, 0, len(entries))
	for _, e := range entries {
		r := LifecycleUpdateResponse{
			ID:              e.ID,
			InventoryID:     e.InventoryID,
			NewStage:        string(e.NewStage),
			Barcode:         e.Barcode,
			QRCode:          e.QRCode,
			BatchNumber:     e.BatchNumber,
			InspectionNotes: e.InspectionNotes,
			UpdatedBy:       e.UpdatedBy,
			UpdatedAt:       e.UpdatedAt,
		}
		if e.PreviousStage != nil {
			s := string(*e.PreviousStage)
			r.PreviousStage = &s
		}
		if e.Status != nil {
			s := string(*e.Status)
			r.Status = &s
		}
		out = append(out, r)
	}
	return out
}

type ErrorResponse struct {
	Error string `json:"error"`
}
