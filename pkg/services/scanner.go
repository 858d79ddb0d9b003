package services

import (
	"context"
	"image"
	"time"

	"docscan/internal/ocr"
	"docscan/pkg/models"
)

// Scanner defines the pipeline entry point the scan session layer consumes
type Scanner interface {
	// PerformOCR runs quality gating, preprocessing, the backend chain and
	// field extraction over one image
	PerformOCR(ctx context.Context, img *image.NRGBA, opts ocr.Options) (*models.RecognitionResult, error)
}

// ScanStatus is the lifecycle state of a scan session
type ScanStatus string

const (
	ScanIdle       ScanStatus = "idle"
	ScanProcessing ScanStatus = "processing"
	ScanDone       ScanStatus = "done"
	ScanError      ScanStatus = "error"
)

// ScanState is a point-in-time snapshot of a scan session
type ScanState struct {
	Status   ScanStatus                `json:"status"`
	Progress int                       `json:"progress"`               // 0-100, monotone within one run
	Result   *models.RecognitionResult `json:"result,omitempty"`       // set when Status is done
	Err      error                     `json:"-"`                      // set when Status is error
	Error    string                    `json:"error,omitempty"`        // Err as text
	Message  string                    `json:"user_message,omitempty"` // Err for end users
	HasImage bool                      `json:"has_image"`              // a retry is possible
	Updated  time.Time                 `json:"updated_at"`
}
