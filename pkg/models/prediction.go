package models

import "time"

// PredictionLogEntry is one served prediction, optionally paired with the
// ground-truth actual once it arrives. Actual may stay nil forever.
type PredictionLogEntry struct {
	Timestamp  time.Time         `json:"timestamp"`
	Prediction float64           `json:"prediction"`
	Actual     *float64          `json:"actual"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// HasActual reports whether ground truth arrived for this entry.
func (e *PredictionLogEntry) HasActual() bool {
	return e.Actual != nil
}

// PerformanceMetrics holds error statistics over a window of logged
// predictions. Entries without an actual are excluded from the error metrics
// but still counted in TotalInWindow.
type PerformanceMetrics struct {
	MAE           float64 `json:"mae"`
	RMSE          float64 `json:"rmse"`
	MaxError      float64 `json:"max_error"`
	SampleCount   int     `json:"sample_size"`
	TotalInWindow int     `json:"window_total"`
}

// HasData reports whether any entry in the window carried ground truth.
func (m PerformanceMetrics) HasData() bool {
	return m.SampleCount > 0
}
