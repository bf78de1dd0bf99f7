package types

import "time"

// RunRecord is one persisted heatmap scan.
type RunRecord struct {
	ID       string
	SourceID string // stable id of the input, see utils.GenerateSourceID
	Source   string // file path, camera index or gstreamer pipeline
	Mode     string

	StartedAt  time.Time
	FinishedAt time.Time

	FramesRead      int
	FramesProcessed int
	FramesSkipped   int
	Width           int
	Height          int
	MaxDwell        float64

	BackgroundPath string
	HeatmapPath    string
	VideoPath      string

	// Coarse dwell grid, row-major
	GridRows int
	GridCols int
	Grid     []float64
}

// Duration is the wall time the scan took.
func (r RunRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// SourceRecord is an input that has been scanned at least once.
type SourceRecord struct {
	ID            string
	Description   string
	LastScannedAt time.Time
	Runs          int
}
