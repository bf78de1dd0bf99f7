package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/andresmejia3/dwell/internal/types"
	"github.com/google/go-cmp/cmp"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestStoreIntegration runs a full integration test against a real Postgres container.
// It requires Docker to be running.
func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	// Explicitly check for Docker availability and fail hard if missing
	// We wrap this in a function to recover from panics inside testcontainers (e.g. socket not found)
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("testcontainers panicked: %v", r)
			}
		}()
		_, err = testcontainers.NewDockerClientWithOpts(ctx)
		return
	}()
	if err != nil {
		t.Fatalf("Docker not available, cannot run integration test: %v", err)
	}

	pgContainer, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("dwell_test"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
		testcontainers.WithLogger(noopLogger{}),
	)
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("Failed to terminate container: %v", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	// Initialize Store (runs migrations)
	s, err := New(ctx, connStr)
	if err != nil {
		t.Fatalf("Failed to connect to store: %v", err)
	}
	defer s.Close(ctx)

	// --- Test Scenarios ---

	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	first := types.RunRecord{
		SourceID:        "src_lobby",
		Source:          "/videos/lobby.mov",
		Mode:            "file",
		StartedAt:       start,
		FinishedAt:      start.Add(20 * time.Second),
		FramesRead:      600,
		FramesProcessed: 100,
		FramesSkipped:   500,
		Width:           640,
		Height:          480,
		MaxDwell:        25500,
		BackgroundPath:  "lobby_bg.png",
		HeatmapPath:     "lobby_heatmap.png",
		VideoPath:       "lobby.avi",
		GridRows:        2,
		GridCols:        2,
		Grid:            []float64{255, 0, 0, 63.75},
	}
	firstID, err := s.InsertRun(ctx, first)
	if err != nil {
		t.Fatalf("InsertRun failed: %v", err)
	}
	if firstID == "" {
		t.Fatal("Expected a generated run ID")
	}

	second := first
	second.ID = "run-2"
	second.StartedAt = start.Add(time.Hour)
	second.FinishedAt = second.StartedAt.Add(20 * time.Second)
	second.Source = "/videos/lobby-renamed.mov"
	if _, err := s.InsertRun(ctx, second); err != nil {
		t.Fatalf("InsertRun (second) failed: %v", err)
	}

	other := first
	other.ID = "run-3"
	other.SourceID = "src_camera0"
	other.Source = "camera:0"
	other.Mode = "camera-direct"
	other.Grid, other.GridRows, other.GridCols = nil, 0, 0
	if _, err := s.InsertRun(ctx, other); err != nil {
		t.Fatalf("InsertRun (other) failed: %v", err)
	}

	// A malformed grid never reaches the database
	bad := first
	bad.ID = "run-bad"
	bad.Grid = []float64{1, 2, 3}
	if _, err := s.InsertRun(ctx, bad); err == nil {
		t.Error("Expected grid shape error")
	}

	// Round trip with the grid
	got, err := s.GetRun(ctx, firstID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	want := first
	want.ID = firstID
	want.Source = second.Source // source description follows the latest scan
	if diff := cmp.Diff(want, got, cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) })); diff != "" {
		t.Errorf("GetRun mismatch (-want +got):\n%s", diff)
	}

	if _, err := s.GetRun(ctx, "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Expected ErrRunNotFound, got %v", err)
	}

	// Listing is newest first and can be filtered
	runs, err := s.ListRuns(ctx, "", 0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("Expected 3 runs, got %d", len(runs))
	}
	if runs[0].ID != "run-2" {
		t.Errorf("Expected the latest run first, got %s", runs[0].ID)
	}
	if runs[0].Grid != nil {
		t.Error("ListRuns should not load grids")
	}

	runs, err = s.ListRuns(ctx, "src_lobby", 1)
	if err != nil {
		t.Fatalf("ListRuns (filtered) failed: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "run-2" {
		t.Errorf("Expected only run-2, got %+v", runs)
	}

	sources, err := s.ListSources(ctx)
	if err != nil {
		t.Fatalf("ListSources failed: %v", err)
	}
	counts := map[string]int{}
	for _, src := range sources {
		counts[src.ID] = src.Runs
	}
	if counts["src_lobby"] != 2 || counts["src_camera0"] != 1 {
		t.Errorf("Unexpected run counts: %v", counts)
	}

	// Reset drops everything; a new Store recreates the schema
	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	s2, err := New(ctx, connStr)
	if err != nil {
		t.Fatalf("Reconnect failed: %v", err)
	}
	defer s2.Close(ctx)
	runs, err = s2.ListRuns(ctx, "", 0)
	if err != nil {
		t.Fatalf("ListRuns after reset failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("Expected no runs after reset, got %d", len(runs))
	}
}

type noopLogger struct{}

func (n noopLogger) Printf(format string, v ...interface{}) {}
