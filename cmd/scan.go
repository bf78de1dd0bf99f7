package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/andresmejia3/dwell/internal/capture"
	"github.com/andresmejia3/dwell/internal/chart"
	"github.com/andresmejia3/dwell/internal/config"
	"github.com/andresmejia3/dwell/internal/pipeline"
	"github.com/andresmejia3/dwell/internal/sink"
	"github.com/andresmejia3/dwell/internal/types"
	"github.com/andresmejia3/dwell/internal/utils"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

// historyGridSize is the resolution of the dwell grid kept with a run record.
const historyGridSize = 32

// Options holds the scan settings that are not part of the heatmap configuration
type Options struct {
	ConfigPath string
	ChartPath  string
	NoProgress bool
}

var (
	scanOpts Options
	scanCfg  = config.Default()
)

var scanCmd = &cobra.Command{
	Use:   "scan [input [output-video]]",
	Short: "Build an occupancy heatmap from a camera or a video file",
	Long: `Runs a timed heatmap scan and saves the background and heatmap images.

A positional input replays that file. A positional output video turns recording
on and names the images after it: <dir>/<base>_bg.png and <dir>/<base>_heatmap.png.`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := resolveConfig(cmd.Flags(), scanCfg, scanOpts.ConfigPath, args)
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		return runScan(cmd.Context(), cfg, scanOpts)
	},
}

func init() {
	registerFlags(scanCmd.Flags(), &scanCfg)
	scanCmd.Flags().StringVarP(&scanOpts.ConfigPath, "config", "c", "", "JSON configuration file (flags set on the command line win)")
	scanCmd.Flags().StringVar(&scanOpts.ChartPath, "chart", "", "Also save a dwell chart with axes and a value scale to this PNG")
	scanCmd.Flags().BoolVar(&scanOpts.NoProgress, "no-progress", false, "Hide the progress bar")
	rootCmd.AddCommand(scanCmd)
}

// runScan orchestrates one heatmap scan: logging, the pipeline, output images and run history.
func runScan(ctx context.Context, cfg config.Config, opts Options) error {
	// 1. Logging with the configured level and log file
	logger, err := setupLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	if err := validateInput(cfg); err != nil {
		return err
	}

	sourceID, err := utils.GenerateSourceID(cfg)
	if err != nil {
		return fmt.Errorf("failed to identify source: %w", err)
	}
	fmt.Fprintf(os.Stderr, "📼 Processing Source: %s (%s)\n", cfg.Source(), sourceID[:12])

	// 2. Progress over the replay cutoff, or a spinner for a live stream
	var bar *progressbar.ProgressBar
	onOpen := func(info capture.Info) {
		if opts.NoProgress {
			return
		}
		total := info.CutoffFrames
		if info.Live {
			total = -1
		}
		bar = progressbar.NewOptions(total,
			progressbar.OptionSetDescription("🔥 Dwell Scanning"),
			progressbar.OptionSetWriter(os.Stderr), // Write bar to Stderr
			progressbar.OptionShowCount(),
		)
	}
	onFrame := func(s pipeline.Stats) {
		if bar != nil {
			bar.Set(s.FramesRead)
		}
	}

	p := pipeline.New(cfg,
		pipeline.WithLogger(logger),
		pipeline.OnOpen(onOpen),
		pipeline.OnFrame(onFrame),
	)

	// 3. Run. The window needs this goroutine (locked to the main thread),
	// anything else runs behind the worker boundary.
	var res *pipeline.Result
	if cfg.RenderToScreen {
		res, err = p.Run()
	} else {
		res, err = awaitScan(ctx, p)
	}
	if bar != nil {
		bar.Finish()
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		return scanError(err)
	}
	defer res.Close()

	fmt.Fprintf(os.Stderr, "🏁 Scan Complete. Processed %d frames out of %d read (%d skipped).\n",
		res.Stats.FramesProcessed, res.Stats.FramesRead, res.Stats.FramesSkipped)

	// 4. Output images
	logger.Info("saving images", "background", cfg.BackgroundFilename, "heatmap", cfg.HeatmapFilename)
	if err := sink.SaveImage(cfg.BackgroundFilename, res.Background); err != nil {
		return err
	}
	composite, err := res.Composite()
	if err != nil {
		return err
	}
	defer composite.Close()
	if err := sink.SaveImage(cfg.HeatmapFilename, composite); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "🖼️  Saved %s and %s\n", cfg.BackgroundFilename, cfg.HeatmapFilename)

	if opts.ChartPath != "" {
		title := fmt.Sprintf("Dwell: %s", filepath.Base(cfg.Source()))
		if err := chart.Save(res.Grid, title, opts.ChartPath); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "📈 Saved chart %s\n", opts.ChartPath)
	}

	// 5. Run history
	if DB != nil {
		record := newRunRecord(cfg, sourceID, res)
		// Background: the run already finished, store it even after Ctrl+C
		id, err := DB.InsertRun(context.Background(), record)
		if err != nil {
			return fmt.Errorf("failed to save run history: %w", err)
		}
		fmt.Fprintf(os.Stderr, "💾 Recorded run %s\n", id)
	}
	return nil
}

// awaitScan runs the pipeline in the background. A scan cannot be cancelled:
// an interrupt only produces a notice and the scan still finishes and saves.
func awaitScan(ctx context.Context, p *pipeline.Pipeline) (*pipeline.Result, error) {
	task := p.Start()
	res, err := task.Wait(ctx)
	if err == nil || !errors.Is(err, ctx.Err()) {
		return res, err
	}
	fmt.Fprintf(os.Stderr, "\n⏳ Interrupted. Finishing the current scan window before exiting (Ctrl+C again to abort)...\n")
	return task.Wait(context.Background())
}

// scanError turns pipeline failures into messages for the error box.
func scanError(err error) error {
	switch {
	case errors.Is(err, capture.ErrDeviceUnavailable):
		return fmt.Errorf("unable to open video capture: %w", err)
	case errors.Is(err, capture.ErrUnknownFrameRate):
		return fmt.Errorf("the video reports no frame rate, so the scan length cannot be computed: %w", err)
	case errors.Is(err, pipeline.ErrNoFrames):
		return fmt.Errorf("no frames could be read from the source: %w", err)
	}
	return err
}

// validateInput checks a replayed file before anything is opened.
func validateInput(cfg config.Config) error {
	if cfg.CaptureMode != config.ModeFile {
		return nil
	}
	info, err := os.Stat(cfg.InputFilename)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("input file does not exist: %w", err)
		}
		return fmt.Errorf("unable to access input file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("input path %s is a directory, expected a video file", cfg.InputFilename)
	}
	return nil
}

// newRunRecord summarizes a finished scan for the history table.
func newRunRecord(cfg config.Config, sourceID string, res *pipeline.Result) types.RunRecord {
	grid, rows, cols := res.Grid.Coarse(historyGridSize, historyGridSize)
	r := types.RunRecord{
		SourceID:        sourceID,
		Source:          cfg.Source(),
		Mode:            string(cfg.CaptureMode),
		StartedAt:       res.Stats.Started,
		FinishedAt:      res.Stats.Finished,
		FramesRead:      res.Stats.FramesRead,
		FramesProcessed: res.Stats.FramesProcessed,
		FramesSkipped:   res.Stats.FramesSkipped,
		Width:           res.Stats.FrameSize.X,
		Height:          res.Stats.FrameSize.Y,
		MaxDwell:        res.Stats.MaxDwell,
		BackgroundPath:  cfg.BackgroundFilename,
		HeatmapPath:     cfg.HeatmapFilename,
		GridRows:        rows,
		GridCols:        cols,
		Grid:            grid,
	}
	if cfg.RenderToVideo {
		r.VideoPath = cfg.RenderVideoFilename
	}
	slog.Debug("run record", "source_id", sourceID, "grid", fmt.Sprintf("%dx%d", cols, rows))
	return r
}
