package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/andresmejia3/dwell/internal/chart"
	"github.com/andresmejia3/dwell/internal/heatmap"
	"github.com/andresmejia3/dwell/internal/types"
	"github.com/spf13/cobra"
)

var (
	runsSource  string
	runsLimit   int
	runsSources bool
	showChart   string
)

var runsCmd = &cobra.Command{
	Use:         "runs",
	Short:       "List recorded heatmap scans",
	Annotations: map[string]string{needsDB: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if runsSources {
			return listSources(cmd)
		}
		return listRuns(cmd)
	},
}

var showCmd = &cobra.Command{
	Use:         "show <run-id>",
	Short:       "Show one recorded scan and its coarse dwell grid",
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{needsDB: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		run, err := DB.GetRun(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printRun(run)

		if showChart != "" {
			grid, err := heatmap.NewGrid(run.Grid, run.GridRows, run.GridCols)
			if err != nil {
				return fmt.Errorf("stored grid is unusable: %w", err)
			}
			if err := chart.Save(grid, fmt.Sprintf("Dwell: run %s", shortID(run.ID)), showChart); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "📈 Saved chart %s\n", showChart)
		}
		return nil
	},
}

func init() {
	runsCmd.Flags().StringVar(&runsSource, "source", "", "Only list runs of this source ID")
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "l", 20, "Maximum number of runs to list (0 for all)")
	runsCmd.Flags().BoolVar(&runsSources, "sources", false, "List scanned sources instead of runs")
	showCmd.Flags().StringVar(&showChart, "chart", "", "Save the stored dwell grid as a chart PNG")
	runsCmd.AddCommand(showCmd)
	rootCmd.AddCommand(runsCmd)
}

func listRuns(cmd *cobra.Command) error {
	runs, err := DB.ListRuns(cmd.Context(), runsSource, runsLimit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if len(runs) == 0 {
		fmt.Println("No runs found in database.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tMODE\tSOURCE\tFRAMES\tDURATION\tMAX DWELL")
	fmt.Fprintln(w, "--\t-------\t----\t------\t------\t--------\t---------")

	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%s\t%.0f\n",
			shortID(r.ID), r.StartedAt.Local().Format("2006-01-02 15:04"), r.Mode, r.Source,
			r.FramesProcessed, r.FramesRead, r.Duration().Round(100*time.Millisecond), r.MaxDwell)
	}
	return w.Flush()
}

func listSources(cmd *cobra.Command) error {
	sources, err := DB.ListSources(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list sources: %w", err)
	}

	if len(sources) == 0 {
		fmt.Println("No sources found in database.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "SOURCE ID\tDESCRIPTION\tRUNS\tLAST SCANNED")
	fmt.Fprintln(w, "---------\t-----------\t----\t------------")
	for _, s := range sources {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", shortID(s.ID), s.Description, s.Runs, s.LastScannedAt.Local().Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func printRun(r types.RunRecord) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Run:\t%s\n", r.ID)
	fmt.Fprintf(w, "Source:\t%s (%s)\n", r.Source, shortID(r.SourceID))
	fmt.Fprintf(w, "Mode:\t%s\n", r.Mode)
	fmt.Fprintf(w, "Started:\t%s\n", r.StartedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Duration:\t%s\n", r.Duration())
	fmt.Fprintf(w, "Frames:\t%d processed, %d read, %d skipped\n", r.FramesProcessed, r.FramesRead, r.FramesSkipped)
	fmt.Fprintf(w, "Frame size:\t%dx%d\n", r.Width, r.Height)
	fmt.Fprintf(w, "Max dwell:\t%.0f\n", r.MaxDwell)
	fmt.Fprintf(w, "Background:\t%s\n", r.BackgroundPath)
	fmt.Fprintf(w, "Heatmap:\t%s\n", r.HeatmapPath)
	if r.VideoPath != "" {
		fmt.Fprintf(w, "Video:\t%s\n", r.VideoPath)
	}
	fmt.Fprintf(w, "Grid:\t%dx%d\n", r.GridCols, r.GridRows)
	w.Flush()
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
