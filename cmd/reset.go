package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/andresmejia3/dwell/internal/config"
	"github.com/andresmejia3/dwell/internal/utils"
	"github.com/spf13/cobra"
)

var (
	resetDB     bool
	resetFiles  bool
	resetYes    bool
	resetConfig string
)

var resetCmd = &cobra.Command{
	Use:   "reset [output-video...]",
	Short: "Reset system state (Run history, output images and videos)",
	Long: `Clears stored data. By default, it resets everything. Use flags to clear specific components.

Output files are the configured background, heatmap and video files. Each
positional output video also removes its <base>_bg.png and <base>_heatmap.png.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// If no flags are set, default to clearing EVERYTHING
		if !resetDB && !resetFiles {
			resetDB = true
			resetFiles = true
		}

		reader := bufio.NewReader(os.Stdin)

		if resetDB {
			if DB == nil {
				fmt.Fprintln(os.Stderr, "⚠️  No database configured (--db or POSTGRES_HOST); skipping run history.")
			} else if resetYes || confirm(reader, "⚠️  Are you sure you want to DROP all run history tables?") {
				fmt.Println("🗑️  Clearing Database...")
				if err := DB.Reset(cmd.Context()); err != nil {
					return fmt.Errorf("failed to reset database: %w", err)
				}
			}
		}

		if resetFiles {
			files, err := outputFiles(resetConfig, args)
			if err != nil {
				return err
			}
			if resetYes || confirm(reader, fmt.Sprintf("⚠️  Are you sure you want to delete %s?", strings.Join(files, ", "))) {
				fmt.Println("🗑️  Clearing Output Files (Images, Videos)...")
				for _, f := range files {
					removeFile(f)
				}
			}
		}

		fmt.Println("✨ System Reset Complete.")
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetDB, "history", false, "Clear the run history database")
	resetCmd.Flags().BoolVar(&resetFiles, "files", false, "Clear generated files (images, videos)")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Do not ask for confirmation")
	resetCmd.Flags().StringVarP(&resetConfig, "config", "c", "", "JSON configuration naming the output files")
	rootCmd.AddCommand(resetCmd)
}

// outputFiles lists the artifacts a scan with this configuration writes.
func outputFiles(configPath string, videos []string) ([]string, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return nil, err
		}
	}

	files := []string{cfg.BackgroundFilename, cfg.HeatmapFilename, cfg.RenderVideoFilename}
	for _, v := range videos {
		bg, heat, err := utils.CompanionPaths(v)
		if err != nil {
			return nil, err
		}
		files = append(files, v, bg, heat)
	}
	return files, nil
}

func confirm(r *bufio.Reader, prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	res, err := r.ReadString('\n')
	if err != nil && err != io.EOF {
		return false
	}
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

func removeFile(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to remove %s: %v\n", path, err)
	}
}
