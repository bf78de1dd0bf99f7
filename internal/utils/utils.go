package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/andresmejia3/dwell/internal/config"
)

// --- 1. Error Reporting ---

// ShowError prints the formatted error box without exiting.
func ShowError(context string, err error) {
	fmt.Fprintf(os.Stderr, "\n---------------------------------------------------------\n")
	fmt.Fprintf(os.Stderr, "🚨 DWELL ERROR: %s\n", context)
	if err != nil {
		fmt.Fprintf(os.Stderr, "DETAILS: %v\n", err)
	}
	fmt.Fprintf(os.Stderr, "---------------------------------------------------------\n")
}

// Die is the unified exit strategy for dwell.
// It prints a formatted error box and exits with status 1.
func Die(context string, err error) {
	ShowError(context, err)
	os.Exit(1)
}

// --- 2. Output Naming ---

// CompanionPaths derives the background and heatmap image paths that sit
// next to a recorded video: <dir>/<base>_bg.png and <dir>/<base>_heatmap.png.
func CompanionPaths(videoPath string) (bg, heatmap string, err error) {
	abs, err := filepath.Abs(videoPath)
	if err != nil {
		return "", "", err
	}
	dir, name := filepath.Split(abs)
	base := strings.TrimSuffix(name, filepath.Ext(name))
	return filepath.Join(dir, base+"_bg.png"), filepath.Join(dir, base+"_heatmap.png"), nil
}

// --- 3. Source Identity ---

// GenerateVideoID creates a deterministic hash for the video file
// based on its path, size, and modification time.
func GenerateVideoID(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	input := fmt.Sprintf("%s-%d-%d", path, info.Size(), info.ModTime().UnixNano())
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:]), nil
}

// GenerateSourceID identifies the input of a run so its history can be
// grouped. Files hash like GenerateVideoID on their absolute path; cameras
// hash their mode and device description.
func GenerateSourceID(cfg config.Config) (string, error) {
	if cfg.CaptureMode == config.ModeFile {
		abs, err := filepath.Abs(cfg.InputFilename)
		if err != nil {
			return "", err
		}
		return GenerateVideoID(abs)
	}
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s-%s", cfg.CaptureMode, cfg.Source())))
	return hex.EncodeToString(hash[:]), nil
}
