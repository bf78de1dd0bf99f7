package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// CaptureMode selects where frames come from.
type CaptureMode string

const (
	ModeFile           CaptureMode = "file"
	ModeCameraDirect   CaptureMode = "camera-direct"
	ModeCameraPipeline CaptureMode = "camera-pipeline"
)

// Live reports whether the mode reads from a real camera.
func (m CaptureMode) Live() bool {
	return m == ModeCameraDirect || m == ModeCameraPipeline
}

// Algorithm selects the background subtraction variant.
type Algorithm string

const (
	AlgoKNN  Algorithm = "knn"
	AlgoMOG2 Algorithm = "mog2"
)

// maxFileSize caps config files read by Load.
const maxFileSize = 1 * 1024 * 1024

// Config is the full configuration surface of a heatmap run. It is passed by
// value into the pipeline and never mutated after the run starts.
type Config struct {
	// Video capture
	CaptureMode        CaptureMode `json:"capture_mode"`
	CaptureTimeSeconds float64     `json:"capture_time_seconds"`
	InputFilename      string      `json:"input_filename"`
	CameraDevice       int         `json:"camera_device"`
	GStreamerPipeline  string      `json:"gstreamer_pipeline"`

	// Grab frames only every x milliseconds, also when replaying a file
	FrameSamplingEnabled        bool `json:"frame_sampling_enabled"`
	FrameSamplingIntervalMillis int  `json:"frame_sampling_interval_millis"`

	DownSamplingEnabled bool `json:"down_sampling_enabled"`
	DownSamplingWidth   int  `json:"down_sampling_width"`
	DownSamplingHeight  int  `json:"down_sampling_height"`

	// Algorithm
	BgSubtractionAlgo     Algorithm `json:"bg_subtraction_algo"`
	NoiseReductionEnabled bool      `json:"noise_reduction_enabled"`
	ErosionKernelWidth    int       `json:"erosion_kernel_width"`
	ErosionKernelHeight   int       `json:"erosion_kernel_height"`
	DilationKernelWidth   int       `json:"dilation_kernel_width"`
	DilationKernelHeight  int       `json:"dilation_kernel_height"`

	// Rendering
	RenderToScreen          bool    `json:"render_to_screen"`
	RenderToVideo           bool    `json:"render_to_video"`
	RenderVideoFilename     string  `json:"render_video_filename"`
	RenderVideoFPS          float64 `json:"render_video_fps"`
	RenderVideoCodec        string  `json:"render_video_codec"`
	RenderCutoffPercent     float64 `json:"render_cutoff_percent"`
	RenderBrightenThreshold float64 `json:"render_brighten_threshold"`

	// Output images
	BackgroundFilename string `json:"background_filename"`
	HeatmapFilename    string `json:"heatmap_filename"`

	LogLevel string `json:"log_level"`
	LogFile  string `json:"log_file"`
}

// Default returns the stock configuration: replay a file for 20 seconds,
// sampling every 200ms with KNN and noise reduction, recording output.avi.
func Default() Config {
	return Config{
		CaptureMode:                 ModeFile,
		CaptureTimeSeconds:          20,
		InputFilename:               "video.mov",
		CameraDevice:                0,
		GStreamerPipeline:           "v4l2src ! video/x-raw,width=640,height=480 ! decodebin ! videoconvert ! appsink",
		FrameSamplingEnabled:        true,
		FrameSamplingIntervalMillis: 200,
		DownSamplingEnabled:         false,
		DownSamplingWidth:           640,
		DownSamplingHeight:          480,
		BgSubtractionAlgo:           AlgoKNN,
		NoiseReductionEnabled:       true,
		ErosionKernelWidth:          8,
		ErosionKernelHeight:         8,
		DilationKernelWidth:         20,
		DilationKernelHeight:        20,
		RenderToScreen:              false,
		RenderToVideo:               true,
		RenderVideoFilename:         "output.avi",
		RenderVideoFPS:              5,
		RenderVideoCodec:            "XVID",
		RenderCutoffPercent:         0,
		RenderBrightenThreshold:     0,
		BackgroundFilename:          "bg.png",
		HeatmapFilename:             "heatmap.png",
		LogLevel:                    "info",
	}
}

// Load reads a JSON config file. Fields omitted from the file keep their
// Default values, so partial configs are safe.
func Load(path string) (Config, error) {
	cfg := Default()

	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return cfg, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return cfg, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return cfg, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c Config) Validate() error {
	switch c.CaptureMode {
	case ModeFile:
		if c.InputFilename == "" {
			return fmt.Errorf("input_filename is required in %s mode", c.CaptureMode)
		}
	case ModeCameraDirect:
		if c.CameraDevice < 0 {
			return fmt.Errorf("camera_device must be >= 0, got %d", c.CameraDevice)
		}
	case ModeCameraPipeline:
		if strings.TrimSpace(c.GStreamerPipeline) == "" {
			return fmt.Errorf("gstreamer_pipeline is required in %s mode", c.CaptureMode)
		}
	default:
		return fmt.Errorf("unknown capture_mode %q (want %s, %s or %s)", c.CaptureMode, ModeFile, ModeCameraDirect, ModeCameraPipeline)
	}

	if c.CaptureTimeSeconds <= 0 {
		return fmt.Errorf("capture_time_seconds must be > 0, got %v", c.CaptureTimeSeconds)
	}
	if c.FrameSamplingEnabled && c.FrameSamplingIntervalMillis <= 0 {
		return fmt.Errorf("frame_sampling_interval_millis must be > 0, got %d", c.FrameSamplingIntervalMillis)
	}
	if c.DownSamplingEnabled && (c.DownSamplingWidth <= 0 || c.DownSamplingHeight <= 0) {
		return fmt.Errorf("down_sampling size must be positive, got %dx%d", c.DownSamplingWidth, c.DownSamplingHeight)
	}

	switch c.BgSubtractionAlgo {
	case AlgoKNN, AlgoMOG2:
	default:
		return fmt.Errorf("unknown bg_subtraction_algo %q (want %s or %s)", c.BgSubtractionAlgo, AlgoKNN, AlgoMOG2)
	}

	if c.NoiseReductionEnabled {
		if c.ErosionKernelWidth <= 0 || c.ErosionKernelHeight <= 0 {
			return fmt.Errorf("erosion kernel must be positive, got %dx%d", c.ErosionKernelWidth, c.ErosionKernelHeight)
		}
		if c.DilationKernelWidth <= 0 || c.DilationKernelHeight <= 0 {
			return fmt.Errorf("dilation kernel must be positive, got %dx%d", c.DilationKernelWidth, c.DilationKernelHeight)
		}
	}

	if c.RenderToVideo {
		if c.RenderVideoFilename == "" {
			return fmt.Errorf("render_video_filename is required when render_to_video is set")
		}
		if c.RenderVideoFPS <= 0 {
			return fmt.Errorf("render_video_fps must be > 0, got %v", c.RenderVideoFPS)
		}
		if len(c.RenderVideoCodec) != 4 {
			return fmt.Errorf("render_video_codec must be a fourcc, got %q", c.RenderVideoCodec)
		}
	}
	if c.RenderCutoffPercent < 0 || c.RenderCutoffPercent > 1 {
		return fmt.Errorf("render_cutoff_percent must be between 0 and 1, got %v", c.RenderCutoffPercent)
	}
	if c.RenderBrightenThreshold < 0 || c.RenderBrightenThreshold > 255 {
		return fmt.Errorf("render_brighten_threshold must be between 0 and 255, got %v", c.RenderBrightenThreshold)
	}
	return nil
}

// CaptureDuration is how long a run lasts, in wall time (live) or stream time (file).
func (c Config) CaptureDuration() time.Duration {
	return time.Duration(c.CaptureTimeSeconds * float64(time.Second))
}

// SamplingInterval is the minimum spacing between processed frames, or zero
// when sampling is disabled.
func (c Config) SamplingInterval() time.Duration {
	if !c.FrameSamplingEnabled {
		return 0
	}
	return time.Duration(c.FrameSamplingIntervalMillis) * time.Millisecond
}

// Source describes the configured input for logs and run records.
func (c Config) Source() string {
	switch c.CaptureMode {
	case ModeCameraDirect:
		return fmt.Sprintf("camera:%d", c.CameraDevice)
	case ModeCameraPipeline:
		return c.GStreamerPipeline
	default:
		return c.InputFilename
	}
}

// String renders the configuration as sorted key=value pairs for the startup log.
func (c Config) String() string {
	data, _ := json.Marshal(c)
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return string(data)
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return strings.Join(parts, ",")
}
