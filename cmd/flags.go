package cmd

import (
	"errors"
	"fmt"

	"github.com/andresmejia3/dwell/internal/config"
	"github.com/andresmejia3/dwell/internal/utils"
	"github.com/spf13/pflag"
)

// captureModeValue lets a config.CaptureMode be bound as a flag.
type captureModeValue struct{ p *config.CaptureMode }

func (v captureModeValue) String() string {
	if v.p == nil {
		return ""
	}
	return string(*v.p)
}
func (v captureModeValue) Set(s string) error { *v.p = config.CaptureMode(s); return nil }
func (v captureModeValue) Type() string       { return "mode" }

type algorithmValue struct{ p *config.Algorithm }

func (v algorithmValue) String() string {
	if v.p == nil {
		return ""
	}
	return string(*v.p)
}
func (v algorithmValue) Set(s string) error { *v.p = config.Algorithm(s); return nil }
func (v algorithmValue) Type() string       { return "algo" }

// registerFlags binds one flag per configuration field to c. The current
// values of c become the flag defaults.
func registerFlags(fs *pflag.FlagSet, c *config.Config) {
	// Video capture
	fs.VarP(captureModeValue{&c.CaptureMode}, "mode", "m", "Capture mode: file, camera-direct, camera-pipeline")
	fs.Float64VarP(&c.CaptureTimeSeconds, "duration", "d", c.CaptureTimeSeconds, "Seconds to capture (stream time when replaying a file)")
	fs.StringVarP(&c.InputFilename, "input", "i", c.InputFilename, "Video file to replay in file mode")
	fs.IntVar(&c.CameraDevice, "camera", c.CameraDevice, "Camera index in camera-direct mode")
	fs.StringVar(&c.GStreamerPipeline, "pipeline", c.GStreamerPipeline, "GStreamer pipeline in camera-pipeline mode")

	fs.BoolVar(&c.FrameSamplingEnabled, "sampling", c.FrameSamplingEnabled, "Only process one frame per sampling interval")
	fs.IntVarP(&c.FrameSamplingIntervalMillis, "sampling-interval", "n", c.FrameSamplingIntervalMillis, "Sampling interval in milliseconds")
	fs.BoolVar(&c.DownSamplingEnabled, "downsample", c.DownSamplingEnabled, "Resize frames before processing")
	fs.IntVar(&c.DownSamplingWidth, "downsample-width", c.DownSamplingWidth, "Width of downsampled frames")
	fs.IntVar(&c.DownSamplingHeight, "downsample-height", c.DownSamplingHeight, "Height of downsampled frames")

	// Algorithm
	fs.VarP(algorithmValue{&c.BgSubtractionAlgo}, "algo", "a", "Background subtraction: knn, mog2")
	fs.BoolVar(&c.NoiseReductionEnabled, "noise-reduction", c.NoiseReductionEnabled, "Erode then dilate the foreground mask")
	fs.IntVar(&c.ErosionKernelWidth, "erode-width", c.ErosionKernelWidth, "Erosion kernel width")
	fs.IntVar(&c.ErosionKernelHeight, "erode-height", c.ErosionKernelHeight, "Erosion kernel height")
	fs.IntVar(&c.DilationKernelWidth, "dilate-width", c.DilationKernelWidth, "Dilation kernel width")
	fs.IntVar(&c.DilationKernelHeight, "dilate-height", c.DilationKernelHeight, "Dilation kernel height")

	// Rendering
	fs.BoolVar(&c.RenderToScreen, "screen", c.RenderToScreen, "Show the frame with the heatmap in a window")
	fs.BoolVar(&c.RenderToVideo, "video", c.RenderToVideo, "Record the frame with the heatmap to a video file")
	fs.StringVarP(&c.RenderVideoFilename, "video-file", "o", c.RenderVideoFilename, "Output video file")
	fs.Float64Var(&c.RenderVideoFPS, "video-fps", c.RenderVideoFPS, "Output video frame rate")
	fs.StringVar(&c.RenderVideoCodec, "codec", c.RenderVideoCodec, "Output video fourcc")
	fs.Float64Var(&c.RenderCutoffPercent, "cutoff", c.RenderCutoffPercent, "Hide dwell below this fraction of the maximum (0-1)")
	fs.Float64Var(&c.RenderBrightenThreshold, "brighten", c.RenderBrightenThreshold, "Minimum intensity of any non-zero dwell (0-255)")

	fs.StringVar(&c.BackgroundFilename, "bg-file", c.BackgroundFilename, "Background image output")
	fs.StringVar(&c.HeatmapFilename, "heatmap-file", c.HeatmapFilename, "Heatmap image output")
	fs.StringVar(&c.LogFile, "log-file", c.LogFile, "Append logs to this file as well")
}

// resolveConfig builds the effective configuration of a scan:
// defaults < config file < flags set on the command line < positional args.
// flagged is the value registerFlags bound to fs.
func resolveConfig(fs *pflag.FlagSet, flagged config.Config, configPath string, args []string) (config.Config, error) {
	cfg := flagged
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return cfg, err
		}

		// Replay explicitly set flags on top of the file
		replay := pflag.NewFlagSet("replay", pflag.ContinueOnError)
		registerFlags(replay, &loaded)
		var errs []error
		fs.Visit(func(f *pflag.Flag) {
			if replay.Lookup(f.Name) == nil {
				return
			}
			if err := replay.Set(f.Name, f.Value.String()); err != nil {
				errs = append(errs, fmt.Errorf("--%s: %w", f.Name, err))
			}
		})
		if err := errors.Join(errs...); err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	if len(args) > 0 {
		cfg.CaptureMode = config.ModeFile
		cfg.InputFilename = args[0]
	}
	if len(args) > 1 {
		cfg.RenderToVideo = true
		cfg.RenderVideoFilename = args[1]
		bg, heat, err := utils.CompanionPaths(args[1])
		if err != nil {
			return cfg, err
		}
		cfg.BackgroundFilename = bg
		cfg.HeatmapFilename = heat
	}

	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, cfg.Validate()
}
