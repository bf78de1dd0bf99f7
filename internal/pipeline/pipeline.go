// Package pipeline runs one timed heatmap scan: it reads frames, extracts
// foreground, accumulates dwell and finally renders the heatmap and the
// background estimate.
package pipeline

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/andresmejia3/dwell/internal/capture"
	"github.com/andresmejia3/dwell/internal/config"
	"github.com/andresmejia3/dwell/internal/foreground"
	"github.com/andresmejia3/dwell/internal/heatmap"
	"github.com/andresmejia3/dwell/internal/render"
	"github.com/andresmejia3/dwell/internal/sampler"
	"github.com/andresmejia3/dwell/internal/sink"
	"github.com/andresmejia3/dwell/internal/timeutil"
	"github.com/andresmejia3/dwell/internal/worker"
)

// ErrNoFrames is returned when the stream ended before a single frame was
// processed, which leaves no heatmap shape to render.
var ErrNoFrames = errors.New("pipeline: no frames were processed")

// WindowTitle is the title of the on-screen preview.
const WindowTitle = "Frame with heatmap"

// State is the lifecycle position of a run.
type State int32

const (
	Opening State = iota
	Capturing
	Expired
	Finalizing
	Done
)

func (s State) String() string {
	switch s {
	case Opening:
		return "opening"
	case Capturing:
		return "capturing"
	case Expired:
		return "expired"
	case Finalizing:
		return "finalizing"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// SubtractorFunc builds the background model of a run.
type SubtractorFunc func(algo config.Algorithm) (foreground.Subtractor, error)

// Stats counts what a run did.
type Stats struct {
	FramesRead      int // every successful read, skipped frames included
	FramesProcessed int
	FramesSkipped   int
	FrameSize       image.Point // size of the processed (possibly downsampled) frames
	MaxDwell        float64
	Started         time.Time
	Finished        time.Time
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithOpenFunc replaces the gocv device opener.
func WithOpenFunc(open capture.OpenFunc) Option {
	return func(p *Pipeline) { p.open = open }
}

// WithSubtractor replaces the background model factory.
func WithSubtractor(fn SubtractorFunc) Option {
	return func(p *Pipeline) { p.newSubtractor = fn }
}

func WithClock(c timeutil.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// WithSink adds an output that receives every rendered frame next to the
// configured screen and video outputs. It is closed when the run ends.
func WithSink(name string, s sink.Sink) Option {
	return func(p *Pipeline) { p.extra = append(p.extra, sink.Named{Name: name, Sink: s}) }
}

// OnState is called on every lifecycle transition.
func OnState(fn func(State)) Option {
	return func(p *Pipeline) { p.onState = fn }
}

// OnOpen is called once the stream is open, before the first read.
func OnOpen(fn func(capture.Info)) Option {
	return func(p *Pipeline) { p.onOpen = fn }
}

// OnFrame is called after every processed frame with the running counters.
func OnFrame(fn func(Stats)) Option {
	return func(p *Pipeline) { p.onFrame = fn }
}

// Pipeline holds the configuration and collaborators of a scan. Every run
// allocates its own capture, model, grid and outputs. Runs on one Pipeline
// must not overlap.
type Pipeline struct {
	cfg           config.Config
	open          capture.OpenFunc
	newSubtractor SubtractorFunc
	clock         timeutil.Clock
	log           *slog.Logger
	extra         []sink.Named

	onState func(State)
	onOpen  func(capture.Info)
	onFrame func(Stats)

	state atomic.Int32
}

// New returns a Pipeline for cfg. cfg is copied and never changed.
func New(cfg config.Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:           cfg,
		open:          capture.OpenDevice,
		newSubtractor: foreground.NewSubtractor,
		clock:         timeutil.RealClock{},
		log:           slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Config returns the configuration the pipeline runs with.
func (p *Pipeline) Config() config.Config { return p.cfg }

// State returns the lifecycle position of the current or last run. It is
// safe to call from any goroutine.
func (p *Pipeline) State() State { return State(p.state.Load()) }

func (p *Pipeline) setState(s State) {
	p.state.Store(int32(s))
	p.log.Debug("pipeline state", "state", s)
	if p.onState != nil {
		p.onState(s)
	}
}

// Run executes a scan on the calling goroutine and blocks until it expires.
// It is the only mode that may render to the screen, so call it from the
// main thread when render_to_screen is set.
func (p *Pipeline) Run() (*Result, error) {
	return p.run(true)
}

// Start executes a scan on a background goroutine. The screen output is
// skipped; video recording and image results are unaffected. The run cannot
// be cancelled and always continues until its capture window expires.
func (p *Pipeline) Start() *worker.Task[*Result] {
	return worker.Go(func() (*Result, error) {
		return p.run(false)
	})
}

func (p *Pipeline) run(mainThread bool) (*Result, error) {
	p.setState(Opening)
	p.log.Info("starting heatmap generator", "config", p.cfg.String())

	if err := p.cfg.Validate(); err != nil {
		p.setState(Done)
		return nil, err
	}

	src, err := capture.Open(p.cfg, p.open, p.clock, p.log)
	if err != nil {
		p.setState(Done)
		return nil, err
	}
	sub, err := p.newSubtractor(p.cfg.BgSubtractionAlgo)
	if err != nil {
		src.Close()
		p.setState(Done)
		return nil, err
	}

	r := &scan{
		cfg:    p.cfg,
		src:    src,
		ext:    foreground.New(sub, foreground.OptionsFromConfig(p.cfg)),
		sched:  sampler.New(p.cfg.SamplingInterval(), p.clock),
		scaler: render.Scaler{Scaling: heatmap.Scaling{Cutoff: p.cfg.RenderCutoffPercent, Brighten: p.cfg.RenderBrightenThreshold}},
		out:    sink.NewMulti(p.log, p.sinks(mainThread)...),
		log:    p.log,
	}
	defer r.close()

	if p.onOpen != nil {
		p.onOpen(src.Info())
	}

	p.setState(Capturing)
	r.stats.Started = p.clock.Now()
	loopErr := r.loop(p.onFrame)

	p.setState(Expired)
	p.log.Info("done collecting data",
		"frames_read", src.FramesRead(),
		"frames_processed", r.stats.FramesProcessed,
		"frames_skipped", r.stats.FramesSkipped)

	p.setState(Finalizing)
	res, err := r.finalize(p.clock.Now())
	p.setState(Done)

	if loopErr != nil {
		if res != nil {
			res.Close()
		}
		return nil, loopErr
	}
	return res, err
}

func (p *Pipeline) sinks(mainThread bool) []sink.Named {
	var out []sink.Named
	if p.cfg.RenderToScreen {
		if mainThread {
			out = append(out, sink.Named{Name: "screen", Sink: sink.NewScreen(WindowTitle)})
		} else {
			p.log.Warn("screen rendering needs the main thread; skipping it for a background run")
		}
	}
	if p.cfg.RenderToVideo {
		p.log.Info("writing video output", "file", p.cfg.RenderVideoFilename, "codec", p.cfg.RenderVideoCodec)
		out = append(out, sink.Named{
			Name: "video",
			Sink: sink.NewVideo(p.cfg.RenderVideoFilename, p.cfg.RenderVideoCodec, p.cfg.RenderVideoFPS),
		})
	}
	return append(out, p.extra...)
}
