package services

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/dpup/prefab/errors"
	"github.com/dpup/prefab/logging"
	"google.golang.org/grpc/codes"

	"github.com/dpup/turnbyturn/internal/cache"
	"github.com/dpup/turnbyturn/internal/config"
	"github.com/dpup/turnbyturn/internal/lib/heading"
	"github.com/dpup/turnbyturn/internal/navigation"
)

// ErrNotRunning is returned when input is submitted to a stopped service.
var ErrNotRunning = errors.NewC("guidance service is not running", codes.Unavailable)

// Sink receives the output of the guidance loop. Calls come from a single goroutine.
type Sink interface {
	Update(ctx context.Context, update navigation.Update) error
	Rotation(ctx context.Context, rotation heading.Rotation) error
}

// Input is one item for the guidance loop. Exactly one of Fix or Heading is set.
type Input struct {
	Fix     *navigation.Fix
	Heading *navigation.HeadingSample
}

// GuidanceService feeds fixes and heading samples to a Navigator from a single
// goroutine, so inputs are processed strictly in submission order.
type GuidanceService struct {
	navigator *navigation.Navigator
	sink      Sink
	cache     *cache.Cache
	config    config.Replay

	mu       sync.Mutex
	inputs   chan Input
	stopChan chan struct{}
	// quit closes as soon as the loop exits; done once the service is fully stopped.
	quit     chan struct{}
	done     chan struct{}
	running  bool
	draining bool
}

// NewGuidanceService creates a stopped service. c may be nil when no maneuver cache is
// in use.
func NewGuidanceService(nav *navigation.Navigator, sink Sink, c *cache.Cache, cfg config.Replay) *GuidanceService {
	return &GuidanceService{
		navigator: nav,
		sink:      sink,
		cache:     c,
		config:    cfg,
	}
}

// Start launches the guidance loop. It also sweeps the cache when one is configured.
func (g *GuidanceService) Start(ctx context.Context) error {
	ctx = logging.EnsureLogger(ctx)

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		return nil // Already running
	}

	g.inputs = make(chan Input, g.config.QueueSize)
	g.stopChan = make(chan struct{})
	g.quit = make(chan struct{})
	g.done = make(chan struct{})
	g.running = true
	g.draining = false

	loopCtx, cancel := context.WithCancel(ctx)
	if g.cache != nil && g.config.CacheCleanupInterval > 0 {
		g.cache.StartPeriodicCleanup(loopCtx, g.config.CacheCleanupInterval)
	}

	logging.Infow(ctx, "Guidance: starting", "queue_size", g.config.QueueSize)
	go g.loop(loopCtx, cancel, g.inputs, g.stopChan, g.quit, g.done)
	return nil
}

// Submit queues in for processing, blocking while the queue is full.
func (g *GuidanceService) Submit(ctx context.Context, in Input) error {
	g.mu.Lock()
	if !g.running || g.draining {
		g.mu.Unlock()
		return ErrNotRunning
	}
	// Hold the lock while sending so Drain cannot close the channel underneath us.
	defer g.mu.Unlock()

	select {
	case g.inputs <- in:
		return nil
	case <-g.quit:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubmitFix queues a GPS fix.
func (g *GuidanceService) SubmitFix(ctx context.Context, fix navigation.Fix) error {
	return g.Submit(ctx, Input{Fix: &fix})
}

// SubmitHeading queues a heading sample.
func (g *GuidanceService) SubmitHeading(ctx context.Context, sample navigation.HeadingSample) error {
	return g.Submit(ctx, Input{Heading: &sample})
}

// Drain stops accepting input and waits until everything already queued has been
// processed.
func (g *GuidanceService) Drain() {
	g.mu.Lock()
	if !g.running || g.draining {
		done := g.done
		g.mu.Unlock()
		if done != nil {
			<-done
		}
		return
	}
	g.draining = true
	close(g.inputs)
	done := g.done
	g.mu.Unlock()

	<-done
}

// Stop ends the loop without processing queued input.
func (g *GuidanceService) Stop() {
	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return
	}
	select {
	case <-g.stopChan:
	default:
		close(g.stopChan)
	}
	done := g.done
	g.mu.Unlock()

	<-done
}

// IsRunning returns whether the guidance loop is active.
func (g *GuidanceService) IsRunning() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

func (g *GuidanceService) loop(ctx context.Context, cancel context.CancelFunc, inputs <-chan Input, stop <-chan struct{}, quit, done chan struct{}) {
	defer func() {
		cancel()
		close(quit)
		g.mu.Lock()
		g.running = false
		g.mu.Unlock()
		close(done)
	}()

	for {
		select {
		case <-ctx.Done():
			logging.Infow(ctx, "Guidance: stopping due to context cancellation")
			return
		case <-stop:
			logging.Infow(ctx, "Guidance: stopping due to stop signal")
			return
		case in, ok := <-inputs:
			if !ok {
				logging.Infow(ctx, "Guidance: input drained")
				return
			}
			g.handle(ctx, in)
		}
	}
}

// handle processes one input. A panic is logged and the loop moves on to the next
// input.
func (g *GuidanceService) handle(ctx context.Context, in Input) {
	defer func() {
		if r := recover(); r != nil {
			err, _ := errors.ParseStack(debug.Stack())
			skipFrames := 3
			numFrames := 5
			logging.Errorw(ctx, "Guidance: recovered from panic",
				"error", r, "error.stack_trace", err.MinimalStack(skipFrames, numFrames))
		}
	}()

	switch {
	case in.Fix != nil:
		update := g.navigator.ProcessFix(ctx, *in.Fix)
		if err := g.sink.Update(ctx, update); err != nil {
			logging.Errorw(ctx, "Guidance: sink rejected update", "error", err, "status", string(update.Status))
		}
	case in.Heading != nil:
		rotation, ok := g.navigator.ProcessHeading(ctx, *in.Heading)
		if !ok {
			return
		}
		if err := g.sink.Rotation(ctx, rotation); err != nil {
			logging.Errorw(ctx, "Guidance: sink rejected rotation", "error", err)
		}
	}
}
