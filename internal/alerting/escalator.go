package alerting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"availwatch/internal/detector"
)

// Escalator runs alert plans in the background.
// Each delivery of a plan starts at its own offset; failures are logged and skipped.
type Escalator struct {
	deliverer   Deliverer
	interrupter Interrupter
	opts        Options
	content     Content
	clock       clockwork.Clock
	logger      zerolog.Logger

	wg sync.WaitGroup
}

// NewEscalator wires the delivery channels. interrupter may be nil.
func NewEscalator(deliverer Deliverer, interrupter Interrupter, opts Options, content Content, clock clockwork.Clock, logger zerolog.Logger) *Escalator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Escalator{
		deliverer:   deliverer,
		interrupter: interrupter,
		opts:        opts,
		content:     content,
		clock:       clock,
		logger:      logger.With().Str("component", "escalator").Logger(),
	}
}

// Escalate schedules the plan for ep and returns immediately.
// The plan is detached from ctx cancellation; only its values are kept.
func (e *Escalator) Escalate(ctx context.Context, ep detector.Episode) {
	steps := BuildPlan(ep, e.opts, e.content)
	e.logger.Info().
		Str("episode", ep.ID).
		Str("status", ep.TriggeringStatus.StorageKey()).
		Int("count", ep.Count).
		Bool("urgent", ep.Urgent).
		Int("steps", len(steps)).
		Msg("escalating alert episode")
	e.start(context.WithoutCancel(ctx), ep.ID, steps)
}

// Test schedules a TEST titled plan after delay. Cancelling ctx stops pending deliveries.
func (e *Escalator) Test(ctx context.Context, count int, urgent bool, delay time.Duration) string {
	id := uuid.NewString()
	steps := BuildTestPlan(id, count, urgent, delay, e.opts, e.content)
	e.logger.Info().Str("plan", id).Int("count", count).Bool("urgent", urgent).Dur("delay", delay).Msg("scheduling test alerts")
	e.start(ctx, id, steps)
	return id
}

// Wait blocks until every scheduled delivery has been attempted.
func (e *Escalator) Wait() {
	e.wg.Wait()
}

func (e *Escalator) start(ctx context.Context, id string, steps []Step) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.run(ctx, id, steps)
	}()
}

// run waits for each step's offset and sends it on its own goroutine,
// so a slow channel never pushes back later steps.
func (e *Escalator) run(ctx context.Context, id string, steps []Step) {
	logger := e.logger.With().Str("plan", id).Logger()
	begin := e.clock.Now()

	var (
		sends     sync.WaitGroup
		delivered atomic.Int32
		failed    atomic.Int32
	)
	defer sends.Wait()

	for _, step := range steps {
		step := step
		if wait := begin.Add(step.Offset).Sub(e.clock.Now()); wait > 0 {
			select {
			case <-ctx.Done():
				logger.Warn().Err(ctx.Err()).Int32("delivered", delivered.Load()).Msg("plan cancelled")
				return
			case <-e.clock.After(wait):
			}
		}

		if step.Kind == StepInterrupt {
			e.handOff(ctx, logger, step.Alert)
			continue
		}

		sends.Add(1)
		go func() {
			defer sends.Done()
			if err := e.deliver(ctx, step.Alert); err != nil {
				failed.Add(1)
				logger.Warn().Err(err).Str("key", step.Alert.Key).Str("kind", step.Kind.String()).Msg("alert delivery failed; skipping")
				return
			}
			delivered.Add(1)
		}()
	}

	sends.Wait()
	logger.Info().Int32("delivered", delivered.Load()).Int32("failed", failed.Load()).Msg("alert plan finished")
}

// handOff runs the interrupt alongside the remaining steps.
func (e *Escalator) handOff(ctx context.Context, logger zerolog.Logger, alert Alert) {
	if e.interrupter == nil {
		logger.Debug().Msg("no interrupt channel; urgent notifications only")
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.Error().Interface("panic", r).Msg("interrupt hand-off panicked; urgent notifications only")
			}
		}()
		if err := e.interrupter.Interrupt(ctx, alert.Title); err != nil {
			if errors.Is(err, ErrNoInterrupter) {
				logger.Debug().Msg("no interrupt channel; urgent notifications only")
				return
			}
			logger.Warn().Err(err).Msg("interrupt hand-off failed; urgent notifications only")
			return
		}
		logger.Info().Msg("interrupt hand-off sent")
	}()
}

func (e *Escalator) deliver(ctx context.Context, alert Alert) (err error) {
	if e.deliverer == nil {
		return errors.New("no delivery channel configured")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("delivery panicked: %v", r)
		}
	}()
	return e.deliverer.Deliver(ctx, alert)
}
