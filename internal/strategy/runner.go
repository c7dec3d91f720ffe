package strategy

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/execution"
	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/signal"
)

// Runner is the single consumer that feeds bars and fills through the engine in order.
type Runner struct {
	engine *Engine
	broker execution.Broker
	exec   *execution.Executor
	log    zerolog.Logger
}

// NewRunner wires an engine to the broker it observes and the executor it submits through.
func NewRunner(engine *Engine, broker execution.Broker, exec *execution.Executor, log zerolog.Logger) *Runner {
	return &Runner{engine: engine, broker: broker, exec: exec, log: log.With().Str("component", "runner").Logger()}
}

// Run processes bars until the channel closes or ctx is cancelled. Cancellation stops
// decisions only; open positions are left to the executor.
func (r *Runner) Run(ctx context.Context, bars <-chan signal.Bar) error {
	fills := r.broker.Fills()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fill, ok := <-fills:
			if !ok {
				fills = nil
				continue
			}
			r.handleFill(ctx, fill)
		case bar, ok := <-bars:
			if !ok {
				r.drainFills(ctx)
				return nil
			}
			r.handleBar(ctx, bar)
		}
	}
}

func (r *Runner) handleBar(ctx context.Context, bar signal.Bar) {
	r.broker.Mark(bar)
	r.drainFills(ctx)
	intents, err := r.engine.OnBar(bar, r.broker.Position())
	if err != nil {
		r.log.Warn().Err(err).Time("ts", bar.Ts).Msg("bar skipped")
		return
	}
	r.submit(ctx, intents)
}

func (r *Runner) handleFill(ctx context.Context, fill execution.Fill) {
	r.submit(ctx, r.engine.OnFill(fill, r.broker.Position()))
}

func (r *Runner) drainFills(ctx context.Context) {
	fills := r.broker.Fills()
	if fills == nil {
		return
	}
	for {
		select {
		case fill, ok := <-fills:
			if !ok {
				return
			}
			r.handleFill(ctx, fill)
		default:
			return
		}
	}
}

// submit hands intents to the executor. Rejections are reported back to the engine as
// fills and never retried.
func (r *Runner) submit(ctx context.Context, intents []signal.Intent) {
	for _, intent := range intents {
		if err := r.exec.Submit(ctx, intent); err != nil {
			r.engine.OnFill(execution.Fill{
				OrderID: intent.ID,
				Symbol:  intent.Symbol,
				State:   execution.Rejected,
				Reason:  err.Error(),
				Ts:      intent.Ts,
			}, r.broker.Position())
		}
	}
}
