package system

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Runner executes systems in phase order each tick. Systems sharing a phase
// run in registration order.
type Runner struct {
	phases   [phaseCount][]System
	budget   time.Duration // 0 disables overrun reporting
	overruns int
	log      *zap.Logger
}

// NewRunner returns a runner that warns when a full tick takes longer than
// budget.
func NewRunner(budget time.Duration, log *zap.Logger) *Runner {
	return &Runner{budget: budget, log: log}
}

// Register adds s to the bucket of its phase. Registering a system with an
// unknown phase is a programming error.
func (r *Runner) Register(s System) {
	p := s.Phase()
	if !p.Valid() {
		panic(fmt.Sprintf("system %T: unknown phase %d", s, int(p)))
	}
	r.phases[p] = append(r.phases[p], s)
}

// Tick runs every phase once.
func (r *Runner) Tick(dt time.Duration) {
	start := time.Now()
	var slowest System
	var slowestTook time.Duration
	for p := range r.phases {
		for _, s := range r.phases[p] {
			if took := r.run(s, dt); took > slowestTook {
				slowest, slowestTook = s, took
			}
		}
	}
	if r.budget <= 0 {
		return
	}
	if elapsed := time.Since(start); elapsed > r.budget {
		r.overruns++
		r.log.Warn("tick over budget",
			zap.Duration("elapsed", elapsed),
			zap.Duration("budget", r.budget),
			zap.String("slowest", fmt.Sprintf("%T", slowest)),
			zap.Duration("slowest_took", slowestTook),
		)
	}
}

// TickPhase runs only the systems of one phase. The game loop uses it to
// poll input between full ticks so handler latency is not bound to the tick rate.
func (r *Runner) TickPhase(phase Phase, dt time.Duration) {
	if !phase.Valid() {
		return
	}
	for _, s := range r.phases[phase] {
		r.run(s, dt)
	}
}

// Overruns is how many full ticks exceeded the budget.
func (r *Runner) Overruns() int { return r.overruns }

// run updates one system. A panic is logged and swallowed so one broken
// system cannot stop the loop; the rest of the tick still runs.
func (r *Runner) run(s System, dt time.Duration) (took time.Duration) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("system panic recovered",
				zap.String("system", fmt.Sprintf("%T", s)),
				zap.Stringer("phase", s.Phase()),
				zap.Any("panic", rec),
			)
		}
		took = time.Since(start)
	}()
	s.Update(dt)
	return
}
