// Package bout drives a battle forward on a timer until it ends.
package bout

import (
	"context"
	"log"
	"sync"
	"time"
)

// Advancer resolves one round and reports whether the battle is over.
type Advancer interface {
	AdvanceRound(battleID string) (completed bool, err error)
}

type AdvancerFunc func(battleID string) (bool, error)

func (f AdvancerFunc) AdvanceRound(battleID string) (bool, error) { return f(battleID) }

type Config struct {
	Interval  time.Duration
	MaxRounds int
}

// StopReason says why a bout stopped.
type StopReason string

const (
	ReasonRunning   StopReason = ""
	ReasonCompleted StopReason = "completed"
	ReasonMaxRounds StopReason = "max_rounds"
	ReasonStopped   StopReason = "stopped"
	ReasonError     StopReason = "error"
)

// Bout is an actor that advances one battle per tick.
type Bout struct {
	BattleID string

	cfg      Config
	advancer Advancer
	onExit   func(*Bout)

	mu     sync.Mutex
	rounds int
	reason StopReason
	err    error

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// Start launches the bout goroutine. onExit, if set, runs once after the
// loop returns.
func Start(ctx context.Context, battleID string, cfg Config, advancer Advancer, onExit func(*Bout)) *Bout {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	b := &Bout{
		BattleID: battleID,
		cfg:      cfg,
		advancer: advancer,
		onExit:   onExit,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go b.run(ctx)
	log.Printf("[Bout %s] Started (interval=%s, maxRounds=%d)", battleID, cfg.Interval, cfg.MaxRounds)
	return b
}

func (b *Bout) run(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()
	defer func() {
		close(b.done)
		if b.onExit != nil {
			b.onExit(b)
		}
	}()

	for {
		select {
		case <-ticker.C:
			if reason, err := b.tick(); reason != ReasonRunning {
				b.finish(reason, err)
				return
			}
		case <-b.stop:
			b.finish(ReasonStopped, nil)
			return
		case <-ctx.Done():
			b.finish(ReasonStopped, ctx.Err())
			return
		}
	}
}

func (b *Bout) tick() (StopReason, error) {
	completed, err := b.advancer.AdvanceRound(b.BattleID)
	if err != nil {
		return ReasonError, err
	}
	b.mu.Lock()
	b.rounds++
	rounds := b.rounds
	b.mu.Unlock()

	if completed {
		return ReasonCompleted, nil
	}
	if b.cfg.MaxRounds > 0 && rounds >= b.cfg.MaxRounds {
		return ReasonMaxRounds, nil
	}
	return ReasonRunning, nil
}

func (b *Bout) finish(reason StopReason, err error) {
	b.mu.Lock()
	b.reason = reason
	b.err = err
	rounds := b.rounds
	b.mu.Unlock()
	if err != nil {
		log.Printf("[Bout %s] Stopped after %d rounds: %s: %v", b.BattleID, rounds, reason, err)
		return
	}
	log.Printf("[Bout %s] Stopped after %d rounds: %s", b.BattleID, rounds, reason)
}

// Stop asks the bout to exit and waits for it.
func (b *Bout) Stop() {
	b.stopOnce.Do(func() {
		close(b.stop)
	})
	<-b.done
}

func (b *Bout) Done() <-chan struct{} { return b.done }

// Status returns rounds advanced by this bout and the stop reason, which is
// empty while running.
func (b *Bout) Status() (int, StopReason, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rounds, b.reason, b.err
}
