package game

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Clock abstracts the scheduler delay so tests can run AI turns without
// real sleeps.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }

// Scheduler drives AI players. It watches turn and card events and, after
// a short think delay, submits RequestAIMove for the AI whose turn it is.
// The engine itself never sleeps; pacing lives entirely out here.
type Scheduler struct {
	log   *zap.Logger
	ctrl  *Controller
	clock Clock
	delay time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	handle int
}

// NewScheduler builds a scheduler around the controller. A nil clock
// selects the wall clock.
func NewScheduler(ctrl *Controller, delay time.Duration, clock Clock, log *zap.Logger) *Scheduler {
	if clock == nil {
		clock = RealClock()
	}
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		log:    log,
		ctrl:   ctrl,
		clock:  clock,
		delay:  delay,
		ctx:    ctx,
		cancel: cancel,
		handle: -1,
	}
}

// Start subscribes to the controller's bus.
func (s *Scheduler) Start() {
	s.handle = s.ctrl.Bus().Subscribe(s.onEvent)
}

// Stop unsubscribes and waits for in-flight think timers.
func (s *Scheduler) Stop() {
	if s.handle >= 0 {
		s.ctrl.Bus().Unsubscribe(s.handle)
		s.handle = -1
	}
	s.cancel()
	s.wg.Wait()
}

// onEvent runs on the controller's publish path and must not block: it
// only decides whether an AI step is due and hands off to a goroutine.
func (s *Scheduler) onEvent(ev Event) {
	switch ev.Type {
	case EventTurnStarted, EventCardDrawn, EventCardPlaced:
	default:
		return
	}
	state := s.ctrl.CurrentState()
	if state.Phase != PhasePlaying || state.Paused || state.InputLocked {
		return
	}
	current := state.CurrentPlayer()
	if current == nil || !current.IsAI || current.ID != ev.PlayerID {
		return
	}
	s.schedule(current.ID)
}

func (s *Scheduler) schedule(playerID string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-s.ctx.Done():
			return
		case <-s.clock.After(s.delay):
		}
		s.log.Debug("submitting ai move", zap.String("playerId", playerID))
		s.ctrl.Submit(s.ctx, RequestAIMove{CommandMeta: NewMeta(), PlayerID: playerID})
	}()
}
