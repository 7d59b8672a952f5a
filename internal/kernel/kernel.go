// Package kernel implements the generic typed state-machine runtime: a
// per-entity serial mailbox, a wake-up scheduler, and external-effect
// dispatch. It is parameterized over an environment, a state, and an action
// type so that the same runtime drives the chat lifecycle in
// internal/lifecycle today and could drive an unrelated entity kind
// tomorrow.
//
// The concurrency shape follows a single-goroutine-owns-mutable-state
// pattern combined with a mutex-guarded entity registry: each entity gets
// its own goroutine and mailbox, the kernel itself only guards the map of
// entities.
package kernel

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Effect is a deferred side-effect a transition requests. It runs on a
// background goroutine and must yield an Action when done; the kernel posts
// that action back to the entity's own mailbox.
type Effect[A any] func(ctx context.Context) A

// Scheduled is a wake-up request: action At fires, unless superseded by a
// state change that cancels it first.
type Scheduled[A any] struct {
	At     time.Time
	Action A
}

// Result is what a transition function returns: the entity's new state, any
// effects to spawn, and whether the entity should be garbage collected from
// the kernel once this transition completes.
type Result[S any, A any] struct {
	State   S
	Effects []Effect[A]
	Delete  bool
}

// TransitionFunc computes the next state and effects for one (state, action)
// pair. An error return means the pair is invalid: the kernel logs it and
// drops the action, leaving state unchanged — errors here never propagate
// to other entities.
type TransitionFunc[E any, S any, A comparable] func(env E, id string, state S, action A) (Result[S, A], error)

// ScheduleFunc computes the full set of wake-ups that should be outstanding
// while an entity is in the given state. The kernel diffs this against what
// is currently scheduled on every transition. env is passed through so a
// schedule policy can derive deadlines from a mockable clock instead of
// reaching for time.Now() directly, the same way TransitionFunc receives env.
type ScheduleFunc[E any, S any, A comparable] func(env E, state S) []Scheduled[A]

// Kernel owns a set of independently-progressing entities, each running its
// own transition function serially against its own mailbox.
type Kernel[E any, S any, A comparable] struct {
	env        E
	transition TransitionFunc[E, S, A]
	schedule   ScheduleFunc[E, S, A]
	newState   func() S
	logger     *slog.Logger

	mu       sync.Mutex
	entities map[string]*entityActor[S, A]

	effects errgroup.Group
}

// entityActor is the per-entity goroutine state: a mailbox, the current
// state, and the set of live timers keyed by the scheduled action value
// (Scheduled actions are simple comparable structs like ForceReset{} or
// Timeout{}, so this key is stable and cheap). Each entry also remembers the
// deadline it was armed for, so a re-schedule of the same action to a new
// time replaces the timer instead of leaving the stale one running.
type entityActor[S any, A comparable] struct {
	id      string
	mailbox chan A
	cancel  context.CancelFunc

	mu     sync.Mutex
	state  S
	timers map[A]scheduledTimer
}

// scheduledTimer pairs a live timer with the deadline it was armed for.
type scheduledTimer struct {
	timer *time.Timer
	at    time.Time
}

// New constructs a Kernel. newState produces the initial state for an
// entity the first time an action arrives for an id the kernel has not seen
// before (mirroring Idle(None) for a never-before-seen chat user).
func New[E any, S any, A comparable](
	env E,
	transition TransitionFunc[E, S, A],
	schedule ScheduleFunc[E, S, A],
	newState func() S,
	logger *slog.Logger,
) *Kernel[E, S, A] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Kernel[E, S, A]{
		env:        env,
		transition: transition,
		schedule:   schedule,
		newState:   newState,
		logger:     logger,
		entities:   make(map[string]*entityActor[S, A]),
	}
}

// Act enqueues action for entity id, creating the entity (and its mailbox
// goroutine) lazily if this is the first action ever seen for id.
func (k *Kernel[E, S, A]) Act(ctx context.Context, id string, action A) {
	e := k.entityFor(id)
	select {
	case e.mailbox <- action:
	case <-ctx.Done():
	}
}

// entityFor returns the actor for id, creating and starting it if absent.
func (k *Kernel[E, S, A]) entityFor(id string) *entityActor[S, A] {
	k.mu.Lock()
	defer k.mu.Unlock()

	if e, ok := k.entities[id]; ok {
		return e
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &entityActor[S, A]{
		id:      id,
		mailbox: make(chan A, 32),
		cancel:  cancel,
		state:   k.newState(),
		timers:  make(map[A]scheduledTimer),
	}
	k.entities[id] = e
	go k.run(ctx, e)
	return e
}

// run is the entity's mailbox loop. It processes actions strictly serially;
// distinct entities each have their own run goroutine and make progress
// independently.
func (k *Kernel[E, S, A]) run(ctx context.Context, e *entityActor[S, A]) {
	for {
		select {
		case <-ctx.Done():
			k.stopTimers(e)
			return
		case action := <-e.mailbox:
			k.step(ctx, e, action)
		}
	}
}

// step applies one action to one entity: computes the transition, updates
// the schedule, spawns effects, and removes the entity if requested.
func (k *Kernel[E, S, A]) step(ctx context.Context, e *entityActor[S, A], action A) {
	e.mu.Lock()
	current := e.state
	e.mu.Unlock()

	result, err := k.transition(k.env, e.id, current, action)
	if err != nil {
		k.logger.Warn("kernel: invalid transition dropped",
			"entity", e.id, "action", action, "state", current, "err", err)
		return
	}

	e.mu.Lock()
	e.state = result.State
	e.mu.Unlock()

	k.rescheduleLocked(e, result.State)

	for _, eff := range result.Effects {
		k.spawnEffect(ctx, e, eff)
	}

	if result.Delete {
		k.remove(e.id)
	}
}

// rescheduleLocked diffs the new state's schedule against the entity's live
// timers: stale timers are cancelled, missing ones are registered. A timer
// whose action is unchanged but whose deadline moved (e.g. ForceReset
// re-armed at a later now+FORCE_RESET_DELAY on every non-idle entry) is
// stopped and replaced rather than left running at its old deadline — only a
// timer whose action and deadline both match the new schedule is left
// running untouched.
func (k *Kernel[E, S, A]) rescheduleLocked(e *entityActor[S, A], state S) {
	wanted := k.schedule(k.env, state)

	e.mu.Lock()
	defer e.mu.Unlock()

	keep := make(map[A]bool, len(wanted))
	for _, sched := range wanted {
		keep[sched.Action] = true
		if existing, ok := e.timers[sched.Action]; ok {
			if existing.at.Equal(sched.At) {
				continue // already scheduled for this exact deadline, leave it running
			}
			existing.timer.Stop()
		}
		delay := max(0, time.Until(sched.At))
		action := sched.Action
		e.timers[sched.Action] = scheduledTimer{
			at: sched.At,
			timer: time.AfterFunc(delay, func() {
				k.Act(context.Background(), e.id, action)
			}),
		}
	}

	for action, t := range e.timers {
		if !keep[action] {
			t.timer.Stop()
			delete(e.timers, action)
		}
	}
}

// spawnEffect runs eff on a background goroutine tracked by the kernel's
// errgroup (so Wait can drain in-flight effects during shutdown) and posts
// its resulting action back to the entity's mailbox.
func (k *Kernel[E, S, A]) spawnEffect(ctx context.Context, e *entityActor[S, A], eff Effect[A]) {
	id := e.id
	k.effects.Go(func() error {
		result := eff(ctx)
		k.Act(ctx, id, result)
		return nil
	})
}

func (k *Kernel[E, S, A]) stopTimers(e *entityActor[S, A]) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, t := range e.timers {
		t.timer.Stop()
	}
}

// remove cancels and deletes the entity's actor. In-flight effects already
// spawned still complete and post back; Act then delivers the result to a
// fresh actor for that id — acceptable because a deleted entity returning
// is equivalent to a never-before-seen one.
func (k *Kernel[E, S, A]) remove(id string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if e, ok := k.entities[id]; ok {
		e.cancel()
		delete(k.entities, id)
	}
}

// Wait blocks until all in-flight effects across all entities have
// completed. Call during shutdown after the transport has stopped
// delivering new inbound actions.
func (k *Kernel[E, S, A]) Wait() error {
	return k.effects.Wait()
}

// State returns entity id's current state, or the zero value and false if
// the entity has never been seen.
func (k *Kernel[E, S, A]) State(id string) (S, bool) {
	k.mu.Lock()
	e, ok := k.entities[id]
	k.mu.Unlock()
	if !ok {
		var zero S
		return zero, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, true
}
