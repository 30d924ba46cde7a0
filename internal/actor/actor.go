// Package actor hosts the per-entity state machines and the mailbox runtime
// they run on. One goroutine owns one entity's state; all mutation happens
// through messages, in arrival order. Nothing outside the goroutine ever
// touches the state directly — queries are request/response messages with a
// bounded timeout.
package actor

import (
	"time"

	"github.com/gyaneshwarpardhi/gatewatch/internal/event"
	"github.com/gyaneshwarpardhi/gatewatch/internal/metrics"
)

// Kind discriminates the three entity actor families.
type Kind string

const (
	KindPerson Kind = "person"
	KindGate   Kind = "gate"
	KindAcc    Kind = "acc"
)

// Key uniquely identifies one actor. Immutable once the actor starts.
type Key struct {
	Kind Kind
	Site string
	ID   string
}

func (k Key) String() string {
	return string(k.Kind) + "/" + k.Site + "/" + k.ID
}

// QueryTimeout bounds how long a state query waits before reporting the
// actor as gone.
const QueryTimeout = 5 * time.Second

// Effect is what a behavior asks the runtime to do after handling a message.
// The runtime owns a single alarm timer per actor; arming it again replaces
// any pending one, so at most one alarm is ever live.
type Effect struct {
	ArmAlarm    time.Duration // > 0 arms (or re-arms) the alarm
	CancelAlarm bool
	Stop        bool // terminal state reached; actor exits after this message
}

// Behavior is one entity kind's state machine. OnEvent and OnAlarm are only
// ever called from the owning goroutine, so implementations need no locking.
type Behavior interface {
	OnEvent(ev *event.Event) Effect
	OnAlarm() Effect
	Snapshot() interface{}
}

type message interface{ isMessage() }

type eventMsg struct{ ev *event.Event }
type queryMsg struct{ reply chan interface{} }
type stopMsg struct{}

func (eventMsg) isMessage() {}
func (queryMsg) isMessage() {}
func (stopMsg) isMessage()  {}

// Actor is a handle to one running entity actor.
type Actor struct {
	key       Key
	mbox      chan message
	done      chan struct{}
	idleAfter time.Duration
	behavior  Behavior
	onStop    func(*Actor) // unregisters from the registry; runs before done closes
}

const mailboxDepth = 64

// Start launches an actor goroutine. onStop is invoked exactly once, right
// before the handle is marked dead, so the registry can drop its entry
// before any sender observes the closed handle.
func Start(key Key, b Behavior, idleAfter time.Duration, onStop func(*Actor)) *Actor {
	a := &Actor{
		key:       key,
		mbox:      make(chan message, mailboxDepth),
		done:      make(chan struct{}),
		idleAfter: idleAfter,
		behavior:  b,
		onStop:    onStop,
	}
	metrics.ActorsLive.WithLabelValues(string(key.Kind)).Inc()
	go a.run()
	return a
}

// Key returns the actor's identity.
func (a *Actor) Key() Key { return a.key }

// Send delivers an event to the actor's mailbox, preserving per-actor FIFO
// order for a single caller. Returns false if the actor has already stopped;
// the event is then dropped and the caller may re-create the actor.
func (a *Actor) Send(ev *event.Event) bool {
	select {
	case a.mbox <- eventMsg{ev: ev}:
		return true
	case <-a.done:
		return false
	}
}

// Query requests a state snapshot, waiting at most QueryTimeout. The second
// return is false when the actor is gone or unresponsive — never an error,
// never a block.
func (a *Actor) Query() (interface{}, bool) {
	reply := make(chan interface{}, 1)
	t := time.NewTimer(QueryTimeout)
	defer t.Stop()

	select {
	case a.mbox <- queryMsg{reply: reply}:
	case <-a.done:
		return nil, false
	case <-t.C:
		metrics.QueryTimeouts.WithLabelValues(string(a.key.Kind)).Inc()
		return nil, false
	}
	select {
	case snap := <-reply:
		return snap, true
	case <-a.done:
		return nil, false
	case <-t.C:
		metrics.QueryTimeouts.WithLabelValues(string(a.key.Kind)).Inc()
		return nil, false
	}
}

// Stop asks the actor to exit after draining nothing further. Used on
// process shutdown; idle eviction and terminal transitions stop actors on
// their own.
func (a *Actor) Stop() {
	select {
	case a.mbox <- stopMsg{}:
	case <-a.done:
	}
}

// Done reports actor termination; closed once the actor has fully stopped.
func (a *Actor) Done() <-chan struct{} { return a.done }

func (a *Actor) run() {
	idle := time.NewTimer(a.idleAfter)
	defer idle.Stop()

	var alarm *time.Timer
	var alarmC <-chan time.Time
	defer func() {
		if alarm != nil {
			alarm.Stop()
		}
	}()

	for {
		select {
		case m := <-a.mbox:
			resetTimer(idle, a.idleAfter)
			if a.handle(m, &alarm, &alarmC) {
				a.finish(false)
				return
			}

		case <-alarmC:
			alarm, alarmC = nil, nil
			if a.apply(a.behavior.OnAlarm(), &alarm, &alarmC) {
				a.finish(false)
				return
			}

		case <-idle.C:
			// A message may have raced the idle timer; prefer it.
			select {
			case m := <-a.mbox:
				idle.Reset(a.idleAfter)
				if a.handle(m, &alarm, &alarmC) {
					a.finish(false)
					return
				}
			default:
				a.finish(true)
				return
			}
		}
	}
}

// handle processes one mailbox message; true means the actor should exit.
func (a *Actor) handle(m message, alarm **time.Timer, alarmC *<-chan time.Time) bool {
	switch m := m.(type) {
	case eventMsg:
		return a.apply(a.behavior.OnEvent(m.ev), alarm, alarmC)
	case queryMsg:
		m.reply <- a.behavior.Snapshot() // reply is buffered; never blocks
		return false
	case stopMsg:
		return true
	}
	return false
}

func (a *Actor) apply(eff Effect, alarm **time.Timer, alarmC *<-chan time.Time) bool {
	if eff.CancelAlarm && *alarm != nil {
		(*alarm).Stop()
		*alarm, *alarmC = nil, nil
	}
	if eff.ArmAlarm > 0 {
		if *alarm != nil {
			(*alarm).Stop()
		}
		*alarm = time.NewTimer(eff.ArmAlarm)
		*alarmC = (*alarm).C
	}
	return eff.Stop
}

func (a *Actor) finish(evicted bool) {
	if evicted {
		metrics.ActorsEvicted.WithLabelValues(string(a.key.Kind)).Inc()
	}
	metrics.ActorsLive.WithLabelValues(string(a.key.Kind)).Dec()
	if a.onStop != nil {
		a.onStop(a)
	}
	close(a.done)
}

// resetTimer restarts a stopped-or-fired timer without leaking a stale tick.
func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
