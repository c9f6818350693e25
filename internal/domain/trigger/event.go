package trigger

import (
	"slices"
	"time"
)

// Event is the single signal a monitor emits when its condition is observed.
type Event struct {
	// Source is the monitor that fired.
	Source Source
	// ObservedAt carries the monotonic reading taken when the condition was seen.
	ObservedAt time.Time
}

// NewEvent stamps an event for source with the current time.
func NewEvent(source Source) Event {
	return Event{
		Source:     source,
		ObservedAt: time.Now(),
	}
}

// Actor identifies the machine and account the tripwire was armed on.
type Actor struct {
	// Hostname is the machine name.
	Hostname string
	// Username is the system user running the process.
	Username string
}

// Clone returns a deep copy of the actor.
func (a *Actor) Clone() *Actor {
	if a == nil {
		return nil
	}

	cloned := *a

	return &cloned
}

// Record is the post-mortem trace written before the protective sequence starts.
type Record struct {
	// Source is the monitor that won the trigger race.
	Source Source
	// ObservedAt is the wall-clock time of the winning event.
	ObservedAt time.Time
	// Actor is the host and user the process ran as.
	Actor *Actor
	// ActiveModes lists the monitors that were armed at the time.
	ActiveModes []Source
}

// NewRecord builds a record for ev.
func NewRecord(ev Event, actor *Actor, active []Source) *Record {
	return &Record{
		Source:      ev.Source,
		ObservedAt:  ev.ObservedAt.Round(0),
		Actor:       actor.Clone(),
		ActiveModes: slices.Clone(active),
	}
}

// Clone returns a copy of the record that shares no memory with r.
func (r *Record) Clone() *Record {
	return &Record{
		Source:      r.Source,
		ObservedAt:  r.ObservedAt,
		Actor:       r.Actor.Clone(),
		ActiveModes: slices.Clone(r.ActiveModes),
	}
}
