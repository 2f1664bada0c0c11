package event

import "tickos/xtimer"

// Timeout posts an event to a queue once a delay expires. The event must
// stay valid until it has been served or the timeout cleared.
type Timeout struct {
	sub   *xtimer.Subsystem
	queue *Queue
	event *Event
	timer xtimer.Timer
}

func postEvent(arg any) {
	to := arg.(*Timeout)
	to.queue.Post(to.event)
}

// Init binds the timeout to a subsystem, a queue and the event to post.
// An armed timeout is disarmed first.
func (to *Timeout) Init(sub *xtimer.Subsystem, queue *Queue, ev *Event) {
	if to.sub != nil {
		to.sub.Remove(&to.timer)
	}
	to.sub = sub
	to.queue = queue
	to.event = ev
	to.timer.Callback = xtimer.ISRFunc(postEvent)
	to.timer.Arg = to
}

// Set (re)arms the timeout us microseconds from now.
func (to *Timeout) Set(us uint32) {
	to.sub.Set(&to.timer, us)
}

func (to *Timeout) Set64(us uint64) {
	to.sub.Set64(&to.timer, us)
}

// Clear disarms the timeout. An event it already posted stays queued.
func (to *Timeout) Clear() {
	to.sub.Remove(&to.timer)
}

// IsPending reports whether the timeout is armed.
func (to *Timeout) IsPending() bool {
	return to.sub.IsSet(&to.timer)
}
