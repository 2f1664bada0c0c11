package evtimer

import (
	"tickos/kernel"
	"tickos/xtimer"
)

// MsgEvent is the payload of events handled by a message Evtimer
type MsgEvent struct {
	Msg kernel.Msg
	PID kernel.PID // receiving thread
}

// NewMsgEvent returns an event that delivers m to pid after offsetMs.
func NewMsgEvent(offsetMs uint32, m kernel.Msg, pid kernel.PID) *Event {
	return &Event{Offset: offsetMs, Payload: &MsgEvent{Msg: m, PID: pid}}
}

// NewMsg creates an Evtimer whose events carry a *MsgEvent and are sent to
// their thread on expiry. Delivery never blocks; a full mailbox drops the
// message with a warning.
func NewMsg(sub *xtimer.Subsystem, reg *kernel.Registry, opts ...Option) *Evtimer {
	var e *Evtimer
	e = New(sub, func(ev *Event) {
		me, ok := ev.Payload.(*MsgEvent)
		if !ok {
			e.log.Warnf("event %p has no message payload", ev)
			return
		}
		m := me.Msg
		m.SenderPID = kernel.PIDISR
		if err := reg.Send(m, me.PID); err != nil {
			e.log.Warnf("dropping event message: %v", err)
		}
	}, opts...)
	return e
}
