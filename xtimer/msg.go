package xtimer

import "tickos/kernel"

// MsgTimeout is the message type MsgReceiveTimeout uses for its sentinel.
const MsgTimeout uint16 = 12345

type msgTarget struct {
	msg kernel.Msg
	th  *kernel.Thread
}

func sendMsg(arg any) {
	mt := arg.(*msgTarget)
	m := mt.msg
	m.SenderPID = kernel.PIDISR
	mt.th.SendInt(m)
}

func wakeThread(arg any) {
	arg.(*kernel.Thread).Wakeup()
}

func raiseTimeoutFlag(arg any) {
	arg.(*kernel.Thread).Flags().Set(kernel.FlagTimeout)
}

// SetMsg sends m to th offsetUs from now. The message arrives with
// kernel.PIDISR as sender.
func (s *Subsystem) SetMsg(t *Timer, offsetUs uint32, m kernel.Msg, th *kernel.Thread) {
	s.SetMsg64(t, uint64(offsetUs), m, th)
}

func (s *Subsystem) SetMsg64(t *Timer, offsetUs uint64, m kernel.Msg, th *kernel.Thread) {
	t.Callback = ISRFunc(sendMsg)
	t.Arg = &msgTarget{msg: m, th: th}
	s.Set64(t, offsetUs)
}

// SetWakeup wakes th offsetUs from now.
func (s *Subsystem) SetWakeup(t *Timer, offsetUs uint32, th *kernel.Thread) {
	s.SetWakeup64(t, uint64(offsetUs), th)
}

func (s *Subsystem) SetWakeup64(t *Timer, offsetUs uint64, th *kernel.Thread) {
	t.Callback = ISRFunc(wakeThread)
	t.Arg = th
	s.Set64(t, offsetUs)
}

// SetTimeoutFlag raises kernel.FlagTimeout on th after us microseconds.
func (s *Subsystem) SetTimeoutFlag(t *Timer, us uint32, th *kernel.Thread) {
	t.Callback = ISRFunc(raiseTimeoutFlag)
	t.Arg = th
	s.Set(t, us)
}

// timeoutToken marks the sentinel of one MsgReceiveTimeout call
type timeoutToken struct{ _ byte }

// MsgReceiveTimeout waits up to us microseconds for a message to th. It
// returns 1 and stores the message in m, or -1 on timeout leaving m as is.
func (s *Subsystem) MsgReceiveTimeout(th *kernel.Thread, m *kernel.Msg, us uint32) int {
	return s.MsgReceiveTimeout64(th, m, uint64(us))
}

func (s *Subsystem) MsgReceiveTimeout64(th *kernel.Thread, m *kernel.Msg, us uint64) int {
	if got, ok := th.TryReceive(); ok && !isSentinel(got) {
		*m = got
		return 1
	}

	tok := &timeoutToken{}
	var t Timer
	s.SetMsg64(&t, us, kernel.Msg{Type: MsgTimeout, Content: tok}, th)

	for {
		got := th.Receive()
		if isSentinel(got) {
			if got.Content.(*timeoutToken) == tok {
				return -1
			}
			// left behind by an earlier call whose data won the race
			continue
		}
		s.Remove(&t)
		*m = got
		return 1
	}
}

func isSentinel(m kernel.Msg) bool {
	if m.Type != MsgTimeout {
		return false
	}
	_, ok := m.Content.(*timeoutToken)
	return ok
}
