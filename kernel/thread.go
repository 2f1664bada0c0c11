// Package kernel provides the thread, message and mutex primitives the timer
// subsystem blocks on. Threads are goroutines that carry a pid, a bounded
// mailbox and thread flags.
package kernel

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// PID identifies a thread
type PID int16

const (
	PIDUndef PID = 0
	// PIDISR is the sender pid of messages sent from interrupt context
	PIDISR PID = -1
)

var ErrNoThread = errors.New("kernel: no such thread")

// Msg is an inter-thread message
type Msg struct {
	SenderPID PID
	Type      uint16
	Content   any
}

func (m Msg) String() string {
	return fmt.Sprintf("msg{from=%d type=%d content=%v}", m.SenderPID, m.Type, m.Content)
}

// Thread is the kernel side of a goroutine that wants to receive messages,
// sleep or wait on flags.
type Thread struct {
	pid     PID
	name    string
	mailbox chan Msg

	wake     chan struct{}
	sleeping atomic.Bool

	flags Flags
}

// NewThread creates an unregistered thread. Most callers use Registry.Spawn.
func NewThread(pid PID, name string, mailboxSize int) *Thread {
	if mailboxSize < 1 {
		mailboxSize = 1
	}
	return &Thread{
		pid:     pid,
		name:    name,
		mailbox: make(chan Msg, mailboxSize),
		wake:    make(chan struct{}, 1),
	}
}

func (th *Thread) PID() PID     { return th.pid }
func (th *Thread) Name() string { return th.name }

// Flags returns the thread flags.
func (th *Thread) Flags() *Flags { return &th.flags }

// SendInt queues m without blocking. It is safe from interrupt context and
// reports false when the mailbox is full.
func (th *Thread) SendInt(m Msg) bool {
	select {
	case th.mailbox <- m:
		return true
	default:
		return false
	}
}

// Receive blocks until a message arrives.
func (th *Thread) Receive() Msg {
	return <-th.mailbox
}

// TryReceive returns a queued message if there is one.
func (th *Thread) TryReceive() (Msg, bool) {
	select {
	case m := <-th.mailbox:
		return m, true
	default:
		return Msg{}, false
	}
}

// Pending returns the number of queued messages.
func (th *Thread) Pending() int { return len(th.mailbox) }

// Sleep blocks until Wakeup. A wakeup issued before Sleep is not lost.
func (th *Thread) Sleep() {
	th.sleeping.Store(true)
	<-th.wake
	th.sleeping.Store(false)
}

// Wakeup releases a sleeping thread. It reports whether the thread was
// asleep at the time.
func (th *Thread) Wakeup() bool {
	asleep := th.sleeping.Load()
	select {
	case th.wake <- struct{}{}:
	default:
	}
	return asleep
}

// Registry maps pids to threads
type Registry struct {
	mu      sync.RWMutex
	threads map[PID]*Thread
	next    PID
}

func NewRegistry() *Registry {
	return &Registry{threads: make(map[PID]*Thread), next: 1}
}

// Spawn registers a new thread with the next free pid.
func (r *Registry) Spawn(name string, mailboxSize int) *Thread {
	r.mu.Lock()
	defer r.mu.Unlock()
	for r.threads[r.next] != nil || r.next <= PIDUndef {
		r.next++
		if r.next <= PIDUndef {
			r.next = 1
		}
	}
	th := NewThread(r.next, name, mailboxSize)
	r.threads[th.pid] = th
	r.next++
	return th
}

// Exit removes th from the registry.
func (r *Registry) Exit(th *Thread) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.threads[th.pid] == th {
		delete(r.threads, th.pid)
	}
}

// Lookup returns the thread registered under pid or nil.
func (r *Registry) Lookup(pid PID) *Thread {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.threads[pid]
}

// Send queues m for pid without blocking.
func (r *Registry) Send(m Msg, pid PID) error {
	th := r.Lookup(pid)
	if th == nil {
		return fmt.Errorf("%w: pid %d", ErrNoThread, pid)
	}
	if !th.SendInt(m) {
		return fmt.Errorf("kernel: mailbox of %s (pid %d) full", th.name, pid)
	}
	return nil
}
