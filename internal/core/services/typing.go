package services

import (
	"sort"
	"sync"
	"time"
)

// TypingSet tracks remote users who are typing. A member expires after the
// window even if no stop event ever arrives.
type TypingSet struct {
	mu       sync.Mutex
	expiry   time.Duration
	exec     Executor
	members  map[string]*typingEntry
	onChange func(users []string)
	closed   bool
}

type typingEntry struct {
	gen   uint64
	timer *time.Timer
}

func NewTypingSet(expiry time.Duration, exec Executor) *TypingSet {
	if exec == nil {
		exec = Inline
	}
	return &TypingSet{expiry: expiry, exec: exec, members: make(map[string]*typingEntry)}
}

// OnChange registers fn; it runs after every membership change.
func (t *TypingSet) OnChange(fn func(users []string)) {
	t.mu.Lock()
	t.onChange = fn
	t.mu.Unlock()
}

// Start adds user or restarts its expiry window.
func (t *TypingSet) Start(user string) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	e, existed := t.members[user]
	if !existed {
		e = &typingEntry{}
		t.members[user] = e
	} else {
		e.timer.Stop()
	}
	e.gen++
	gen := e.gen
	e.timer = time.AfterFunc(t.expiry, func() {
		t.exec(func() { t.expire(user, gen) })
	})
	users, fn := t.usersLocked(), t.onChange
	t.mu.Unlock()
	if !existed && fn != nil {
		fn(users)
	}
}

// Stop removes user and cancels its window.
func (t *TypingSet) Stop(user string) {
	t.mu.Lock()
	e, ok := t.members[user]
	if !ok {
		t.mu.Unlock()
		return
	}
	e.timer.Stop()
	delete(t.members, user)
	users, fn := t.usersLocked(), t.onChange
	t.mu.Unlock()
	if fn != nil {
		fn(users)
	}
}

func (t *TypingSet) expire(user string, gen uint64) {
	t.mu.Lock()
	e, ok := t.members[user]
	if !ok || e.gen != gen {
		t.mu.Unlock()
		return
	}
	delete(t.members, user)
	users, fn := t.usersLocked(), t.onChange
	t.mu.Unlock()
	if fn != nil {
		fn(users)
	}
}

// Users returns the members in name order.
func (t *TypingSet) Users() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.usersLocked()
}

func (t *TypingSet) usersLocked() []string {
	out := make([]string, 0, len(t.members))
	for u := range t.members {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// Close cancels every timer; later Start calls are ignored.
func (t *TypingSet) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for u, e := range t.members {
		e.timer.Stop()
		delete(t.members, u)
	}
}

// TypingDebouncer turns keystrokes into at most one start frame per burst and
// one stop frame once the user has been quiet for the window.
type TypingDebouncer struct {
	mu     sync.Mutex
	quiet  time.Duration
	send   func(start bool) error
	active bool
	gen    uint64
	timer  *time.Timer
	closed bool
}

func NewTypingDebouncer(quiet time.Duration, send func(start bool) error) *TypingDebouncer {
	return &TypingDebouncer{quiet: quiet, send: send}
}

// Keystroke sends a start frame if the user was quiet and restarts the window.
func (d *TypingDebouncer) Keystroke() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	if !d.active {
		if err := d.send(true); err != nil {
			return err
		}
		d.active = true
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.quiet, func() { d.expire(gen) })
	return nil
}

// Stop ends the burst now, sending the stop frame if one is owed.
func (d *TypingDebouncer) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopLocked()
}

func (d *TypingDebouncer) expire(gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if gen != d.gen {
		return
	}
	_ = d.stopLocked()
}

func (d *TypingDebouncer) stopLocked() error {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	if !d.active {
		return nil
	}
	d.active = false
	return d.send(false)
}

func (d *TypingDebouncer) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// Close cancels the window without sending anything.
func (d *TypingDebouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.active = false
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
