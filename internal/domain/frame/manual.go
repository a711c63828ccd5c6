package frame

import (
	"sort"
	"sync"
	"time"
)

// Manual is a Scheduler driven explicitly by the caller. Nothing runs until
// Drain or Advance is called.
type Manual struct {
	mu     sync.Mutex
	queue  []func()
	timers []*manualTimer
	now    time.Duration
	seq    int
}

type manualTimer struct {
	at      time.Duration
	seq     int
	fn      func()
	stopped bool
	owner   *Manual
}

func (t *manualTimer) Stop() bool {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// NewManual creates an idle manual scheduler
func NewManual() *Manual {
	return &Manual{}
}

func (m *Manual) Post(fn func()) {
	m.mu.Lock()
	m.queue = append(m.queue, fn)
	m.mu.Unlock()
}

func (m *Manual) AfterFunc(d time.Duration, fn func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{at: m.now + d, seq: m.seq, fn: fn, owner: m}
	m.timers = append(m.timers, t)
	return t
}

// Drain runs queued callbacks, including ones they post, until the queue is empty
func (m *Manual) Drain() int {
	ran := 0
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.mu.Unlock()
			return ran
		}
		fn := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()

		fn()
		ran++
	}
}

// Advance moves the clock forward by d, firing due timers in deadline order
func (m *Manual) Advance(d time.Duration) {
	m.Drain()

	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()

	for {
		m.mu.Lock()
		sort.SliceStable(m.timers, func(i, j int) bool {
			if m.timers[i].at == m.timers[j].at {
				return m.timers[i].seq < m.timers[j].seq
			}
			return m.timers[i].at < m.timers[j].at
		})

		var due *manualTimer
		for i, t := range m.timers {
			if t.stopped {
				continue
			}
			if t.at <= target {
				due = t
				m.timers = append(m.timers[:i:i], m.timers[i+1:]...)
			}
			break
		}
		if due == nil {
			m.now = target
			m.timers = compact(m.timers)
			m.mu.Unlock()
			return
		}
		m.now = due.at
		due.stopped = true
		m.mu.Unlock()

		due.fn()
		m.Drain()
	}
}

// Pending reports the number of queued callbacks
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

func compact(timers []*manualTimer) []*manualTimer {
	live := timers[:0]
	for _, t := range timers {
		if !t.stopped {
			live = append(live, t)
		}
	}
	return live
}
