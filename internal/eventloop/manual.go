package eventloop

import (
	"sort"
	"time"
)

type manualTask struct {
	key      string
	deadline time.Time
	seq      uint64
	fn       func()
}

// Manual is a virtual-time Clock, Timers and Executor. Work runs inline and
// timers only fire on Advance or Fire, which makes session logic testable
// without sleeping.
type Manual struct {
	now   time.Time
	seq   uint64
	tasks map[string]*manualTask
	armed map[string]int
}

func NewManual(start time.Time) *Manual {
	if start.IsZero() {
		start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return &Manual{
		now:   start,
		tasks: make(map[string]*manualTask),
		armed: make(map[string]int),
	}
}

func (m *Manual) Now() time.Time { return m.now }

func (m *Manual) Go(fn func())   { fn() }
func (m *Manual) Post(fn func()) { fn() }

func (m *Manual) Arm(key string, d time.Duration, fn func()) {
	m.seq++
	m.tasks[key] = &manualTask{key: key, deadline: m.now.Add(d), seq: m.seq, fn: fn}
	m.armed[key]++
}

func (m *Manual) Cancel(key string) {
	delete(m.tasks, key)
}

func (m *Manual) Pending(key string) bool {
	_, ok := m.tasks[key]
	return ok
}

// Remaining reports how long until key fires.
func (m *Manual) Remaining(key string) (time.Duration, bool) {
	t, ok := m.tasks[key]
	if !ok {
		return 0, false
	}
	return t.deadline.Sub(m.now), true
}

// ArmCount reports how many times key has been armed.
func (m *Manual) ArmCount(key string) int {
	return m.armed[key]
}

func (m *Manual) PendingCount() int {
	return len(m.tasks)
}

// Fire runs key immediately regardless of its deadline.
func (m *Manual) Fire(key string) bool {
	t, ok := m.tasks[key]
	if !ok {
		return false
	}
	delete(m.tasks, key)
	t.fn()
	return true
}

// Advance moves time forward, firing due tasks in deadline order. Tasks armed
// by a firing task run too if they fall inside the window.
func (m *Manual) Advance(d time.Duration) {
	target := m.now.Add(d)
	for {
		next := m.nextDue(target)
		if next == nil {
			break
		}
		m.now = next.deadline
		delete(m.tasks, next.key)
		next.fn()
	}
	m.now = target
}

func (m *Manual) nextDue(target time.Time) *manualTask {
	due := make([]*manualTask, 0, len(m.tasks))
	for _, t := range m.tasks {
		if !t.deadline.After(target) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].deadline.Equal(due[j].deadline) {
			return due[i].seq < due[j].seq
		}
		return due[i].deadline.Before(due[j].deadline)
	})
	return due[0]
}
