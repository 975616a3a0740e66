package service

import (
	"sync"
	"sync/atomic"
)

// Supervisor tracks which jobs currently have a live execution unit. It can
// answer "is this job's unit still alive" without blocking on the unit.
//
// Registration hands out a token so a unit can release its slot early (the
// suspend path frees the slot before the job becomes resumable) without a
// later stale release clobbering the slot of a newer unit.
type Supervisor struct {
	units sync.Map // job id -> token
	seq   atomic.Uint64
}

// NewSupervisor creates an empty supervisor.
func NewSupervisor() *Supervisor {
	return &Supervisor{}
}

// Register marks a job's execution unit as live and returns the unit's
// release token. It reports false if a unit is already registered.
func (s *Supervisor) Register(jobID string) (uint64, bool) {
	token := s.seq.Add(1)
	if _, loaded := s.units.LoadOrStore(jobID, token); loaded {
		return 0, false
	}
	return token, true
}

// Unregister releases a job's slot if it is still held by the given token.
// A stale token (the slot was already released, or re-registered by a newer
// unit) is a no-op, so Unregister is safe to defer and to call early.
func (s *Supervisor) Unregister(jobID string, token uint64) {
	s.units.CompareAndDelete(jobID, token)
}

// Alive reports whether a job has a live execution unit.
func (s *Supervisor) Alive(jobID string) bool {
	_, ok := s.units.Load(jobID)
	return ok
}

// Count returns the number of live execution units.
func (s *Supervisor) Count() int {
	n := 0
	s.units.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
