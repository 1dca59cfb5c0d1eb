// Package faultinject provides scripted failure injection for test doubles.
// A Script enumerates, per named call, how many times that call should fail
// and with what error. Fakes standing in for external collaborators consult
// the script on every invocation, which keeps failure scenarios explicit
// instead of patching shared functions at runtime.
package faultinject

import "sync"

// Fault describes the failure behavior of one named call.
type Fault struct {
	// Count is how many invocations should fail before the call starts
	// succeeding. A negative Count fails forever.
	Count int
	// Err is returned for each failing invocation.
	Err error
}

// Script maps call names to their scripted faults and counts every
// invocation, failing or not. Safe for concurrent use.
type Script struct {
	mu     sync.Mutex
	faults map[string]*Fault
	calls  map[string]int
	fired  map[string]int
}

// NewScript builds a Script from per-call faults. Calls not named in faults
// always succeed but are still counted.
func NewScript(faults map[string]*Fault) *Script {
	s := &Script{
		faults: make(map[string]*Fault, len(faults)),
		calls:  make(map[string]int),
		fired:  make(map[string]int),
	}
	for name, f := range faults {
		cp := *f
		s.faults[name] = &cp
	}
	return s
}

// Fire records an invocation of the named call and returns the scripted
// error if the call should fail, or nil.
func (s *Script) Fire(call string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls[call]++
	f, ok := s.faults[call]
	if !ok || f.Count == 0 {
		return nil
	}
	if f.Count > 0 {
		f.Count--
	}
	s.fired[call]++
	return f.Err
}

// Calls returns how many times the named call was invoked.
func (s *Script) Calls(call string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[call]
}

// Fired returns how many times the named call actually failed.
func (s *Script) Fired(call string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fired[call]
}
