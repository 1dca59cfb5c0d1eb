package faultinject

import (
	"errors"
	"testing"
)

func TestFire_NoFault(t *testing.T) {
	s := NewScript(nil)
	if err := s.Fire("anything"); err != nil {
		t.Fatalf("err = %v", err)
	}
	if s.Calls("anything") != 1 {
		t.Errorf("calls = %d, want 1", s.Calls("anything"))
	}
	if s.Fired("anything") != 0 {
		t.Errorf("fired = %d, want 0", s.Fired("anything"))
	}
}

func TestFire_FailsNTimes(t *testing.T) {
	bork := errors.New("bork")
	s := NewScript(map[string]*Fault{"call": {Count: 2, Err: bork}})

	for i := 0; i < 2; i++ {
		if err := s.Fire("call"); !errors.Is(err, bork) {
			t.Fatalf("call %d: err = %v, want bork", i, err)
		}
	}
	if err := s.Fire("call"); err != nil {
		t.Fatalf("call after budget: err = %v", err)
	}
	if s.Calls("call") != 3 || s.Fired("call") != 2 {
		t.Errorf("calls = %d fired = %d, want 3 and 2", s.Calls("call"), s.Fired("call"))
	}
}

func TestFire_FailsForever(t *testing.T) {
	bork := errors.New("bork")
	s := NewScript(map[string]*Fault{"call": {Count: -1, Err: bork}})
	for i := 0; i < 5; i++ {
		if err := s.Fire("call"); !errors.Is(err, bork) {
			t.Fatalf("call %d: err = %v", i, err)
		}
	}
}

func TestNewScript_CopiesFaults(t *testing.T) {
	f := &Fault{Count: 1, Err: errors.New("x")}
	s := NewScript(map[string]*Fault{"call": f})
	s.Fire("call")
	if f.Count != 1 {
		t.Error("script mutated the caller's fault")
	}
}
