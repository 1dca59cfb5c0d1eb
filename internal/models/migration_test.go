package models

import "testing"

func TestMigrationStatus_Terminal(t *testing.T) {
	terminal := []MigrationStatus{StatusCompleted, StatusError, StatusCancelled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	active := []MigrationStatus{StatusQueued, StatusPreparing, StatusRunning, StatusPostMigrating}
	for _, s := range active {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestMigrationStatus_Valid(t *testing.T) {
	all := []MigrationStatus{
		StatusQueued, StatusPreparing, StatusRunning, StatusPostMigrating,
		StatusCompleted, StatusError, StatusCancelled,
	}
	for _, s := range all {
		if !s.Valid() {
			t.Errorf("%s should be valid", s)
		}
	}
	if MigrationStatus("migrating").Valid() {
		t.Error("open strings must not be valid statuses")
	}
	if MigrationStatus("").Valid() {
		t.Error("empty status must not be valid")
	}
}
