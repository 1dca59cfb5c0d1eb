package main

import (
	"bytes"
	"strings"
	"testing"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := runCommand(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "gantry dev") {
		t.Errorf("output = %q", out)
	}
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	cmd := newRootCmd()
	want := []string{"serve", "migrate", "status", "hosts", "db", "version"}
	for _, name := range want {
		found := false
		for _, sub := range cmd.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}
}

func TestMigrateCmd_RequiresInstance(t *testing.T) {
	if _, err := runCommand(t, "migrate"); err == nil {
		t.Fatal("expected arg error")
	}
}

func TestMigrateCmd_InvalidBlockMode(t *testing.T) {
	_, err := runCommand(t, "migrate", "inst-1", "--block-migration", "sometimes")
	if err == nil || !strings.Contains(err.Error(), "--block-migration") {
		t.Fatalf("err = %v", err)
	}
}

func TestDBResetCmd_RequiresYes(t *testing.T) {
	_, err := runCommand(t, "db", "reset")
	if err == nil || !strings.Contains(err.Error(), "--yes") {
		t.Fatalf("err = %v", err)
	}
}
