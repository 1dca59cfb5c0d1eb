package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStaticRegistry(t *testing.T) {
	a := NewHTTPAgent("http://host1:9100")
	reg := StaticRegistry{"host1": a}

	got, err := reg.Agent("host1")
	if err != nil {
		t.Fatalf("agent: %v", err)
	}
	if got != a {
		t.Error("wrong agent returned")
	}

	if _, err := reg.Agent("host9"); err == nil {
		t.Fatal("expected error for unregistered host")
	}
}

func TestHTTPAgent_Execute(t *testing.T) {
	var gotPath string
	var gotReq ExecRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotReq)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := NewHTTPAgent(srv.URL)
	req := ExecRequest{
		MigrationID: "mg-1", InstanceID: "inst-1",
		SourceHost: "host1", DestHost: "host2", BlockMigration: true,
	}
	if err := a.Execute(context.Background(), req); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if gotPath != "/v1/migrations/execute" {
		t.Errorf("path = %q", gotPath)
	}
	if gotReq != req {
		t.Errorf("request = %+v, want %+v", gotReq, req)
	}
}

func TestHTTPAgent_PrepareFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "precheck failed", http.StatusConflict)
	}))
	defer srv.Close()

	a := NewHTTPAgent(srv.URL)
	err := a.Prepare(context.Background(), ExecRequest{MigrationID: "mg-1"})
	if !errors.Is(err, ErrRemoteExecutionFailed) {
		t.Fatalf("err = %v, want ErrRemoteExecutionFailed", err)
	}
}
