package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/corbins/gantry/internal/agent"
	"github.com/corbins/gantry/internal/claims"
	"github.com/corbins/gantry/internal/db"
	"github.com/corbins/gantry/internal/models"
	"github.com/corbins/gantry/internal/orchestrator"
	"github.com/corbins/gantry/internal/placement"
	"github.com/corbins/gantry/internal/volumes"
)

// okAgent accepts every directive.
type okAgent struct{}

func (okAgent) Prepare(context.Context, agent.ExecRequest) error { return nil }
func (okAgent) Execute(context.Context, agent.ExecRequest) error { return nil }

type fixedSelector struct{ cands []placement.Candidate }

func (s *fixedSelector) Select(context.Context, *models.Instance, []string) ([]placement.Candidate, error) {
	return s.cands, nil
}

func testRouter(t *testing.T) (*gin.Engine, *gorm.DB, *orchestrator.Orchestrator) {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := gdb.AutoMigrate(db.AllModels()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	for _, h := range []models.Host{
		{Name: "host1", Node: "host1-node", VCPUs: 8, MemoryMB: 16384, DiskGB: 100, Active: true},
		{Name: "host2", Node: "host2-node", VCPUs: 8, MemoryMB: 16384, DiskGB: 100, Active: true},
	} {
		if err := gdb.Create(&h).Error; err != nil {
			t.Fatalf("seed host: %v", err)
		}
	}
	inst := models.Instance{
		ID: "inst-1", Host: "host1", Node: "host1-node",
		Status: models.InstanceActive, VCPUs: 2, MemoryMB: 4096, DiskGB: 20,
	}
	if err := gdb.Create(&inst).Error; err != nil {
		t.Fatalf("seed instance: %v", err)
	}

	cm := claims.NewManager(gdb)
	sel := &fixedSelector{cands: []placement.Candidate{{Compute: "host2", Node: "host2-node"}}}
	reg := agent.StaticRegistry{"host1": okAgent{}, "host2": okAgent{}}
	vc := volumes.NewCoordinator(volumes.NoopClient{})

	orch, err := orchestrator.New(gdb, cm, sel, reg, vc, nil)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	return NewRouter(gdb, orch, cm), gdb, orch
}

func doJSON(t *testing.T, router *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var payload map[string]interface{}
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
			t.Fatalf("decode %s %s response: %v: %s", method, path, err, w.Body.String())
		}
	}
	return w, payload
}

// waitTerminal polls until the migration leaves its active states.
func waitTerminal(t *testing.T, orch *orchestrator.Orchestrator, id string) *models.Migration {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		mig, err := orch.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("get migration: %v", err)
		}
		if mig.Status.Terminal() {
			return mig
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("migration %s never reached a terminal status", id)
	return nil
}

func TestMigrateEndpoint_ExplicitHost(t *testing.T) {
	router, _, orch := testRouter(t)

	w, payload := doJSON(t, router, http.MethodPost, "/api/instances/inst-1/migrate",
		`{"host": "host2", "block_migration": false}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	id, _ := payload["id"].(string)
	if id == "" {
		t.Fatalf("no migration id in %v", payload)
	}
	if payload["status"] != "queued" {
		t.Errorf("initial status = %v, want queued", payload["status"])
	}

	mig := waitTerminal(t, orch, id)
	if mig.Status != models.StatusCompleted {
		t.Errorf("status = %s, want completed", mig.Status)
	}
}

func TestMigrateEndpoint_AutoBlockString(t *testing.T) {
	router, _, orch := testRouter(t)

	w, payload := doJSON(t, router, http.MethodPost, "/api/instances/inst-1/migrate",
		`{"block_migration": "auto"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	mig := waitTerminal(t, orch, payload["id"].(string))
	if mig.Status != models.StatusCompleted {
		t.Errorf("status = %s", mig.Status)
	}
	// No shared storage seeded, so auto means block migration.
	if !mig.BlockMigration {
		t.Error("auto mode without shared storage should block-migrate")
	}
}

func TestMigrateEndpoint_InvalidBlockMigration(t *testing.T) {
	router, _, _ := testRouter(t)
	w, _ := doJSON(t, router, http.MethodPost, "/api/instances/inst-1/migrate",
		`{"block_migration": "sometimes"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestMigrateEndpoint_UnknownInstance(t *testing.T) {
	router, _, _ := testRouter(t)
	w, _ := doJSON(t, router, http.MethodPost, "/api/instances/ghost/migrate", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestMigrateEndpoint_Conflict(t *testing.T) {
	router, gdb, _ := testRouter(t)
	active := models.Migration{
		ID: "mg-active", InstanceID: "inst-1",
		SourceCompute: "host1", SourceNode: "host1-node",
		Status: models.StatusRunning,
	}
	if err := gdb.Create(&active).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	w, _ := doJSON(t, router, http.MethodPost, "/api/instances/inst-1/migrate", `{}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
}

func TestGetMigration_NotFound(t *testing.T) {
	router, _, _ := testRouter(t)
	w, _ := doJSON(t, router, http.MethodGet, "/api/migrations/mg-missing", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestListMigrations_FilterByInstance(t *testing.T) {
	router, gdb, _ := testRouter(t)
	for _, m := range []models.Migration{
		{ID: "mg-1", InstanceID: "inst-1", SourceCompute: "host1", SourceNode: "host1-node", Status: models.StatusCompleted},
		{ID: "mg-2", InstanceID: "inst-2", SourceCompute: "host2", SourceNode: "host2-node", Status: models.StatusError},
	} {
		if err := gdb.Create(&m).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	w, payload := doJSON(t, router, http.MethodGet, "/api/migrations?instance=inst-2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	migs := payload["migrations"].([]interface{})
	if len(migs) != 1 {
		t.Fatalf("migrations = %d, want 1", len(migs))
	}
	first := migs[0].(map[string]interface{})
	if first["id"] != "mg-2" {
		t.Errorf("id = %v, want mg-2", first["id"])
	}
	if first["dest_compute"] != nil {
		t.Errorf("dest_compute = %v, want null", first["dest_compute"])
	}
}

func TestCancelEndpoint(t *testing.T) {
	router, gdb, _ := testRouter(t)
	queued := models.Migration{
		ID: "mg-q", InstanceID: "inst-1",
		SourceCompute: "host1", SourceNode: "host1-node",
		Status: models.StatusQueued,
	}
	if err := gdb.Create(&queued).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	w, _ := doJSON(t, router, http.MethodPost, "/api/migrations/mg-q/cancel", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	// A second cancel conflicts: the record is already terminal.
	w, _ = doJSON(t, router, http.MethodPost, "/api/migrations/mg-q/cancel", "")
	if w.Code != http.StatusConflict {
		t.Fatalf("second cancel status = %d, want 409", w.Code)
	}
}

func TestHostsEndpoint(t *testing.T) {
	router, gdb, _ := testRouter(t)
	claim := models.Claim{MigrationID: "mg-x", NodeID: "host2", VCPUs: 2, MemoryMB: 4096, DiskGB: 20, State: models.ClaimHeld}
	if err := gdb.Create(&claim).Error; err != nil {
		t.Fatalf("seed claim: %v", err)
	}

	w, payload := doJSON(t, router, http.MethodGet, "/api/hosts", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	hosts := payload["hosts"].([]interface{})
	if len(hosts) != 2 {
		t.Fatalf("hosts = %d, want 2", len(hosts))
	}
	h2 := hosts[1].(map[string]interface{})
	if h2["name"] != "host2" {
		t.Fatalf("host = %v", h2["name"])
	}
	if got := h2["free_vcpus"].(float64); got != 6 {
		t.Errorf("free_vcpus = %v, want 6", got)
	}
}

func TestHealthz(t *testing.T) {
	router, _, _ := testRouter(t)
	w, payload := doJSON(t, router, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK || payload["status"] != "ok" {
		t.Fatalf("healthz = %d %v", w.Code, payload)
	}
}
