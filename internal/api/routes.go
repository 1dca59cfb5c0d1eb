package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/corbins/gantry/internal/claims"
	"github.com/corbins/gantry/internal/models"
	"github.com/corbins/gantry/internal/orchestrator"
)

func registerRoutes(router *gin.Engine, db *gorm.DB, orch *orchestrator.Orchestrator, cm *claims.Manager) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiGroup := router.Group("/api")
	{
		apiGroup.POST("/instances/:id/migrate", handleMigrate(orch))
		apiGroup.GET("/migrations", handleListMigrations(orch))
		apiGroup.GET("/migrations/:id", handleGetMigration(orch))
		apiGroup.POST("/migrations/:id/cancel", handleCancelMigration(orch))
		apiGroup.GET("/hosts", handleListHosts(db, cm))
	}
}

// migrateRequest is the migration trigger body. block_migration accepts
// true, false or the string "auto".
type migrateRequest struct {
	Host           *string         `json:"host"`
	BlockMigration json.RawMessage `json:"block_migration"`
}

// blockMode normalizes the block_migration field to "true"/"false"/"auto".
func (r migrateRequest) blockMode() (string, error) {
	if len(r.BlockMigration) == 0 {
		return orchestrator.BlockAuto, nil
	}
	var b bool
	if err := json.Unmarshal(r.BlockMigration, &b); err == nil {
		if b {
			return orchestrator.BlockTrue, nil
		}
		return orchestrator.BlockFalse, nil
	}
	var s string
	if err := json.Unmarshal(r.BlockMigration, &s); err == nil && s == orchestrator.BlockAuto {
		return orchestrator.BlockAuto, nil
	}
	return "", errors.New("block_migration must be true, false or \"auto\"")
}

func handleMigrate(orch *orchestrator.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req migrateRequest
		// An empty body means auto-select destination with auto block mode.
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		block, err := req.blockMode()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		opts := orchestrator.StartOpts{
			InstanceID:     c.Param("id"),
			BlockMigration: block,
		}
		if req.Host != nil {
			opts.TargetHost = *req.Host
		}

		mig, err := orch.Start(c.Request.Context(), opts)
		if err != nil {
			switch {
			case errors.Is(err, orchestrator.ErrConflictingMigration):
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			case errors.Is(err, orchestrator.ErrNotMigratable):
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			}
			return
		}
		c.JSON(http.StatusAccepted, migrationJSON(mig))
	}
}

func handleListMigrations(orch *orchestrator.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		migs, err := orch.List(c.Request.Context(), c.Query("instance"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		out := make([]gin.H, 0, len(migs))
		for i := range migs {
			out = append(out, migrationJSON(&migs[i]))
		}
		c.JSON(http.StatusOK, gin.H{"migrations": out})
	}
}

func handleGetMigration(orch *orchestrator.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		mig, err := orch.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, migrationJSON(mig))
	}
}

func handleCancelMigration(orch *orchestrator.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := orch.Cancel(c.Request.Context(), c.Param("id"))
		if err != nil {
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			case errors.Is(err, orchestrator.ErrCancelNotAllowed):
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			}
			return
		}
		c.JSON(http.StatusOK, gin.H{"cancelled": true})
	}
}

func handleListHosts(db *gorm.DB, cm *claims.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var hosts []models.Host
		if err := db.WithContext(c.Request.Context()).Order("name").Find(&hosts).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		out := make([]gin.H, 0, len(hosts))
		for _, h := range hosts {
			free, err := cm.FreeOn(c.Request.Context(), h.Name)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			out = append(out, gin.H{
				"name":           h.Name,
				"node":           h.Node,
				"active":         h.Active,
				"vcpus":          h.VCPUs,
				"memory_mb":      h.MemoryMB,
				"disk_gb":        h.DiskGB,
				"free_vcpus":     free.VCPUs,
				"free_memory_mb": free.MemoryMB,
				"free_disk_gb":   free.DiskGB,
			})
		}
		c.JSON(http.StatusOK, gin.H{"hosts": out})
	}
}

// migrationJSON renders a migration record in the external status shape.
func migrationJSON(m *models.Migration) gin.H {
	return gin.H{
		"id":              m.ID,
		"instance_id":     m.InstanceID,
		"source_compute":  m.SourceCompute,
		"source_node":     m.SourceNode,
		"dest_compute":    m.DestCompute,
		"dest_node":       m.DestNode,
		"status":          m.Status,
		"block_migration": m.BlockMigration,
		"created_at":      m.CreatedAt.Format(time.RFC3339),
		"updated_at":      m.UpdatedAt.Format(time.RFC3339),
	}
}
