package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/envlytics/analyte-resolver/internal/application/calibration"
	"github.com/envlytics/analyte-resolver/internal/application/indexing"
)

// AdminHandler serves the operational endpoints.
type AdminHandler struct {
	indexing    indexing.Service
	calibration calibration.Service
}

func NewAdminHandler(idx indexing.Service, cal calibration.Service) *AdminHandler {
	return &AdminHandler{indexing: idx, calibration: cal}
}

// RebuildIndex handles POST /api/v1/admin/rebuild-index.  The rebuild runs
// synchronously; callers are operators and batch jobs, not user traffic.
func (h *AdminHandler) RebuildIndex(c *gin.Context) {
	report, err := h.indexing.Rebuild(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusOK
	if report.Skipped != "" {
		status = http.StatusConflict
	}
	c.JSON(status, report)
}

// Calibrate handles POST /api/v1/admin/calibrate.
func (h *AdminHandler) Calibrate(c *gin.Context) {
	report, err := h.calibration.Run(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
