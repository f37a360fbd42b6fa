package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/envlytics/analyte-resolver/internal/domain/analyte"
	"github.com/envlytics/analyte-resolver/pkg/types/common"
)

// AnalyteHandler serves read access to the canonical registry.
type AnalyteHandler struct {
	analytes analyte.Repository
	synonyms analyte.SynonymRepository
}

func NewAnalyteHandler(analytes analyte.Repository, synonyms analyte.SynonymRepository) *AnalyteHandler {
	return &AnalyteHandler{analytes: analytes, synonyms: synonyms}
}

// List handles GET /api/v1/analytes.
func (h *AnalyteHandler) List(c *gin.Context) {
	page := pagination(c)
	rows, total, err := h.analytes.List(c.Request.Context(), page)
	if err != nil {
		respondError(c, err)
		return
	}
	page.Total = total
	c.JSON(http.StatusOK, gin.H{"analytes": rows, "pagination": page})
}

// Get handles GET /api/v1/analytes/:id.
func (h *AnalyteHandler) Get(c *gin.Context) {
	a, err := h.analytes.GetByID(c.Request.Context(), common.AnalyteID(c.Param("id")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// Synonyms handles GET /api/v1/analytes/:id/synonyms.
func (h *AnalyteHandler) Synonyms(c *gin.Context) {
	id := common.AnalyteID(c.Param("id"))
	if _, err := h.analytes.GetByID(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	rows, err := h.synonyms.ListByAnalyte(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"analyte_id": id, "synonyms": rows})
}
