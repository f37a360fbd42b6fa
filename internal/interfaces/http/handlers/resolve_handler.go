package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/envlytics/analyte-resolver/internal/application/matching"
	"github.com/envlytics/analyte-resolver/pkg/types/common"
)

const maxBatchSize = 500

// ResolveHandler serves the resolution endpoints.
type ResolveHandler struct {
	matcher matching.Service
}

func NewResolveHandler(matcher matching.Service) *ResolveHandler {
	return &ResolveHandler{matcher: matcher}
}

// ResolveRequest is the body of POST /api/v1/resolve.
type ResolveRequest struct {
	Text   string `json:"text" binding:"required"`
	Vendor string `json:"lab_vendor"`
	DryRun bool   `json:"dry_run"`
}

// BatchResolveRequest is the body of POST /api/v1/resolve/batch.
type BatchResolveRequest struct {
	Vendor string   `json:"lab_vendor"`
	DryRun bool     `json:"dry_run"`
	Texts  []string `json:"texts" binding:"required"`
}

// Resolve handles POST /api/v1/resolve.
func (h *ResolveHandler) Resolve(c *gin.Context) {
	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	out, err := h.matcher.Resolve(c.Request.Context(), &matching.ResolveInput{
		Text:   req.Text,
		Vendor: common.Vendor(req.Vendor),
		DryRun: req.DryRun,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// ResolveBatch handles POST /api/v1/resolve/batch.
func (h *ResolveHandler) ResolveBatch(c *gin.Context) {
	var req BatchResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if len(req.Texts) == 0 {
		respondBadRequest(c, "texts must not be empty")
		return
	}
	if len(req.Texts) > maxBatchSize {
		respondBadRequest(c, "batch too large")
		return
	}

	inputs := make([]*matching.ResolveInput, len(req.Texts))
	for i, text := range req.Texts {
		inputs[i] = &matching.ResolveInput{
			Text:   text,
			Vendor: common.Vendor(req.Vendor),
			DryRun: req.DryRun,
		}
	}
	outs, err := h.matcher.ResolveBatch(c.Request.Context(), inputs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": outs})
}
