package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/envlytics/analyte-resolver/internal/application/review"
	"github.com/envlytics/analyte-resolver/pkg/types/common"
)

// ReviewHandler serves the review queue and validation endpoints.
type ReviewHandler struct {
	review review.Service
}

func NewReviewHandler(svc review.Service) *ReviewHandler {
	return &ReviewHandler{review: svc}
}

// ValidateRequest is the body of POST /api/v1/decisions/:id/validation.
type ValidateRequest struct {
	ValidatedAnalyteID string `json:"validated_analyte_id" binding:"required"`
	SubmissionID       int64  `json:"submission_id"`
	Notes              string `json:"notes"`
}

// Validate handles POST /api/v1/decisions/:id/validation.
func (h *ReviewHandler) Validate(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondBadRequest(c, "decision id must be an integer")
		return
	}
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	out, err := h.review.Validate(c.Request.Context(), &review.ValidateInput{
		DecisionID:         id,
		ValidatedAnalyteID: common.AnalyteID(req.ValidatedAnalyteID),
		SubmissionID:       common.SubmissionID(req.SubmissionID),
		Notes:              req.Notes,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// Queue handles GET /api/v1/review-queue.
func (h *ReviewHandler) Queue(c *gin.Context) {
	out, err := h.review.Queue(c.Request.Context(), &review.QueueInput{
		Text:   c.Query("q"),
		Vendor: common.Vendor(c.Query("lab_vendor")),
		Band:   c.Query("band"),
		Page:   pagination(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// Summary handles GET /api/v1/review-queue/summary.
func (h *ReviewHandler) Summary(c *gin.Context) {
	counts, err := h.review.BandSummary(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending_by_band": counts})
}

// Clusters handles GET /api/v1/review-queue/clusters.
func (h *ReviewHandler) Clusters(c *gin.Context) {
	threshold := 0.0
	if v := c.Query("threshold"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil || t <= 0 || t > 1 {
			respondBadRequest(c, "threshold must be a number in (0, 1]")
			return
		}
		threshold = t
	}

	clusters, err := h.review.ClusterUnknowns(c.Request.Context(), &review.ClusterInput{
		Vendor:    common.Vendor(c.Query("lab_vendor")),
		Threshold: threshold,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"clusters": clusters})
}
