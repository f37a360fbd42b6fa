package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/envlytics/analyte-resolver/internal/application/review"
	"github.com/envlytics/analyte-resolver/internal/domain/analyte"
	"github.com/envlytics/analyte-resolver/internal/domain/learning"
	"github.com/envlytics/analyte-resolver/pkg/errors"
	"github.com/envlytics/analyte-resolver/pkg/types/common"
)

type stubReview struct {
	lastValidate *review.ValidateInput
	lastQueue    *review.QueueInput
	validateOut  *review.ValidateOutput
	queueOut     *review.QueueOutput
	err          error
}

func (s *stubReview) Validate(_ context.Context, input *review.ValidateInput) (*review.ValidateOutput, error) {
	s.lastValidate = input
	if s.err != nil {
		return nil, s.err
	}
	return s.validateOut, nil
}

func (s *stubReview) Queue(_ context.Context, input *review.QueueInput) (*review.QueueOutput, error) {
	s.lastQueue = input
	if s.err != nil {
		return nil, s.err
	}
	return s.queueOut, nil
}

func (s *stubReview) BandSummary(context.Context) (map[string]int64, error) {
	return map[string]int64{"REVIEW": 3}, nil
}

func (s *stubReview) ClusterUnknowns(context.Context, *review.ClusterInput) ([]learning.Cluster, error) {
	return []learning.Cluster{{Anchor: "mystery compound"}}, nil
}

func reviewRouter(svc review.Service) *gin.Engine {
	r := gin.New()
	h := NewReviewHandler(svc)
	r.POST("/api/v1/decisions/:id/validation", h.Validate)
	r.GET("/api/v1/review-queue", h.Queue)
	r.GET("/api/v1/review-queue/summary", h.Summary)
	r.GET("/api/v1/review-queue/clusters", h.Clusters)
	return r
}

func TestValidateEndpoint(t *testing.T) {
	svc := &stubReview{validateOut: &review.ValidateOutput{
		Decision:  &analyte.MatchDecision{ID: 42, HumanValidated: true},
		Confirmed: true,
	}}
	r := reviewRouter(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/decisions/42/validation",
		strings.NewReader(`{"validated_analyte_id":"REG153_010","submission_id":700}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.lastValidate)
	assert.Equal(t, int64(42), svc.lastValidate.DecisionID)
	assert.Equal(t, "REG153_010", string(svc.lastValidate.ValidatedAnalyteID))
	assert.Equal(t, common.SubmissionID(700), svc.lastValidate.SubmissionID)
}

func TestValidateEndpointRejectsBadID(t *testing.T) {
	r := reviewRouter(&stubReview{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/decisions/abc/validation",
		strings.NewReader(`{"validated_analyte_id":"REG153_010"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestValidateEndpointConflictOnRevalidation(t *testing.T) {
	svc := &stubReview{err: errors.New(errors.CodeDecisionAlreadyReviewed, "decision already validated")}
	r := reviewRouter(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/decisions/42/validation",
		strings.NewReader(`{"validated_analyte_id":"REG153_010"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestQueueEndpoint(t *testing.T) {
	svc := &stubReview{queueOut: &review.QueueOutput{
		Items: []review.QueueItem{{DecisionID: 7, InputText: "Benzine"}},
		Total: 1,
	}}
	r := reviewRouter(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/review-queue?q=benz&lab_vendor=ALS&page=2&page_size=10", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.lastQueue)
	assert.Equal(t, "benz", svc.lastQueue.Text)
	assert.Equal(t, "ALS", string(svc.lastQueue.Vendor))
	assert.Equal(t, 2, svc.lastQueue.Page.Page)
	assert.Equal(t, 10, svc.lastQueue.Page.PageSize)
}

func TestSummaryEndpoint(t *testing.T) {
	r := reviewRouter(&stubReview{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/review-queue/summary", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Pending map[string]int64 `json:"pending_by_band"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, int64(3), body.Pending["REVIEW"])
}

func TestClustersEndpointValidatesThreshold(t *testing.T) {
	r := reviewRouter(&stubReview{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/review-queue/clusters?threshold=1.5", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/review-queue/clusters?threshold=0.9", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
