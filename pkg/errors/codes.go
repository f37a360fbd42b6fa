package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Sentinel codes GetCode reports when no AppError is present.
const (
	CodeOK      ErrorCode = "OK"
	CodeUnknown ErrorCode = "UNKNOWN"
)

// Common Error Codes
const (
	CodeInternal           ErrorCode = "COMMON_001"
	CodeInvalidParam       ErrorCode = "COMMON_002"
	CodeUnauthorized       ErrorCode = "COMMON_003"
	CodeForbidden          ErrorCode = "COMMON_004"
	CodeNotFound           ErrorCode = "COMMON_005"
	CodeConflict           ErrorCode = "COMMON_006"
	CodeRateLimit          ErrorCode = "COMMON_007"
	CodeServiceUnavailable ErrorCode = "COMMON_008"
	CodeTimeout            ErrorCode = "COMMON_009"
	CodeValidation         ErrorCode = "COMMON_010"
	CodeSerialization      ErrorCode = "COMMON_011"
	CodeDatabaseError      ErrorCode = "COMMON_012"
	CodeCacheError         ErrorCode = "COMMON_013"
	CodeExternalService    ErrorCode = "COMMON_014"
	CodeNotImplemented     ErrorCode = "COMMON_015"
)

// Infrastructure Error Codes
const (
	CodeDBConnectionError ErrorCode = "DB_001"
	CodeDBQueryError      ErrorCode = "DB_002"
	CodeMessageQueueError ErrorCode = "MQ_001"
	CodeStorageError      ErrorCode = "STORE_001"
)

// Resolution Module Error Codes
const (
	CodeResolutionFailed        ErrorCode = "RES_001"
	CodeEmptyObservedName       ErrorCode = "RES_002"
	CodeAnalyteNotFound         ErrorCode = "RES_003"
	CodeEmbeddingFailed         ErrorCode = "RES_004"
	CodeVectorSearchFailed      ErrorCode = "RES_005"
	CodeInvalidCASNumber        ErrorCode = "RES_006"
	CodeDecisionNotFound        ErrorCode = "RES_007"
	CodeDecisionAlreadyReviewed ErrorCode = "RES_008"
)

// Corpus Index Error Codes
const (
	CodeIndexUnavailable   ErrorCode = "IDX_001"
	CodeIndexBuildFailed   ErrorCode = "IDX_002"
	CodeSnapshotStaleRead  ErrorCode = "IDX_003"
	CodeSnapshotStoreError ErrorCode = "IDX_004"
)

// Synonym Ingestion Error Codes
const (
	CodeSynonymAlreadyExists  ErrorCode = "SYN_001"
	CodeSynonymCollision      ErrorCode = "SYN_002"
	CodeDailyCapExceeded      ErrorCode = "SYN_003"
	CodeConsensusInsufficient ErrorCode = "SYN_004"
	CodeSynonymNotFound       ErrorCode = "SYN_005"
)

// Vendor Prior Error Codes
const (
	CodeVariantNotFound    ErrorCode = "VAR_001"
	CodeVariantUnstable    ErrorCode = "VAR_002"
	CodeConfirmationExists ErrorCode = "VAR_003"
	CodeVendorStatsMissing ErrorCode = "VAR_004"
)

// Threshold Calibration Error Codes
const (
	CodeCalibrationFailed       ErrorCode = "CAL_001"
	CodeCalibrationDataTooSmall ErrorCode = "CAL_002"
	CodeThresholdBelowFloor     ErrorCode = "CAL_003"
	CodeClusteringFailed        ErrorCode = "CAL_004"
)

// ErrorCodeHTTPStatus maps ErrorCodes to HTTP status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	CodeInternal:           http.StatusInternalServerError,
	CodeInvalidParam:       http.StatusBadRequest,
	CodeUnauthorized:       http.StatusUnauthorized,
	CodeForbidden:          http.StatusForbidden,
	CodeNotFound:           http.StatusNotFound,
	CodeConflict:           http.StatusConflict,
	CodeRateLimit:          http.StatusTooManyRequests,
	CodeServiceUnavailable: http.StatusServiceUnavailable,
	CodeTimeout:            http.StatusGatewayTimeout,
	CodeValidation:         http.StatusUnprocessableEntity,
	CodeSerialization:      http.StatusInternalServerError,
	CodeDatabaseError:      http.StatusInternalServerError,
	CodeCacheError:         http.StatusInternalServerError,
	CodeExternalService:    http.StatusInternalServerError,
	CodeNotImplemented:     http.StatusNotImplemented,

	CodeDBConnectionError: http.StatusInternalServerError,
	CodeDBQueryError:      http.StatusInternalServerError,
	CodeMessageQueueError: http.StatusInternalServerError,
	CodeStorageError:      http.StatusInternalServerError,

	CodeResolutionFailed:        http.StatusInternalServerError,
	CodeEmptyObservedName:       http.StatusBadRequest,
	CodeAnalyteNotFound:         http.StatusNotFound,
	CodeEmbeddingFailed:         http.StatusInternalServerError,
	CodeVectorSearchFailed:      http.StatusInternalServerError,
	CodeInvalidCASNumber:        http.StatusBadRequest,
	CodeDecisionNotFound:        http.StatusNotFound,
	CodeDecisionAlreadyReviewed: http.StatusConflict,

	CodeIndexUnavailable:   http.StatusServiceUnavailable,
	CodeIndexBuildFailed:   http.StatusInternalServerError,
	CodeSnapshotStaleRead:  http.StatusServiceUnavailable,
	CodeSnapshotStoreError: http.StatusInternalServerError,

	CodeSynonymAlreadyExists:  http.StatusConflict,
	CodeSynonymCollision:      http.StatusConflict,
	CodeDailyCapExceeded:      http.StatusTooManyRequests,
	CodeConsensusInsufficient: http.StatusUnprocessableEntity,
	CodeSynonymNotFound:       http.StatusNotFound,

	CodeVariantNotFound:    http.StatusNotFound,
	CodeVariantUnstable:    http.StatusConflict,
	CodeConfirmationExists: http.StatusConflict,
	CodeVendorStatsMissing: http.StatusNotFound,

	CodeCalibrationFailed:       http.StatusInternalServerError,
	CodeCalibrationDataTooSmall: http.StatusUnprocessableEntity,
	CodeThresholdBelowFloor:     http.StatusUnprocessableEntity,
	CodeClusteringFailed:        http.StatusInternalServerError,
}

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	CodeInternal:           "internal server error",
	CodeInvalidParam:       "bad request",
	CodeUnauthorized:       "unauthorized",
	CodeForbidden:          "forbidden",
	CodeNotFound:           "resource not found",
	CodeConflict:           "resource conflict",
	CodeRateLimit:          "too many requests",
	CodeServiceUnavailable: "service unavailable",
	CodeTimeout:            "request timeout",
	CodeValidation:         "validation failed",
	CodeSerialization:      "serialization failed",
	CodeDatabaseError:      "database error",
	CodeCacheError:         "cache error",
	CodeExternalService:    "external service error",
	CodeNotImplemented:     "not implemented",

	CodeDBConnectionError: "database connection failed",
	CodeDBQueryError:      "database query failed",
	CodeMessageQueueError: "message queue error",
	CodeStorageError:      "object storage error",

	CodeResolutionFailed:        "name resolution failed",
	CodeEmptyObservedName:       "observed name is empty after normalization",
	CodeAnalyteNotFound:         "analyte not found",
	CodeEmbeddingFailed:         "failed to embed observed name",
	CodeVectorSearchFailed:      "vector similarity search failed",
	CodeInvalidCASNumber:        "invalid CAS registry number",
	CodeDecisionNotFound:        "match decision not found",
	CodeDecisionAlreadyReviewed: "match decision already reviewed",

	CodeIndexUnavailable:   "corpus index unavailable",
	CodeIndexBuildFailed:   "corpus index build failed",
	CodeSnapshotStaleRead:  "corpus snapshot is stale",
	CodeSnapshotStoreError: "failed to persist corpus snapshot",

	CodeSynonymAlreadyExists:  "synonym already present in corpus",
	CodeSynonymCollision:      "normalized synonym collides with another analyte",
	CodeDailyCapExceeded:      "daily synonym promotion cap exceeded",
	CodeConsensusInsufficient: "insufficient cross-submission consensus",
	CodeSynonymNotFound:       "synonym not found",

	CodeVariantNotFound:    "lab variant not found",
	CodeVariantUnstable:    "lab variant is in unstable cooldown",
	CodeConfirmationExists: "confirmation already recorded for this submission",
	CodeVendorStatsMissing: "no accuracy statistics for vendor",

	CodeCalibrationFailed:       "threshold calibration failed",
	CodeCalibrationDataTooSmall: "not enough validated decisions to calibrate",
	CodeThresholdBelowFloor:     "calibrated threshold violates safety floor",
	CodeClusteringFailed:        "variant clustering failed",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError returns true if the ErrorCode corresponds to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError returns true if the ErrorCode corresponds to a 5xx HTTP status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
