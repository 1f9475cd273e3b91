package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/machoalfa/eclesia-access/internal/core/domain"
	"github.com/machoalfa/eclesia-access/internal/usecase"
)

const maxAuditPageSize = 200

// AuditHandler exposes the audit log query and anomaly endpoints.
type AuditHandler struct {
	trail *usecase.AuditTrail
}

// NewAuditHandler constructs AuditHandler.
func NewAuditHandler(trail *usecase.AuditTrail) *AuditHandler {
	return &AuditHandler{trail: trail}
}

// RegisterRoutes binds audit routes onto the (already guarded) group.
func (h *AuditHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("", h.list)
	r.GET("/suspicious/:subject_id", h.suspicious)
	r.POST("/block/:subject_id", h.block)
}

func (h *AuditHandler) list(c *gin.Context) {
	filter, err := parseAuditFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, err.Error()))
		return
	}

	records, err := h.trail.Query(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to query audit log"))
		return
	}

	views := make([]AuditRecordView, 0, len(records))
	for _, record := range records {
		views = append(views, newAuditRecordView(record))
	}

	c.JSON(http.StatusOK, AuditListResponse{Records: views, Count: len(views)})
}

func (h *AuditHandler) suspicious(c *gin.Context) {
	subjectID := strings.TrimSpace(c.Param("subject_id"))
	if subjectID == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "subject_id is required"))
		return
	}

	report, err := h.trail.DetectSuspiciousActivity(c.Request.Context(), subjectID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to analyze activity"))
		return
	}

	reasons := report.Reasons
	if reasons == nil {
		reasons = []string{}
	}

	c.JSON(http.StatusOK, SuspiciousReportResponse{
		SubjectID: report.SubjectID,
		Flagged:   report.Flagged,
		Reasons:   reasons,
		From:      report.WindowStart,
		To:        report.WindowEnd,
	})
}

func (h *AuditHandler) block(c *gin.Context) {
	subjectID := strings.TrimSpace(c.Param("subject_id"))
	if subjectID == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "subject_id is required"))
		return
	}

	var req BlockSubjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid block payload"))
		return
	}

	if err := h.trail.BlockSuspiciousUser(c.Request.Context(), subjectID, req.Reason); err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to flag subject"))
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "subject flagged"})
}

func parseAuditFilter(c *gin.Context) (domain.AuditFilter, error) {
	filter := domain.AuditFilter{
		SubjectID:      strings.TrimSpace(c.Query("subject_id")),
		ActionContains: strings.TrimSpace(c.Query("action")),
	}

	if raw := c.Query("from"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return domain.AuditFilter{}, errInvalidQueryParam{"from"}
		}
		filter.From = &ts
	}

	if raw := c.Query("to"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return domain.AuditFilter{}, errInvalidQueryParam{"to"}
		}
		filter.To = &ts
	}

	if raw := c.Query("success"); raw != "" {
		success, err := strconv.ParseBool(raw)
		if err != nil {
			return domain.AuditFilter{}, errInvalidQueryParam{"success"}
		}
		filter.Success = &success
	}

	limit := maxAuditPageSize
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return domain.AuditFilter{}, errInvalidQueryParam{"limit"}
		}
		if parsed > 0 && parsed < limit {
			limit = parsed
		}
	}
	filter.Limit = limit

	return filter, nil
}

type errInvalidQueryParam struct {
	name string
}

func (e errInvalidQueryParam) Error() string {
	return "invalid query parameter: " + e.name
}
