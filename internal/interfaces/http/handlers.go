package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/trip-approval/internal/application/service"
	"github.com/garyjia/trip-approval/internal/domain/entity"
	"github.com/garyjia/trip-approval/internal/domain/workflow"
	"github.com/garyjia/trip-approval/pkg/utils"
)

// HeaderUserID carries the authenticated caller. Authentication happens upstream.
const HeaderUserID = "X-User-ID"

// Handlers contains all HTTP request handlers
type Handlers struct {
	approvalService service.ApprovalService
	health          HealthChecker
	logger          Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(approvalService service.ApprovalService, health HealthChecker, logger Logger) *Handlers {
	return &Handlers{
		approvalService: approvalService,
		health:          health,
		logger:          logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// ResolveRequest is the body of POST /api/v1/approvals/resolve
type ResolveRequest struct {
	PositionLevel  entity.PositionLevel `json:"position_level" binding:"required"`
	UserSegment    entity.UserSegment   `json:"user_segment" binding:"required"`
	IsBusinessTrip bool                 `json:"is_business_trip"`
}

// ResolveResponse carries the resolved pathway
type ResolveResponse struct {
	ApprovalType entity.ApprovalType `json:"approval_type"`
}

// RequesterPayload describes the traveller in a create request
type RequesterPayload struct {
	ID            string               `json:"id" binding:"required"`
	PositionLevel entity.PositionLevel `json:"position_level" binding:"required"`
	UserSegment   entity.UserSegment   `json:"user_segment" binding:"required"`
	ManagerID     string               `json:"manager_id"`
}

// CreateBookingRequest is the body of POST /api/v1/approvals
type CreateBookingRequest struct {
	BookingID      string             `json:"booking_id"`
	Kind           entity.BookingKind `json:"kind"`
	IsBusinessTrip bool               `json:"is_business_trip"`
	Requester      RequesterPayload   `json:"requester" binding:"required"`
}

// DecisionRequest is the optional body of approve and reject calls
type DecisionRequest struct {
	Notes *string `json:"notes"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   "1.0.0",
	}

	if h.health != nil {
		if err := h.health(c.Request.Context()); err != nil {
			h.logger.Error("Health check failed", "error", err)
			response.Status = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, Response{
				Success: false,
				Data:    response,
				Error:   err.Error(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    response,
	})
}

// ResolveApprovalType handles POST /api/v1/approvals/resolve
func (h *Handlers) ResolveApprovalType(c *gin.Context) {
	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if !req.PositionLevel.IsValid() {
		badRequest(c, "unknown position_level")
		return
	}
	if !req.UserSegment.IsValid() {
		badRequest(c, "unknown user_segment")
		return
	}

	requester := entity.Requester{PositionLevel: req.PositionLevel, UserSegment: req.UserSegment}
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    ResolveResponse{ApprovalType: h.approvalService.ResolveApprovalType(requester, req.IsBusinessTrip)},
	})
}

// CreateBooking handles POST /api/v1/approvals
func (h *Handlers) CreateBooking(c *gin.Context) {
	var req CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if err := utils.ValidateUserID(req.Requester.ID); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.Requester.ManagerID != "" {
		if err := utils.ValidateUserID(req.Requester.ManagerID); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	if !req.Requester.PositionLevel.IsValid() || !req.Requester.UserSegment.IsValid() {
		badRequest(c, "unknown position_level or user_segment")
		return
	}

	booking := &entity.Booking{
		ID:             req.BookingID,
		RequesterID:    req.Requester.ID,
		Kind:           req.Kind,
		IsBusinessTrip: req.IsBusinessTrip,
	}
	requester := entity.Requester{
		ID:            req.Requester.ID,
		PositionLevel: req.Requester.PositionLevel,
		UserSegment:   req.Requester.UserSegment,
		ManagerID:     req.Requester.ManagerID,
	}

	result, err := h.approvalService.CreateBookingWithApproval(c.Request.Context(), booking, requester)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: result})
}

// Approve handles POST /api/v1/approvals/:id/approve
func (h *Handlers) Approve(c *gin.Context) {
	h.decide(c, h.approvalService.Approve)
}

// Reject handles POST /api/v1/approvals/:id/reject
func (h *Handlers) Reject(c *gin.Context) {
	h.decide(c, h.approvalService.Reject)
}

type decisionFunc func(ctx context.Context, approvalID, approverID string, notes *string) (*entity.ApprovalRecord, error)

func (h *Handlers) decide(c *gin.Context, fn decisionFunc) {
	approverID, ok := callerID(c)
	if !ok {
		return
	}

	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "invalid request body")
		return
	}
	notes, err := utils.NormalizeNotes(req.Notes)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	record, err := fn(c.Request.Context(), c.Param("id"), approverID, notes)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: record})
}

// GetApproval handles GET /api/v1/approvals/:id
func (h *Handlers) GetApproval(c *gin.Context) {
	record, err := h.approvalService.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: record})
}

// GetByBooking handles GET /api/v1/approvals/booking/:bookingId
func (h *Handlers) GetByBooking(c *gin.Context) {
	record, err := h.approvalService.FindByBookingID(c.Request.Context(), c.Param("bookingId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: record})
}

// ListPending handles GET /api/v1/approvals/pending
func (h *Handlers) ListPending(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	records, err := h.approvalService.GetPendingForApprover(c.Request.Context(), userID)
	h.writeList(c, records, err)
}

// ListMine handles GET /api/v1/approvals/mine
func (h *Handlers) ListMine(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	records, err := h.approvalService.GetMyRequests(c.Request.Context(), userID)
	h.writeList(c, records, err)
}

// ListHistory handles GET /api/v1/approvals/history
func (h *Handlers) ListHistory(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	records, err := h.approvalService.GetApproverHistory(c.Request.Context(), userID)
	h.writeList(c, records, err)
}

func (h *Handlers) writeList(c *gin.Context, records []*entity.ApprovalRecord, err error) {
	if err != nil {
		h.writeError(c, err)
		return
	}
	if records == nil {
		records = []*entity.ApprovalRecord{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: records})
}

// writeError maps the workflow error taxonomy onto HTTP status codes.
// Internal errors are logged and hidden from the caller.
func (h *Handlers) writeError(c *gin.Context, err error) {
	kind := workflow.Kind(err)
	status := statusForKind(kind)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", "path", c.Request.URL.Path, "error", err)
		message = "internal server error"
	}
	c.JSON(status, Response{Success: false, Error: message, Code: string(kind)})
}

func statusForKind(kind workflow.ErrorKind) int {
	switch kind {
	case workflow.KindValidation:
		return http.StatusBadRequest
	case workflow.KindNotFound:
		return http.StatusNotFound
	case workflow.KindForbidden:
		return http.StatusForbidden
	case workflow.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func callerID(c *gin.Context) (string, bool) {
	id := c.GetHeader(HeaderUserID)
	if id == "" {
		c.JSON(http.StatusUnauthorized, Response{Success: false, Error: HeaderUserID + " header is required"})
		return "", false
	}
	if err := utils.ValidateUserID(id); err != nil {
		badRequest(c, err.Error())
		return "", false
	}
	return id, true
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Error:   message,
		Code:    string(workflow.KindValidation),
	})
}
