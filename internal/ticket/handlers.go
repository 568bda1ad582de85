package ticket

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kmills/brokerdesk/internal/intake"
	"github.com/kmills/brokerdesk/internal/logging"
	"github.com/kmills/brokerdesk/internal/platform"
	"github.com/kmills/brokerdesk/internal/tier"
	"github.com/kmills/brokerdesk/internal/validation"
)

// Handler exposes the ticket lifecycle over HTTP.
type Handler struct {
	service *Service
	catalog *tier.Catalog
}

// NewHandler creates the HTTP handler for ticket operations.
func NewHandler(service *Service, catalog *tier.Catalog) *Handler {
	return &Handler{service: service, catalog: catalog}
}

// RegisterRoutes mounts the ticket routes on a router group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/panel", h.Panel)
	r.POST("/tickets", h.Create)
	r.GET("/tickets", h.List)
	r.GET("/tickets/:channel", h.Get)
	r.POST("/tickets/:channel/claim", h.Claim)
	r.POST("/tickets/:channel/unclaim", h.Unclaim)
	r.POST("/tickets/:channel/close", h.Close)
	r.POST("/tickets/:channel/participants", h.AddParticipant)
	r.DELETE("/tickets/:channel/participants/:member", h.RemoveParticipant)
	r.POST("/tickets/:channel/proof", h.RecordProof)
	r.POST("/interactions", h.Interact)
	r.POST("/completions", h.RecordCompletion)
	r.GET("/staff/:id/stats", h.StaffStats)
	r.GET("/leaderboard", h.Leaderboard)
}

type actorRequest struct {
	ID    string         `json:"id"`
	Roles []tier.RoleRef `json:"roles"`
	Admin bool           `json:"admin"`
}

func (a actorRequest) actor() Actor {
	return Actor{ID: a.ID, Roles: a.Roles, Admin: a.Admin}
}

// checkActor validates the acting principal's reference.
func checkActor(a actorRequest) validation.ValidationErrors {
	return validation.Validate(
		validation.Required("id", a.ID),
		validation.ValidRef("id", a.ID),
	)
}

func validationFailed(c *gin.Context, errs validation.ValidationErrors) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "validation_error",
		"message": errs.Error(),
		"details": errs,
	})
}

// Panel returns the intake descriptor clients render as the ticket panel:
// the tier list and the form schema for each request kind.
func (h *Handler) Panel(c *gin.Context) {
	kinds := make([]gin.H, 0, len(intake.Kinds()))
	for _, k := range intake.Kinds() {
		fields, err := intake.Schema(k)
		if err != nil {
			continue
		}
		kinds = append(kinds, gin.H{"kind": k, "fields": fields})
	}
	c.JSON(http.StatusOK, gin.H{
		"tiers": h.catalog.All(),
		"kinds": kinds,
	})
}

// Create opens a new ticket from an intake submission.
func (h *Handler) Create(c *gin.Context) {
	var req intake.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if errs := validation.Validate(
		validation.Required("requesterId", req.RequesterID),
		validation.MaxLength("requesterId", req.RequesterID, 64),
	); len(errs) > 0 {
		validationFailed(c, errs)
		return
	}
	for name, value := range req.Fields {
		req.Fields[name] = validation.SanitizeString(value, validation.MaxStringLength)
	}

	t, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

// List returns all active tickets.
func (h *Handler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tickets": h.service.List()})
}

// Get returns one ticket by channel reference.
func (h *Handler) Get(c *gin.Context) {
	t, err := h.service.Get(c.Param("channel"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// Claim assigns the ticket to the requesting staff member.
func (h *Handler) Claim(c *gin.Context) {
	var req actorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if errs := checkActor(req); len(errs) > 0 {
		validationFailed(c, errs)
		return
	}

	t, err := h.service.Claim(c.Request.Context(), c.Param("channel"), req.actor())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// Unclaim releases the claim on a ticket.
func (h *Handler) Unclaim(c *gin.Context) {
	var req actorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if errs := checkActor(req); len(errs) > 0 {
		validationFailed(c, errs)
		return
	}

	t, err := h.service.Unclaim(c.Request.Context(), c.Param("channel"), req.actor())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// Close removes the ticket and schedules the channel for deletion.
func (h *Handler) Close(c *gin.Context) {
	var req actorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if errs := checkActor(req); len(errs) > 0 {
		validationFailed(c, errs)
		return
	}

	if err := h.service.Close(c.Request.Context(), c.Param("channel"), req.actor()); err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "closed"})
}

type interactionRequest struct {
	Kind    intake.InteractionKind `json:"kind" binding:"required"`
	Channel string                 `json:"channel"`
	Actor   actorRequest           `json:"actor"`
	Request *intake.Request        `json:"request"`
}

// Interact resolves a panel interaction from the platform adapter through the
// fixed dispatch table and runs the engine operation it maps to. Interactions
// outside the closed set are rejected.
func (h *Handler) Interact(c *gin.Context) {
	var req interactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	op, ok := intake.Dispatch(req.Kind)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown interaction kind"})
		return
	}

	// open_panel carries no engine operation; answer with the panel payload.
	if req.Kind == intake.InteractionOpenPanel {
		h.Panel(c)
		return
	}

	switch op {
	case intake.OpCreate:
		if req.Request == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing intake submission"})
			return
		}
		t, err := h.service.Create(c.Request.Context(), *req.Request)
		if err != nil {
			h.handleError(c, err)
			return
		}
		c.JSON(http.StatusCreated, t)

	case intake.OpClaim, intake.OpUnclaim, intake.OpClose:
		if errs := validation.Validate(
			validation.Required("channel", req.Channel),
			validation.Required("actor.id", req.Actor.ID),
			validation.ValidRef("actor.id", req.Actor.ID),
		); len(errs) > 0 {
			validationFailed(c, errs)
			return
		}
		h.runChannelOp(c, op, req.Channel, req.Actor.actor())

	default:
		c.JSON(http.StatusOK, gin.H{"op": op, "status": "ignored"})
	}
}

// runChannelOp executes a dispatched claim, unclaim, or close.
func (h *Handler) runChannelOp(c *gin.Context, op intake.Operation, channelRef string, actor Actor) {
	switch op {
	case intake.OpClaim:
		t, err := h.service.Claim(c.Request.Context(), channelRef, actor)
		if err != nil {
			h.handleError(c, err)
			return
		}
		c.JSON(http.StatusOK, t)
	case intake.OpUnclaim:
		t, err := h.service.Unclaim(c.Request.Context(), channelRef, actor)
		if err != nil {
			h.handleError(c, err)
			return
		}
		c.JSON(http.StatusOK, t)
	case intake.OpClose:
		if err := h.service.Close(c.Request.Context(), channelRef, actor); err != nil {
			h.handleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "closed"})
	}
}

type participantRequest struct {
	MemberID string `json:"memberId"`
}

// AddParticipant grants a member access to the ticket channel.
func (h *Handler) AddParticipant(c *gin.Context) {
	var req participantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if errs := validation.Validate(
		validation.Required("memberId", req.MemberID),
		validation.ValidRef("memberId", req.MemberID),
	); len(errs) > 0 {
		validationFailed(c, errs)
		return
	}

	if err := h.service.AddParticipant(c.Request.Context(), c.Param("channel"), req.MemberID); err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "added"})
}

// RemoveParticipant revokes a member's access to the ticket channel.
func (h *Handler) RemoveParticipant(c *gin.Context) {
	memberID := c.Param("member")
	if errs := validation.Validate(validation.ValidRef("memberId", memberID)); len(errs) > 0 {
		validationFailed(c, errs)
		return
	}

	err := h.service.RemoveParticipant(c.Request.Context(), c.Param("channel"), memberID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}

type proofRequest struct {
	StaffID string `json:"staffId"`
}

// checkStaff validates a staff member reference from a request body.
func checkStaff(staffID string) validation.ValidationErrors {
	return validation.Validate(
		validation.Required("staffId", staffID),
		validation.ValidRef("staffId", staffID),
	)
}

// RecordProof records a completion against the ticket in this channel and
// posts the ticket details to the proof channel.
func (h *Handler) RecordProof(c *gin.Context) {
	var req proofRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if errs := checkStaff(req.StaffID); len(errs) > 0 {
		validationFailed(c, errs)
		return
	}

	t, err := h.service.Get(c.Param("channel"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	details := make(map[string]string, len(t.Payload)+2)
	for k, v := range t.Payload {
		details[k] = v
	}
	details["requester"] = t.RequesterID
	details["tier"] = t.TierKey

	count := h.service.RecordCompletion(c.Request.Context(), req.StaffID, details)
	c.JSON(http.StatusOK, gin.H{"staffId": req.StaffID, "count": count})
}

type completionRequest struct {
	StaffID string `json:"staffId"`
}

// RecordCompletion increments a staff member's completed count without a
// ticket attached.
func (h *Handler) RecordCompletion(c *gin.Context) {
	var req completionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if errs := checkStaff(req.StaffID); len(errs) > 0 {
		validationFailed(c, errs)
		return
	}

	count := h.service.RecordCompletion(c.Request.Context(), req.StaffID, nil)
	c.JSON(http.StatusOK, gin.H{"staffId": req.StaffID, "count": count})
}

// StaffStats returns one staff member's completed count and leaderboard rank.
func (h *Handler) StaffStats(c *gin.Context) {
	staffID := c.Param("id")
	ledger := h.service.Stats()

	resp := gin.H{
		"staffId": staffID,
		"count":   ledger.Count(staffID),
	}
	if position, total, ok := ledger.Rank(staffID); ok {
		resp["rank"] = position
		resp["totalStaff"] = total
	}
	c.JSON(http.StatusOK, resp)
}

// Leaderboard returns the top staff by completed count. Defaults to 10.
func (h *Handler) Leaderboard(c *gin.Context) {
	limit := 10
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": h.service.Stats().Top(limit)})
}

// handleError maps service errors to HTTP status codes.
func (h *Handler) handleError(c *gin.Context, err error) {
	log := logging.FromContext(c.Request.Context())

	var claimed *AlreadyClaimedError
	switch {
	case errors.As(err, &claimed):
		c.JSON(http.StatusConflict, gin.H{
			"error":      "ticket already claimed",
			"claimantId": claimed.ClaimantID,
		})
	case errors.Is(err, ErrTicketNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
	case errors.Is(err, ErrDuplicateChannel):
		c.JSON(http.StatusConflict, gin.H{"error": "channel already has a ticket"})
	case errors.Is(err, ErrNotClaimed):
		c.JSON(http.StatusConflict, gin.H{"error": "ticket is not claimed"})
	case errors.Is(err, ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "not permitted"})
	case errors.Is(err, tier.ErrTierNotFound):
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown tier"})
	case errors.Is(err, intake.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, platform.ErrGateway):
		log.Error("gateway failure", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "chat platform unavailable"})
	default:
		log.Error("unexpected error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
