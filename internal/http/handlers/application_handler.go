// Application (supply) HTTP handlers.
//
//   - POST   /applications                (payment-gated create, idempotent)
//   - GET    /supplies/{id}               (supply owner or demand owner)
//   - GET    /supplies/demand/{demandId}  (demand owner)
//   - GET    /supplies/user/{userId}      (owner)
//   - DELETE /supplies/{id}               (owner)
//
// Idempotency:
// When the client sends an Idempotency-Key and a record for (user,
// "applications", key) is still valid, the originally created supply is
// returned with `Idempotency-Replayed: true` and no payment is re-checked.
package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-match-backend/internal/domain"
	"github.com/tbourn/go-match-backend/internal/http/middleware"
	"github.com/tbourn/go-match-backend/internal/services"
	"github.com/tbourn/go-match-backend/internal/utils"
)

// ScopeApplications namespaces idempotency keys of POST /applications.
const ScopeApplications = "applications"

// CreateApplicationRequest is the JSON payload for applying to a demand.
type CreateApplicationRequest struct {
	DemandID              string `json:"demand_id" binding:"required" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	Content               string `json:"content" binding:"required" example:"Senior Go engineer, available next week, payments background"`
	Email                 string `json:"email" binding:"required" example:"seller@example.com"`
	Phone                 string `json:"phone" example:"+44 20 7946 0000"`
	PaymentConfirmationID string `json:"payment_confirmation_id" binding:"required" example:"pi_3Nabc123"`
}

// CreateApplicationResponse wraps a newly recorded application.
type CreateApplicationResponse struct {
	Supply domain.Supply `json:"supply"`
}

// ListSuppliesResponse wraps a page of supplies.
type ListSuppliesResponse struct {
	Supplies   []domain.Supply  `json:"supplies"`
	Pagination utils.Pagination `json:"pagination"`
}

// CreateApplication godoc
// @ID          createApplication
// @Summary     Apply to a demand
// @Description Verifies that the referenced payment is settled and bound to the demand, then records the application. One application per (demand, user) and per payment.
// @Description Supports idempotency via the Idempotency-Key header (same key, same result).
// @Tags        Applications
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  false "User ID (when JWT auth is disabled)"  example(user123)
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.CreateApplicationRequest  true  "Application payload"
//
// @Success     201  {object}  handlers.CreateApplicationResponse
// @Header      201  {string}  Idempotency-Replayed  "true when served from a stored result"
// @Failure     400  {object}  handlers.ErrorResponse  "Validation, expired demand, payment not completed or mismatched"
// @Failure     401  {object}  handlers.ErrorResponse  "No user identity"
// @Failure     404  {object}  handlers.ErrorResponse  "Demand not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Already applied or payment already used"
// @Failure     502  {object}  handlers.ErrorResponse  "Payment verification failed"
// @Router      /applications [post]
func (h *Handlers) CreateApplication(c *gin.Context) {
	uid, found := requireUser(c)
	if !found {
		return
	}
	ctx := c.Request.Context()

	// Replay path.
	idemKey, _ := middleware.GetIdempotencyKey(c)
	scope := middleware.IdempotencyScope(c)
	if scope == "" {
		scope = ScopeApplications
	}
	if idemKey != "" && h.idem != nil {
		if rec, err := h.idem.Get(ctx, uid, scope, idemKey, h.now().UTC()); err == nil && rec != nil {
			if s, err := h.apps.Get(ctx, uid, rec.ResourceID); err == nil {
				c.Header(middleware.HeaderIdempotencyReplayed, "true")
				ok(c, rec.Status, CreateApplicationResponse{Supply: *s})
				return
			}
		}
	}

	var req CreateApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	s, err := h.apps.CreateApplication(ctx, services.CreateApplicationInput{
		UserID:    uid,
		DemandID:  req.DemandID,
		Content:   req.Content,
		Email:     req.Email,
		Phone:     req.Phone,
		PaymentID: req.PaymentConfirmationID,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	// Store path, best effort.
	if idemKey != "" && h.idem != nil {
		if err := h.idem.Put(ctx, uid, scope, idemKey, s.ID, http.StatusCreated, h.now().UTC(), h.idemTTL); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency record not stored")
		}
	}
	ok(c, http.StatusCreated, CreateApplicationResponse{Supply: *s})
}

// GetSupply godoc
// @ID          getSupply
// @Summary     Read an application
// @Tags        Applications
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (when JWT auth is disabled)"  example(user123)
// @Param       id         path    string  true  "Supply ID (UUID)"  format(uuid)
//
// @Success     200  {object}  domain.Supply
// @Failure     401  {object}  handlers.ErrorResponse  "No user identity"
// @Failure     403  {object}  handlers.ErrorResponse  "Neither applicant nor demand owner"
// @Failure     404  {object}  handlers.ErrorResponse  "Supply not found"
// @Router      /supplies/{id} [get]
func (h *Handlers) GetSupply(c *gin.Context) {
	uid, found := requireUser(c)
	if !found {
		return
	}
	s, err := h.apps.Get(c.Request.Context(), uid, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, s)
}

// ListDemandSupplies godoc
// @ID          listDemandSupplies
// @Summary     List applications to a demand
// @Description Demand owner only. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Applications
// @Produce     json
//
// @Param       X-User-ID      header  string  false "User ID (when JWT auth is disabled)"  example(user123)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       demandId       path    string  true  "Demand ID (UUID)"  format(uuid)
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListSuppliesResponse
// @Success     304  {string}  string  "Not Modified"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the demand owner"
// @Failure     404  {object}  handlers.ErrorResponse  "Demand not found"
// @Router      /supplies/demand/{demandId} [get]
func (h *Handlers) ListDemandSupplies(c *gin.Context) {
	uid, found := requireUser(c)
	if !found {
		return
	}
	demandID := c.Param("demandId")
	items, err := h.apps.ListByDemand(c.Request.Context(), uid, demandID)
	if err != nil {
		writeError(c, err)
		return
	}
	etag := supplyETag("demand:"+demandID, items)
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return
	}
	h.writeSupplies(c, items)
}

// ListUserSupplies godoc
// @ID          listUserSupplies
// @Summary     List a user's applications
// @Description Owner only.
// @Tags        Applications
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (when JWT auth is disabled)"  example(user123)
// @Param       userId     path    string  true  "Owner user ID"
// @Param       page       query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size  query   int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListSuppliesResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Not the owner"
// @Router      /supplies/user/{userId} [get]
func (h *Handlers) ListUserSupplies(c *gin.Context) {
	uid, found := requireUser(c)
	if !found {
		return
	}
	items, err := h.apps.ListByUser(c.Request.Context(), uid, c.Param("userId"))
	if err != nil {
		writeError(c, err)
		return
	}
	h.writeSupplies(c, items)
}

// DeleteSupply godoc
// @ID          deleteSupply
// @Summary     Withdraw an application
// @Description Owner only. Removing the row frees its (demand, user) and payment uniqueness slots.
// @Tags        Applications
//
// @Param       X-User-ID  header  string  false "User ID (when JWT auth is disabled)"  example(user123)
// @Param       id         path    string  true  "Supply ID (UUID)"  format(uuid)
//
// @Success     204  {string}  string  "No Content"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the owner"
// @Failure     404  {object}  handlers.ErrorResponse  "Supply not found"
// @Router      /supplies/{id} [delete]
func (h *Handlers) DeleteSupply(c *gin.Context) {
	uid, found := requireUser(c)
	if !found {
		return
	}
	if err := h.apps.Delete(c.Request.Context(), uid, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	noContent(c)
}

func (h *Handlers) writeSupplies(c *gin.Context, items []domain.Supply) {
	page, size := utils.ClampPage(c.Query("page"), c.Query("page_size"))
	window, meta := utils.Paginate(items, page, size)
	ok(c, http.StatusOK, ListSuppliesResponse{Supplies: window, Pagination: meta})
}

// supplyETag derives a weak ETag from the count and newest created_at.
func supplyETag(prefix string, items []domain.Supply) string {
	var newest time.Time
	for _, s := range items {
		if s.CreatedAt.After(newest) {
			newest = s.CreatedAt
		}
	}
	var ts int64
	if !newest.IsZero() {
		ts = newest.UnixNano()
	}
	return fmt.Sprintf(`W/"supplies:%s:%d:%d"`, prefix, len(items), ts)
}
