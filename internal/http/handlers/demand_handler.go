// Demand HTTP handlers.
//
// This file wires the handler set to its services and exposes the demand
// endpoints:
//   - POST /demands                 (create)
//   - GET  /demands/{id}            (read, contact details redacted for strangers)
//   - GET  /demands/user/{userId}   (owner listing, paginated, weak ETag)
//
// Handlers are transport-thin: they bind input, resolve the caller, call a
// service and translate the result (or error) into an HTTP response.
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-match-backend/internal/domain"
	"github.com/tbourn/go-match-backend/internal/http/middleware"
	"github.com/tbourn/go-match-backend/internal/quota"
	"github.com/tbourn/go-match-backend/internal/services"
	"github.com/tbourn/go-match-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// DemandService is the demand lifecycle consumed by the handlers.
type DemandService interface {
	Create(ctx context.Context, in services.CreateDemandInput) (*domain.Demand, error)
	Get(ctx context.Context, requesterID, id string) (*services.DemandView, error)
	ListByUser(ctx context.Context, requesterID, userID string) ([]domain.Demand, error)
	Stats(ctx context.Context, userID string) (int64, *time.Time, error)
}

// SearchService is the rate-limited semantic matcher.
type SearchService interface {
	Search(ctx context.Context, userID, query string) (*services.SearchResult, error)
	Quota(ctx context.Context, userID string) (quota.Decision, error)
}

// ApplicationService creates and reads supplies.
type ApplicationService interface {
	CreateApplication(ctx context.Context, in services.CreateApplicationInput) (*domain.Supply, error)
	Get(ctx context.Context, requesterID, id string) (*domain.Supply, error)
	ListByDemand(ctx context.Context, requesterID, demandID string) ([]domain.Supply, error)
	ListByUser(ctx context.Context, requesterID, userID string) ([]domain.Supply, error)
	Delete(ctx context.Context, requesterID, id string) error
}

// PaymentService opens and inspects application payment intents.
type PaymentService interface {
	CreateIntent(ctx context.Context, userID, demandID string) (*services.IntentResult, error)
	Verify(ctx context.Context, userID, paymentID string) (*services.VerifyResult, error)
}

// IdempotencyStore persists the outcome of idempotent creates.
type IdempotencyStore interface {
	Get(ctx context.Context, userID, scope, key string, now time.Time) (*domain.Idempotency, error)
	Put(ctx context.Context, userID, scope, key, resourceID string, status int, now time.Time, ttl time.Duration) error
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints of the marketplace.
type Handlers struct {
	demands  DemandService
	matcher  SearchService
	apps     ApplicationService
	payments PaymentService

	idem    IdempotencyStore
	idemTTL time.Duration
	now     func() time.Time
}

// New constructs a Handlers bound to the given services.
func New(demands DemandService, matcher SearchService, apps ApplicationService, payments PaymentService) *Handlers {
	return &Handlers{
		demands:  demands,
		matcher:  matcher,
		apps:     apps,
		payments: payments,
		now:      time.Now,
	}
}

// WithIdempotency enables Idempotency-Key replay on POST /applications.
func (h *Handlers) WithIdempotency(store IdempotencyStore, ttl time.Duration) *Handlers {
	h.idem = store
	h.idemTTL = ttl
	return h
}

// WithClock overrides the clock used for idempotency bookkeeping.
func (h *Handlers) WithClock(now func() time.Time) *Handlers {
	if now != nil {
		h.now = now
	}
	return h
}

//
// DTOs
//

// CreateDemandRequest is the JSON payload for posting a demand.
type CreateDemandRequest struct {
	Content string `json:"content" binding:"required" example:"Looking for a freelance Go developer to build a payments microservice, 3 months"`
	Days    int    `json:"days" binding:"required" example:"30"`
	Email   string `json:"email" binding:"required" example:"buyer@example.com"`
	Phone   string `json:"phone" example:"+44 20 7946 0958"`
}

// CreateDemandResponse wraps a newly posted demand.
type CreateDemandResponse struct {
	Demand domain.Demand `json:"demand"`
}

// ListDemandsResponse wraps a page of the owner's demands.
type ListDemandsResponse struct {
	Demands    []domain.Demand  `json:"demands"`
	Pagination utils.Pagination `json:"pagination"`
}

//
// Handlers
//

// CreateDemand godoc
// @ID          createDemand
// @Summary     Post a demand
// @Description Stores and indexes a demand for the current user. It expires after `days` whole days.
// @Tags        Demands
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (when JWT auth is disabled)"  example(user123)
// @Param       body       body    handlers.CreateDemandRequest  true  "Demand payload"
//
// @Success     201  {object}  handlers.CreateDemandResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Validation error"
// @Failure     401  {object}  handlers.ErrorResponse  "No user identity"
// @Failure     502  {object}  handlers.ErrorResponse  "Embedding or index failure"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /demands [post]
func (h *Handlers) CreateDemand(c *gin.Context) {
	uid, found := requireUser(c)
	if !found {
		return
	}
	var req CreateDemandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	d, err := h.demands.Create(c.Request.Context(), services.CreateDemandInput{
		UserID:  uid,
		Content: req.Content,
		Email:   req.Email,
		Phone:   req.Phone,
		Days:    req.Days,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Location", c.FullPath()+"/"+d.ID)
	ok(c, http.StatusCreated, CreateDemandResponse{Demand: *d})
}

// GetDemand godoc
// @ID          getDemand
// @Summary     Read a demand
// @Description Email and phone are redacted unless the caller owns the demand or has applied to it.
// @Tags        Demands
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (when JWT auth is disabled)"  example(user123)
// @Param       id         path    string  true  "Demand ID (UUID)"  format(uuid)
//
// @Success     200  {object}  services.DemandView
// @Failure     400  {object}  handlers.ErrorResponse  "Bad id"
// @Failure     404  {object}  handlers.ErrorResponse  "Demand not found"
// @Router      /demands/{id} [get]
func (h *Handlers) GetDemand(c *gin.Context) {
	uid, _ := middleware.UserID(c)
	view, err := h.demands.Get(c.Request.Context(), uid, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, view)
}

// ListUserDemands godoc
// @ID          listUserDemands
// @Summary     List a user's demands
// @Description Owner only. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Demands
// @Produce     json
//
// @Param       X-User-ID      header  string  false "User ID (when JWT auth is disabled)"  example(user123)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       userId         path    string  true  "Owner user ID"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListDemandsResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string  "Not Modified"
// @Failure     401  {object}  handlers.ErrorResponse  "No user identity"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the owner"
// @Router      /demands/user/{userId} [get]
func (h *Handlers) ListUserDemands(c *gin.Context) {
	uid, found := requireUser(c)
	if !found {
		return
	}
	owner := c.Param("userId")
	ctx := c.Request.Context()

	// ETag pre-check, only once ownership is known.
	if owner == uid {
		if count, maxTS, err := h.demands.Stats(ctx, owner); err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"demands:%s:%d:%d"`, owner, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, err := h.demands.ListByUser(ctx, uid, owner)
	if err != nil {
		writeError(c, err)
		return
	}
	page, size := utils.ClampPage(c.Query("page"), c.Query("page_size"))
	window, meta := utils.Paginate(items, page, size)
	ok(c, http.StatusOK, ListDemandsResponse{Demands: window, Pagination: meta})
}
