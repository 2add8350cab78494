// Search HTTP handlers.
//
//   - GET /search?q=        (semantic match, consumes one unit of daily quota)
//   - GET /search/quota     (quota snapshot, consumes nothing)
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-match-backend/internal/quota"
	"github.com/tbourn/go-match-backend/internal/services"
)

// SearchResponse is the 200 body of GET /search.
type SearchResponse struct {
	Matches   []services.MatchResult `json:"matches"`
	Count     int                    `json:"count"`
	RateLimit quota.Decision         `json:"rate_limit"`
}

// setQuotaHeaders mirrors the quota snapshot in X-RateLimit-* headers.
func setQuotaHeaders(c *gin.Context, d quota.Decision) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(d.Total))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	if !d.ResetAt.IsZero() {
		c.Header("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
	}
}

// Search godoc
// @ID          searchDemands
// @Summary     Semantic search over live demands
// @Description Consumes one unit of the caller's daily quota (reset at UTC midnight), then returns live demands ranked by similarity. Contact details are never included.
// @Tags        Search
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (when JWT auth is disabled)"  example(user123)
// @Param       q          query   string  true  "Search text (30-500 characters)"
//
// @Success     200  {object}  handlers.SearchResponse
// @Header      200  {string}  X-RateLimit-Remaining  "Searches left today"
// @Failure     400  {object}  handlers.ErrorResponse       "Validation error"
// @Failure     401  {object}  handlers.ErrorResponse       "No user identity"
// @Failure     429  {object}  handlers.QuotaErrorResponse  "Daily quota exhausted"
// @Failure     502  {object}  handlers.ErrorResponse       "Embedding or index failure"
// @Failure     503  {object}  handlers.ErrorResponse       "Quota store unavailable"
// @Router      /search [get]
func (h *Handlers) Search(c *gin.Context) {
	uid, found := requireUser(c)
	if !found {
		return
	}
	res, err := h.matcher.Search(c.Request.Context(), uid, c.Query("q"))
	if err != nil {
		var qerr *services.QuotaExceededError
		if errors.As(err, &qerr) {
			setQuotaHeaders(c, qerr.Decision)
			c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(qerr.Decision, h.now())))
		}
		writeError(c, err)
		return
	}
	setQuotaHeaders(c, res.Quota)
	ok(c, http.StatusOK, SearchResponse{
		Matches:   res.Matches,
		Count:     len(res.Matches),
		RateLimit: res.Quota,
	})
}

// SearchQuota godoc
// @ID          searchQuota
// @Summary     Remaining searches today
// @Description Reports the caller's quota without consuming any of it.
// @Tags        Search
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (when JWT auth is disabled)"  example(user123)
//
// @Success     200  {object}  quota.Decision
// @Failure     401  {object}  handlers.ErrorResponse  "No user identity"
// @Failure     503  {object}  handlers.ErrorResponse  "Quota store unavailable"
// @Router      /search/quota [get]
func (h *Handlers) SearchQuota(c *gin.Context) {
	uid, found := requireUser(c)
	if !found {
		return
	}
	d, err := h.matcher.Quota(c.Request.Context(), uid)
	if err != nil {
		writeError(c, err)
		return
	}
	setQuotaHeaders(c, d)
	ok(c, http.StatusOK, d)
}
