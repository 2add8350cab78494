// Payment intent HTTP handlers.
//
//   - POST /payment-intents         (open an intent for applying to a demand)
//   - POST /payment-intents/verify  (inspect an intent)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CreateIntentRequest is the JSON payload for opening a payment intent.
type CreateIntentRequest struct {
	DemandID string `json:"demand_id" binding:"required" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
}

// VerifyIntentRequest is the JSON payload for checking a payment intent.
type VerifyIntentRequest struct {
	PaymentIntentID string `json:"payment_intent_id" binding:"required" example:"pi_3Nabc123"`
}

// CreatePaymentIntent godoc
// @ID          createPaymentIntent
// @Summary     Open a payment intent
// @Description Creates an application-fee intent bound to the demand and caller. Fails fast when the demand is missing, expired or already applied to by the caller.
// @Tags        Payments
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (when JWT auth is disabled)"  example(user123)
// @Param       body       body    handlers.CreateIntentRequest  true  "Demand to pay for"
//
// @Success     200  {object}  services.IntentResult
// @Failure     400  {object}  handlers.ErrorResponse  "Validation error or expired demand"
// @Failure     404  {object}  handlers.ErrorResponse  "Demand not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Already applied"
// @Failure     502  {object}  handlers.ErrorResponse  "Payment provider error"
// @Router      /payment-intents [post]
func (h *Handlers) CreatePaymentIntent(c *gin.Context) {
	uid, found := requireUser(c)
	if !found {
		return
	}
	var req CreateIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	res, err := h.payments.CreateIntent(c.Request.Context(), uid, req.DemandID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	ok(c, http.StatusOK, res)
}

// VerifyPaymentIntent godoc
// @ID          verifyPaymentIntent
// @Summary     Check a payment intent
// @Description Reports the provider status of an intent opened by the caller.
// @Tags        Payments
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (when JWT auth is disabled)"  example(user123)
// @Param       body       body    handlers.VerifyIntentRequest  true  "Intent to check"
//
// @Success     200  {object}  services.VerifyResult
// @Failure     400  {object}  handlers.ErrorResponse  "Validation error"
// @Failure     403  {object}  handlers.ErrorResponse  "Intent belongs to another user"
// @Failure     404  {object}  handlers.ErrorResponse  "Intent not found"
// @Failure     502  {object}  handlers.ErrorResponse  "Payment verification failed"
// @Router      /payment-intents/verify [post]
func (h *Handlers) VerifyPaymentIntent(c *gin.Context) {
	uid, found := requireUser(c)
	if !found {
		return
	}
	var req VerifyIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	res, err := h.payments.Verify(c.Request.Context(), uid, req.PaymentIntentID)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}
