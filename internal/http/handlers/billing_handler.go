// Billing HTTP handlers.
//
//   - GET  /payments/plans                    (public)
//   - POST /payments/subscription             (bearer)
//   - GET  /payments/subscription             (bearer)
//   - POST /payments/subscription/cancel      (bearer)
//   - POST /payments/subscription/reactivate  (bearer)
//   - POST /payments/webhook                  (signed by the processor)
package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/widget-chat-backend/internal/http/middleware"
	"github.com/tbourn/widget-chat-backend/internal/services"
)

// HeaderStripeSignature carries the webhook signature.
const HeaderStripeSignature = "Stripe-Signature"

// SubscribeRequest starts a paid plan.
type SubscribeRequest struct {
	Plan            string `json:"plan" example:"starter"`
	PaymentMethodID string `json:"payment_method_id" example:"pm_card_visa"`
}

// WebhookResponse acknowledges a processed webhook.
type WebhookResponse struct {
	Received bool   `json:"received"`
	Type     string `json:"type,omitempty"`
}

// Subscribe godoc
// @ID          subscribe
// @Summary     Subscribe to a paid plan
// @Tags        Payments
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body  handlers.SubscribeRequest  true  "Plan and payment method"
// @Success     201  {object}  services.SubscriptionView
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid plan"
// @Failure     503  {object}  handlers.ErrorResponse  "Billing not configured"
// @Router      /payments/subscription [post]
func (h *Handlers) Subscribe(c *gin.Context) {
	var req SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	v, err := h.billing.Subscribe(c.Request.Context(), middleware.AccountIDFrom(c), req.Plan, strings.TrimSpace(req.PaymentMethodID))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, v)
}

// GetSubscription godoc
// @ID          getSubscription
// @Summary     Current subscription
// @Tags        Payments
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  services.SubscriptionView
// @Router      /payments/subscription [get]
func (h *Handlers) GetSubscription(c *gin.Context) {
	v, err := h.billing.Current(c.Request.Context(), middleware.AccountIDFrom(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, v)
}

// CancelSubscription godoc
// @ID          cancelSubscription
// @Summary     Cancel at period end
// @Tags        Payments
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  services.SubscriptionView
// @Failure     404  {object}  handlers.ErrorResponse  "No subscription"
// @Router      /payments/subscription/cancel [post]
func (h *Handlers) CancelSubscription(c *gin.Context) {
	v, err := h.billing.Cancel(c.Request.Context(), middleware.AccountIDFrom(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, v)
}

// ReactivateSubscription godoc
// @ID          reactivateSubscription
// @Summary     Undo a pending cancellation
// @Tags        Payments
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  services.SubscriptionView
// @Failure     404  {object}  handlers.ErrorResponse  "No subscription"
// @Router      /payments/subscription/reactivate [post]
func (h *Handlers) ReactivateSubscription(c *gin.Context) {
	v, err := h.billing.Reactivate(c.Request.Context(), middleware.AccountIDFrom(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, v)
}

// Webhook godoc
// @ID          paymentWebhook
// @Summary     Payment processor webhook
// @Description Verifies the signature and syncs subscription state. Unknown event types are acknowledged.
// @Tags        Payments
// @Accept      json
// @Produce     json
// @Param       Stripe-Signature  header  string  true  "Webhook signature"
// @Success     200  {object}  handlers.WebhookResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid signature"
// @Router      /payments/webhook [post]
func (h *Handlers) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "could not read body")
		return
	}
	ev, err := h.billing.HandleWebhook(c.Request.Context(), payload, c.GetHeader(HeaderStripeSignature))
	if err != nil {
		failErr(c, err)
		return
	}
	middleware.LoggerFrom(c).Info().Str("event_id", ev.ID).Str("event_type", ev.Type).Msg("payment webhook processed")
	ok(c, http.StatusOK, WebhookResponse{Received: true, Type: ev.Type})
}

// PlansResponse lists purchasable plans.
type PlansResponse struct {
	Plans []services.PlanView `json:"plans"`
}

// Plans godoc
// @ID          listPlans
// @Summary     Plan table
// @Tags        Payments
// @Produce     json
// @Success     200  {object}  handlers.PlansResponse
// @Router      /payments/plans [get]
func (h *Handlers) Plans(c *gin.Context) {
	ok(c, http.StatusOK, PlansResponse{Plans: h.billing.Plans()})
}
