package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"wallet-service/internal/core/ports"
	"wallet-service/pkg/apperror"
	"wallet-service/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// SignatureHeader is the gateway's webhook signature header.
const SignatureHeader = "x-paystack-signature"

// WebhookVerifier checks a raw webhook payload against its signature.
type WebhookVerifier interface {
	VerifyWebhookSignature(payload []byte, signature string) bool
}

// WebhookHandler receives payment gateway events. Signature verification
// happens here; only verified events reach the reconciler.
type WebhookHandler struct {
	depositSvc ports.DepositService
	verifier   WebhookVerifier
	log        zerolog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(depositSvc ports.DepositService, verifier WebhookVerifier, log zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		depositSvc: depositSvc,
		verifier:   verifier,
		log:        log,
	}
}

type webhookPayload struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
		Amount    int64  `json:"amount"`
	} `json:"data"`
}

// HandlePaystack handles POST /api/v1/webhook/paystack.
func (h *WebhookHandler) HandlePaystack(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.Error(c, apperror.Validation("cannot read request body"))
		return
	}

	signature := c.GetHeader(SignatureHeader)
	if signature == "" || !h.verifier.VerifyWebhookSignature(body, signature) {
		h.log.Warn().Str("client_ip", c.ClientIP()).Msg("webhook signature rejected")
		c.JSON(http.StatusUnauthorized, gin.H{
			"error_code": "AUTH_001",
			"message":    "Invalid webhook signature",
		})
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		response.Error(c, apperror.Validation("malformed webhook payload"))
		return
	}

	var status string
	switch payload.Event {
	case "charge.success":
		status = ports.GatewayStatusSuccess
	case "charge.failed":
		status = ports.GatewayStatusFailed
	default:
		// Unhandled event types are acknowledged so the gateway stops
		// redelivering them.
		h.log.Debug().Str("event", payload.Event).Msg("ignoring webhook event")
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	txn, err := h.depositSvc.Reconcile(c.Request.Context(), ports.GatewayEvent{
		Reference: payload.Data.Reference,
		Status:    status,
		Amount:    payload.Data.Amount,
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{
		"reference": txn.Reference,
		"status":    string(txn.Status),
	})
}
