package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/estatehub/billing-service/internal/app"
	"github.com/estatehub/billing-service/internal/domain"
	"github.com/estatehub/billing-service/internal/metrics"
	"github.com/estatehub/billing-service/pkg/flutterwave"
)

type webhookResponse struct {
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id,omitempty"`
}

// handleFlutterwaveWebhook reconciles a charge webhook against its obligation. Unknown
// references return 404 and write nothing. Without a configured hash every webhook is
// refused with 503.
func (h *Handler) handleFlutterwaveWebhook(w http.ResponseWriter, r *http.Request) {
	if h.webhookHash == "" {
		metrics.WebhooksRejected.WithLabelValues("unconfigured").Inc()
		log.Println("level=error component=webhook msg=\"webhook rejected: FLUTTERWAVE_WEBHOOK_HASH not set\"")
		http.Error(w, "Webhook verification is not configured", http.StatusServiceUnavailable)
		return
	}
	if !flutterwave.VerifyWebhookHash(r.Header.Get(flutterwave.WebhookHashHeader), h.webhookHash) {
		metrics.WebhooksRejected.WithLabelValues("invalid_hash").Inc()
		log.Printf("level=warn component=webhook msg=\"invalid webhook hash\" remote=%s", clientAddress(r))
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "Cannot read request body", http.StatusBadRequest)
		return
	}

	var event flutterwave.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		metrics.WebhooksRejected.WithLabelValues("malformed").Inc()
		log.Printf("level=warn component=webhook msg=\"webhook decode failed\" err=%v", err)
		http.Error(w, "Invalid JSON payload", http.StatusBadRequest)
		return
	}

	callback := domain.GatewayCallback{
		Event:          event.Event,
		TxRef:          strings.TrimSpace(event.Data.TxRef),
		TransactionID:  event.Data.ID.String(),
		TransactionRef: event.Data.FlwRef,
		Status:         event.Data.Status,
		Amount:         event.Data.Amount,
		Currency:       event.Data.Currency,
		CustomerName:   event.Data.Customer.DisplayName(),
		CustomerEmail:  event.Data.Customer.Email,
	}

	txn, err := h.service.Reconcile(r.Context(), callback)
	if err != nil {
		if errors.Is(err, app.ErrInvalidCallback) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeError(w, "webhook", err)
		return
	}

	respondWithJSON(w, http.StatusOK, webhookResponse{Status: "received", TransactionID: txn.ID.String()})
}
