package flutterwave

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestCreatePaymentLink_SendsRequestAndReturnsLink(t *testing.T) {
	var received PaymentRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v3/payments" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk_test" {
			t.Errorf("expected bearer secret key, got %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"success","message":"Hosted Link","data":{"link":"https://checkout.example/pay/abc"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", "sk_test")
	link, err := client.CreatePaymentLink(context.Background(), PaymentRequest{
		TxRef:    "GREEN-COURT-1700000000000-42",
		Amount:   json.Number("5000.00"),
		Currency: "NGN",
		Customer: Customer{Email: "ada@example.com", Name: "Ada Obi"},
	})
	if err != nil {
		t.Fatalf("CreatePaymentLink returned error: %v", err)
	}
	if link != "https://checkout.example/pay/abc" {
		t.Fatalf("unexpected link %q", link)
	}
	if received.TxRef != "GREEN-COURT-1700000000000-42" || received.Amount.String() != "5000.00" {
		t.Fatalf("unexpected request payload: %+v", received)
	}
}

func TestCreatePaymentLink_ReturnsAPIErrorOnFailureStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"status":"error","message":"Invalid currency"}`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "sk_test").CreatePaymentLink(context.Background(), PaymentRequest{TxRef: "ref"})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Message != "Invalid currency" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
}

func TestCreatePaymentLink_RejectsMissingLink(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","data":{}}`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "sk_test").CreatePaymentLink(context.Background(), PaymentRequest{TxRef: "ref"})
	if !errors.Is(err, ErrMissingLink) {
		t.Fatalf("expected ErrMissingLink, got %v", err)
	}
}

func TestCreatePaymentLink_HonoursContextDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := NewClient(server.URL, "sk_test").CreatePaymentLink(ctx, PaymentRequest{TxRef: "ref"}); err == nil {
		t.Fatal("expected an error when the context deadline passes")
	}
}

func TestWebhookEvent_DecodesChargePayload(t *testing.T) {
	body := []byte(`{
		"event": "charge.completed",
		"data": {
			"id": 285959875,
			"tx_ref": "GREEN-COURT-1700000000000-42",
			"flw_ref": "FLW-MOCK-123",
			"amount": 5000.5,
			"currency": "NGN",
			"status": "successful",
			"customer": {"fullName": "Ada Obi", "email": "ada@example.com"}
		}
	}`)

	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		t.Fatalf("failed to decode webhook: %v", err)
	}
	if event.Data.ID.String() != "285959875" || event.Data.TxRef != "GREEN-COURT-1700000000000-42" {
		t.Fatalf("unexpected identifiers: %+v", event.Data)
	}
	if !event.Data.Amount.Equal(decimal.RequireFromString("5000.5")) {
		t.Fatalf("unexpected amount %s", event.Data.Amount)
	}
	if event.Data.Customer.DisplayName() != "Ada Obi" {
		t.Fatalf("expected fullName fallback, got %q", event.Data.Customer.DisplayName())
	}
}

func TestVerifyWebhookHash(t *testing.T) {
	tests := []struct {
		name   string
		header string
		secret string
		want   bool
	}{
		{name: "match", header: "s3cret", secret: "s3cret", want: true},
		{name: "mismatch", header: "other", secret: "s3cret", want: false},
		{name: "missing header", header: "", secret: "s3cret", want: false},
		{name: "unconfigured secret", header: "s3cret", secret: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifyWebhookHash(tt.header, tt.secret); got != tt.want {
				t.Fatalf("expected %t, got %t", tt.want, got)
			}
		})
	}
}
