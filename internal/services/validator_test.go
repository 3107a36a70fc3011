package services

import (
	"context"
	"errors"
	"testing"

	"github.com/bereka/backend/internal/models"
)

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator()
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	return v
}

func TestValidate_Valid(t *testing.T) {
	v := newTestValidator(t)

	cases := []struct {
		schema string
		body   string
	}{
		{SchemaLNbitsWebhook, `{"payment_hash":"abc123","amount":5000000,"memo":"top-up","extra":"kept"}`},
		{SchemaCreateInvoice, `{"amountSats":5000}`},
		{SchemaCheckPayment, `{"paymentHash":"abc123"}`},
		{SchemaJobAction, `{"jobId":"3f2b8c1e-9d4a-4b7e-8f00-0c1d2e3f4a5b"}`},
		{SchemaResolveDispute, `{"jobId":"3f2b8c1e-9d4a-4b7e-8f00-0c1d2e3f4a5b","resolution":"SPLIT"}`},
		{SchemaCreateJob, `{"title":"Logo design","description":"SVG please","budgetSats":4000,"deadline":"2026-12-01T00:00:00Z"}`},
		{SchemaOpenDispute, `{"reason":"work never delivered"}`},
		{SchemaAssignWorker, `{"workerId":"3f2b8c1e-9d4a-4b7e-8f00-0c1d2e3f4a5b"}`},
	}
	for _, tc := range cases {
		t.Run(tc.schema, func(t *testing.T) {
			if err := v.Validate(context.Background(), tc.schema, []byte(tc.body)); err != nil {
				t.Fatalf("expected valid body, got: %v", err)
			}
		})
	}
}

func TestValidate_Invalid(t *testing.T) {
	v := newTestValidator(t)

	cases := []struct {
		name   string
		schema string
		body   string
	}{
		{"webhook without hash", SchemaLNbitsWebhook, `{"amount":1}`},
		{"webhook empty hash", SchemaLNbitsWebhook, `{"payment_hash":""}`},
		{"zero amount", SchemaCreateInvoice, `{"amountSats":0}`},
		{"fractional amount", SchemaCreateInvoice, `{"amountSats":1.5}`},
		{"amount as string", SchemaCreateInvoice, `{"amountSats":"100"}`},
		{"job id not a uuid", SchemaJobAction, `{"jobId":"job-1"}`},
		{"unknown resolution", SchemaResolveDispute, `{"jobId":"3f2b8c1e-9d4a-4b7e-8f00-0c1d2e3f4a5b","resolution":"HALF"}`},
		{"unknown field", SchemaResolveDispute, `{"jobId":"3f2b8c1e-9d4a-4b7e-8f00-0c1d2e3f4a5b","resolution":"REFUND","note":"x"}`},
		{"job without budget", SchemaCreateJob, `{"title":"Logo design"}`},
		{"empty reason", SchemaOpenDispute, `{"reason":""}`},
		{"not json", SchemaCheckPayment, `{paymentHash`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := v.Validate(context.Background(), tc.schema, []byte(tc.body))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !errors.Is(err, ErrValidation) {
				t.Errorf("expected ErrValidation, got: %v", err)
			}
			if !errors.Is(err, models.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got: %v", err)
			}
		})
	}
}

func TestValidate_UnknownSchema(t *testing.T) {
	v := newTestValidator(t)
	err := v.Validate(context.Background(), "nope", []byte(`{}`))
	if err == nil || errors.Is(err, ErrValidation) {
		t.Fatalf("expected non-validation error for unknown schema, got: %v", err)
	}
}
