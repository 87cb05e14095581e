package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required", detailsOK: true},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied", detailsOK: true},
		{code: CodeIdempotency, status: http.StatusConflict, publicMsg: "idempotency key reused", detailsOK: true},
		{code: CodeRateLimit, status: http.StatusTooManyRequests, publicMsg: "rate limit exceeded"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found", detailsOK: true},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected", detailsOK: true},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	detail := map[string]any{"field": "foo"}
	base.WithDetails(detail)
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeForbidden, "no entry")
	if got := As(err); got == nil || got.Code() != CodeForbidden {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestWithReasonExposesReason(t *testing.T) {
	err := WithReason(CodeNotFound, "memory", "memory not found")
	if err.Reason() != "memory" {
		t.Fatalf("expected reason memory, got %q", err.Reason())
	}
	if !IsCode(Wrap(CodeInternal, err, "outer"), CodeInternal) {
		t.Fatalf("expected outer code to win")
	}
	if !IsCode(err, CodeNotFound) {
		t.Fatalf("expected not found code")
	}
	if New(CodeNotFound, "plain").Reason() != "" {
		t.Fatalf("plain errors carry no reason")
	}
}

func TestDetailsFoldInReason(t *testing.T) {
	bare := WithReason(CodeNotFound, "order", "order not found")
	if got, _ := bare.Details().(map[string]any); got["reason"] != "order" {
		t.Fatalf("expected reason in details, got %v", bare.Details())
	}

	merged := WithReason(CodeStateConflict, "order", "order not pending").WithDetails(map[string]any{"status": "shipped"})
	got, _ := merged.Details().(map[string]any)
	if got["reason"] != "order" || got["status"] != "shipped" {
		t.Fatalf("expected merged details, got %v", got)
	}

	fields := map[string]string{"title": "required"}
	typed := WithReason(CodeValidation, "item", "bad").WithDetails(fields)
	if _, ok := typed.Details().(map[string]string); !ok {
		t.Fatalf("non-map details should pass through untouched")
	}
}

func TestErrorStringIncludesCause(t *testing.T) {
	err := Wrap(CodeDependency, stdErrors.New("dial tcp: refused"), "load order")
	if err.Error() != "DEPENDENCY_ERROR: load order: dial tcp: refused" {
		t.Fatalf("unexpected error string %q", err.Error())
	}
	if New(CodeNotFound, "gone").Error() != "NOT_FOUND: gone" {
		t.Fatalf("unexpected error string %q", New(CodeNotFound, "gone").Error())
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{stdErrors.New("network blip"), true},
		{New(CodeValidation, "bad"), false},
		{fmt.Errorf("outer: %w", New(CodeDependency, "db down")), true},
		{New(CodeStateConflict, "not pending"), false},
	}
	for _, tc := range cases {
		if got := Retryable(tc.err); got != tc.want {
			t.Fatalf("Retryable(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestDumpFlattensDriverErrors(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_orders_listing_open", TableName: "orders"}
	d := Dump(Wrap(CodeConflict, fmt.Errorf("insert order: %w", pgErr), "listing already reserved"))
	if d.Code != CodeConflict || d.Driver != "pgx" || d.PGConstraint != "ux_orders_listing_open" {
		t.Fatalf("unexpected dump %+v", d)
	}
	if len(d.Chain) < 3 {
		t.Fatalf("expected the whole chain, got %v", d.Chain)
	}
	fields := d.LogFields()
	if fields["pg_code"] != "23505" || fields["error_code"] != CodeConflict {
		t.Fatalf("unexpected log fields %v", fields)
	}
	if _, ok := fields["pg_detail"]; ok {
		t.Fatalf("empty driver fields should be omitted")
	}

	lite := Dump(stdErrors.New("UNIQUE constraint failed: orders.listing_id"))
	if lite.Driver != "sqlite" || lite.Code != "" {
		t.Fatalf("unexpected sqlite dump %+v", lite)
	}
	if _, ok := lite.LogFields()["error_code"]; ok {
		t.Fatalf("untyped errors carry no code")
	}
}
