package postgres

import (
	"database/sql/driver"
	"errors"
	"net"
	"testing"

	"quiz-session-service/internal/domain"
)

func TestClassify(t *testing.T) {
	if classify(nil) != nil {
		t.Fatalf("nil must stay nil")
	}

	dial := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	for _, err := range []error{dial, driver.ErrBadConn} {
		if got := classify(err); !errors.Is(got, domain.ErrDeliveryUnreachable) {
			t.Fatalf("expected unreachable for %v, got %v", err, got)
		}
	}

	other := errors.New("deadlock detected")
	got := classify(other)
	if errors.Is(got, domain.ErrDeliveryUnreachable) || errors.Is(got, domain.ErrDeliveryRejected) {
		t.Fatalf("expected transient error, got %v", got)
	}
	if !errors.Is(got, other) {
		t.Fatalf("expected wrapped cause, got %v", got)
	}
}
