package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/pscheid92/votepulse/internal/platform/retry"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want retry.Action
	}{
		{"serialization failure", &pgconn.PgError{Code: sqlstateSerializationFailure}, retry.Retry},
		{"deadlock", fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: sqlstateDeadlockDetected}), retry.Retry},
		{"unique violation", &pgconn.PgError{Code: "23505"}, retry.Stop},
		{"context cancelled", context.Canceled, retry.Stop},
		{"plain error", errors.New("boom"), retry.Stop},
		{"network timeout mid-commit", &net.OpError{Op: "read", Net: "tcp", Err: timeoutError{}}, retry.Stop},
		{"connect failure", &pgconn.ConnectError{}, retry.Retry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.err))
		})
	}
}

func TestIsForeignKeyViolation(t *testing.T) {
	assert.True(t, isForeignKeyViolation(fmt.Errorf("x: %w", &pgconn.PgError{Code: sqlstateForeignKeyViolation})))
	assert.False(t, isForeignKeyViolation(errors.New("x")))
}
