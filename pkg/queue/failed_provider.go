package queue

import (
	"context"
)

// FailedOperationLogger records operations that reached the failed state
type FailedOperationLogger interface {
	// Log records a failed operation together with the error that failed it
	Log(ctx context.Context, op *Operation, cause string) error
}
