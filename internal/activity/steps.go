package activity

import (
	"context"
	"time"
)

// StepProvider queries the platform pedometer for a closed segment's
// interval. Errors are logged by the caller and enrichment is skipped.
type StepProvider interface {
	Steps(ctx context.Context, start, end time.Time) (count int64, distanceMeters float64, err error)
}
