package pipeline

import (
	"context"
	"errors"
)

// Backfill runs w one calendar month at a time, oldest first. A month that
// fails on authentication or on the table write stops the backfill; the
// results of the months already done are returned with the error.
func (o *Orchestrator) Backfill(ctx context.Context, w Window) ([]Result, error) {
	months := w.Months()
	results := make([]Result, 0, len(months))
	for i, month := range months {
		o.logger.Info("backfill month", "month", month.Start.String()[:7], "index", i+1, "of", len(months))

		res, err := o.Run(ctx, month)
		results = append(results, res)
		if err != nil {
			var syncErr *SyncError
			if errors.As(err, &syncErr) && syncErr.Kind == KindInvalid {
				continue
			}
			return results, err
		}
	}
	return results, nil
}
