// Package driver provides the adaptive parallel request engine of loadpanel.
//
// A [Driver] executes one run at a time. A run issues requests against a
// single target in discrete batches:
//   - every request of a batch is issued concurrently
//   - the loop advances only after the whole batch has settled
//   - the batch size follows a dynamic concurrency adapted between batches
//
// # Basic Usage
//
//	d := driver.New(issuer, driver.WithLogger(logger), driver.WithSink(sink))
//	summary, err := d.Run(ctx, driver.RunConfig{
//		TargetURL:     "http://localhost:8080/api/items",
//		TotalRequests: 500,
//		Concurrency:   10,
//		Delay:         100 * time.Millisecond,
//		Adaptive:      true,
//	})
//
// # Issuer Interface
//
// The [Issuer] performs one HTTP exchange and reports its timing split:
//
//	type Issuer interface {
//		Issue(ctx context.Context, req Request) (Exchange, error)
//	}
//
// Issuers must honor ctx. It carries the per-request timeout of the
// [Policy]. A non-2xx status is returned as an [Exchange], never as an error.
// Errors mean the exchange could not complete and are classified with
// [ClassifyError].
//
// # Adaptive Policy
//
// All thresholds of the adaptive loop live in [Policy]. [DefaultPolicy]
// returns the stock values. [Policy.NextConcurrency] and [Policy.NextDelay]
// are pure and can be exercised without a driver.
//
// # Cancellation
//
// [Driver.Stop] and cancellation of the Run context are cooperative. Both are
// observed at batch boundaries and during the inter-batch delay. Requests
// already in flight finish or hit their own timeout.
//
// # Sinks
//
// A [Sink] receives progress after every batch, throttled snapshots of the
// outcome and chart sequences, and the final summary. Everything handed to a
// sink is a copy.
package driver
