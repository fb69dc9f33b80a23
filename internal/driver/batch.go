package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/observastack/loadpanel/internal/metrics"
)

// runBatch issues size requests concurrently and waits for all of them.
// Sequence IDs start at firstSeq and follow issuance order. Each request
// writes only its own slot, so the result needs no further ordering.
func (d *Driver) runBatch(ctx context.Context, cfg RunConfig, firstSeq, size int) []metrics.RequestOutcome {
	out := make([]metrics.RequestOutcome, size)
	// In-flight requests outlive Stop and ctx cancellation. The per-request
	// timeout still bounds them.
	reqCtx := context.WithoutCancel(ctx)
	req := Request{URL: cfg.TargetURL, Method: cfg.Method, Headers: cfg.Headers, Body: cfg.Body}

	var g errgroup.Group
	g.SetLimit(size)
	for i := range size {
		seq := firstSeq + i
		scheduled := time.Now()
		g.Go(func() error {
			out[i] = d.issueOne(reqCtx, req, seq, scheduled)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// issueOne performs one request and converts the exchange or its failure
// into an outcome. A panic in the issuer becomes an unexpected outcome.
func (d *Driver) issueOne(ctx context.Context, req Request, seq int, scheduled time.Time) (o metrics.RequestOutcome) {
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("request panicked", zap.Int("sequence_id", seq), zap.Any("panic", rec))
			o = metrics.RequestOutcome{
				SequenceID:  seq,
				ErrorKind:   metrics.ErrorUnexpected,
				Error:       fmt.Sprintf("unexpected error: %v", rec),
				CompletedAt: time.Now(),
			}
		}
		o.FillMillis()
	}()

	timeout := d.policy.RequestTimeout
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ex, err := d.issuer.Issue(callCtx, req)
	elapsed := time.Since(scheduled)
	o = metrics.RequestOutcome{SequenceID: seq, CompletedAt: time.Now()}

	if err != nil {
		kind := ClassifyError(err)
		if kind == metrics.ErrorNetwork && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			kind = metrics.ErrorTimeout
		}
		o.ErrorKind = kind
		o.Error = err.Error()
		switch kind {
		case metrics.ErrorTimeout:
			o.Error = fmt.Sprintf("request timeout (%s)", timeout)
		case metrics.ErrorResourceExhaustion:
			d.logger.Debug("resource limit reached", zap.Int("sequence_id", seq), zap.Error(err))
		}
		o.TotalDuration = elapsed
		o.QueueDelay = elapsed
		return o
	}

	o.Success = ex.StatusCode >= 200 && ex.StatusCode <= 299
	o.StatusCode = ex.StatusCode
	o.StatusText = ex.StatusText
	o.Body = ex.Body
	o.NetworkDuration = ex.NetworkDuration
	o.TotalDuration = ex.TotalDuration
	if queue := elapsed - ex.TotalDuration; queue > 0 {
		o.QueueDelay = queue
	}
	return o
}
