package timeout

import (
	"fmt"
)

// Resolver computes request and bidder timeout budgets within the configured bounds.
type Resolver struct {
	minTimeout                      int64
	maxTimeout                      int64
	bidderResponseDurationFactorPct int
}

// NewResolver returns an error if either bound is not positive or max is below min.
func NewResolver(minTimeout, maxTimeout int64, bidderResponseDurationFactorPct int) (*Resolver, error) {
	if minTimeout <= 0 || maxTimeout <= 0 {
		return nil, fmt.Errorf("both min and max timeouts should be greater than 0: min=%d, max=%d", minTimeout, maxTimeout)
	}
	if maxTimeout < minTimeout {
		return nil, fmt.Errorf("max timeout cannot be less than min timeout: min=%d, max=%d", minTimeout, maxTimeout)
	}
	return &Resolver{
		minTimeout:                      minTimeout,
		maxTimeout:                      maxTimeout,
		bidderResponseDurationFactorPct: bidderResponseDurationFactorPct,
	}, nil
}

// LimitToMax returns the requested timeout capped at the max. A nil request gets the max.
func (r *Resolver) LimitToMax(requested *int64) int64 {
	if requested == nil || *requested > r.maxTimeout {
		return r.maxTimeout
	}
	return *requested
}

// AdjustForBidder carves the slice of totalTimeout available to one of numBidders bidders once the
// processing overhead is removed. latencyAdjustmentFactor scales the share of the slice held back
// for the bidder response duration.
func (r *Resolver) AdjustForBidder(totalTimeout int64, numBidders int, processingOverhead int64, latencyAdjustmentFactor float64) int64 {
	if numBidders < 1 {
		numBidders = 1
	}
	slice := float64(totalTimeout-processingOverhead) / float64(numBidders)
	reserved := slice * float64(r.bidderResponseDurationFactorPct) / 100 * latencyAdjustmentFactor
	return r.limitToMin(int64(slice - reserved))
}

// AdjustForRequest removes the fixed overhead from the request timeout.
func (r *Resolver) AdjustForRequest(totalTimeout int64, overhead int64) int64 {
	return r.limitToMin(totalTimeout - overhead)
}

func (r *Resolver) limitToMin(timeout int64) int64 {
	if timeout < r.minTimeout {
		return r.minTimeout
	}
	return timeout
}
