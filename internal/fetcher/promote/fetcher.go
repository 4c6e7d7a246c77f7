// Package promote fetches with a plain HTTP fetcher first and re-renders the page in headless
// Chrome only when a detector says the body is a script shell.
package promote

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/loan-rate-crawler/internal/loan"
)

// Detector decides whether a response needs a headless render.
type Detector interface {
	ShouldPromote(resp loan.FetchResponse) bool
}

// Fetcher composes a probe fetcher with a headless one.
type Fetcher struct {
	probe    loan.Fetcher
	headless loan.Fetcher
	detector Detector
	logger   *zap.Logger
}

// New wires the fetcher. A nil headless fetcher or detector disables promotion.
func New(probe, headless loan.Fetcher, detector Detector, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{probe: probe, headless: headless, detector: detector, logger: logger}
}

// Fetch implements loan.Fetcher. A failed headless render falls back to the probe response.
func (f *Fetcher) Fetch(ctx context.Context, request loan.FetchRequest) (loan.FetchResponse, error) {
	resp, err := f.probe.Fetch(ctx, request)
	if err != nil {
		return resp, err
	}
	if f.headless == nil || f.detector == nil || !f.detector.ShouldPromote(resp) {
		return resp, nil
	}

	rendered, err := f.headless.Fetch(ctx, request)
	if err != nil {
		f.logger.Warn("headless promotion failed", zap.String("url", request.URL), zap.Error(err))
		return resp, nil
	}
	rendered.UsedHeadless = true
	rendered.Duration += resp.Duration
	f.logger.Info("headless promotion applied", zap.String("url", request.URL))
	return rendered, nil
}
