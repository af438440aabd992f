package cache

import (
	"context"

	"go.opentelemetry.io/otel/metric"

	"github.com/listen-stream/playlist-screen/pkg/telemetry"
)

// 缓存层级名称，用于指标
const (
	TierL1 = "l1"
	TierL2 = "l2"
	TierL3 = "l3"
)

// Recorder 记录各层命中/未命中
type Recorder interface {
	Hit(ctx context.Context, tier string)
	Miss(ctx context.Context, tier string)
}

type nopRecorder struct{}

func (nopRecorder) Hit(context.Context, string)  {}
func (nopRecorder) Miss(context.Context, string) {}

type counterPair struct {
	hit  metric.Int64Counter
	miss metric.Int64Counter
}

// OTelRecorder exports hits and misses as cache_<tier>_hits_total / cache_<tier>_misses_total.
type OTelRecorder struct {
	tiers map[string]counterPair
}

// NewOTelRecorder registers the counters of all three tiers on the provider's meter.
func NewOTelRecorder(p *telemetry.Provider) (*OTelRecorder, error) {
	r := &OTelRecorder{tiers: make(map[string]counterPair, 3)}
	for _, tier := range []string{TierL1, TierL2, TierL3} {
		hit, miss, err := p.NewCacheHitCounter(tier)
		if err != nil {
			return nil, err
		}
		r.tiers[tier] = counterPair{hit: hit, miss: miss}
	}
	return r, nil
}

// Hit implements Recorder.
func (r *OTelRecorder) Hit(ctx context.Context, tier string) {
	if c, ok := r.tiers[tier]; ok {
		c.hit.Add(ctx, 1)
	}
}

// Miss implements Recorder.
func (r *OTelRecorder) Miss(ctx context.Context, tier string) {
	if c, ok := r.tiers[tier]; ok {
		c.miss.Add(ctx, 1)
	}
}
