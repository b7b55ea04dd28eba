package proxy

import (
	"context"
	"math/rand"
	"time"

	"golang.org/x/time/rate"
)

// ThrottleConfig configures the Connection Manager's optional throttling:
// a shared token-bucket for download/upload bytes per second, a fixed
// per-exchange latency injected before writing response bytes, and a
// packet-loss percentage that probabilistically drops bytes on egress.
type ThrottleConfig struct {
	DownloadBytesPerSecond int // 0 disables the download limiter
	UploadBytesPerSecond   int // 0 disables the upload limiter
	Latency                time.Duration
	PacketLossPercent      float64 // 0-100, applied on egress only
}

// Throttle is the shared runtime state for one ThrottleConfig: the two
// token buckets are shared across every connection so the configured
// rate is a proxy-wide budget, not a per-connection one.
type Throttle struct {
	cfg      ThrottleConfig
	download *rate.Limiter
	upload   *rate.Limiter
}

// NewThrottle returns a Throttle for cfg, or nil if cfg is nil.
func NewThrottle(cfg *ThrottleConfig) *Throttle {
	if cfg == nil {
		return nil
	}
	t := &Throttle{cfg: *cfg}
	if cfg.DownloadBytesPerSecond > 0 {
		t.download = rate.NewLimiter(rate.Limit(cfg.DownloadBytesPerSecond), cfg.DownloadBytesPerSecond)
	}
	if cfg.UploadBytesPerSecond > 0 {
		t.upload = rate.NewLimiter(rate.Limit(cfg.UploadBytesPerSecond), cfg.UploadBytesPerSecond)
	}
	return t
}

// WaitDownload blocks until n bytes' worth of download budget is
// available, or ctx is cancelled first.
func (t *Throttle) WaitDownload(ctx context.Context, n int) error {
	if t == nil || t.download == nil {
		return nil
	}
	return t.download.WaitN(ctx, clampBurst(n, t.download.Burst()))
}

// WaitUpload blocks until n bytes' worth of upload budget is available,
// or ctx is cancelled first.
func (t *Throttle) WaitUpload(ctx context.Context, n int) error {
	if t == nil || t.upload == nil {
		return nil
	}
	return t.upload.WaitN(ctx, clampBurst(n, t.upload.Burst()))
}

// clampBurst caps n at the limiter's burst size: rate.Limiter.WaitN
// rejects a request larger than its burst rather than spreading it
// across multiple refills.
func clampBurst(n, burst int) int {
	if n > burst {
		return burst
	}
	return n
}

// InjectLatency sleeps for the configured per-exchange latency, honoring
// ctx cancellation.
func (t *Throttle) InjectLatency(ctx context.Context) {
	if t == nil || t.cfg.Latency <= 0 {
		return
	}
	select {
	case <-time.After(t.cfg.Latency):
	case <-ctx.Done():
	}
}

// DropEgress applies the configured packet-loss percentage to b, removing
// a pseudo-random subset of bytes to simulate lossy egress. The kept bytes
// are compacted in place into b's backing array and the shorter slice is
// returned. It returns b unchanged if no loss is configured.
func (t *Throttle) DropEgress(b []byte) []byte {
	if t == nil || t.cfg.PacketLossPercent <= 0 || len(b) == 0 {
		return b
	}
	kept := b[:0]
	for _, c := range b {
		if rand.Float64()*100 < t.cfg.PacketLossPercent {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}
