package proxy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewThrottleNilConfig(t *testing.T) {
	require.Nil(t, NewThrottle(nil))
}

func TestNilThrottleIsNoop(t *testing.T) {
	var th *Throttle
	require.NoError(t, th.WaitDownload(context.Background(), 1<<20))
	require.NoError(t, th.WaitUpload(context.Background(), 1<<20))
	th.InjectLatency(context.Background())
	require.Equal(t, []byte("unchanged"), th.DropEgress([]byte("unchanged")))
}

func TestThrottleWaitDownloadRespectsLimiter(t *testing.T) {
	th := NewThrottle(&ThrottleConfig{DownloadBytesPerSecond: 1000})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, th.WaitDownload(ctx, 500))
}

func TestThrottleWaitUploadWithoutLimiterIsNoop(t *testing.T) {
	th := NewThrottle(&ThrottleConfig{DownloadBytesPerSecond: 1000})
	require.NoError(t, th.WaitUpload(context.Background(), 1<<20))
}

func TestClampBurst(t *testing.T) {
	require.Equal(t, 10, clampBurst(100, 10))
	require.Equal(t, 5, clampBurst(5, 10))
}

func TestInjectLatencySleepsAtLeastConfigured(t *testing.T) {
	th := NewThrottle(&ThrottleConfig{Latency: 10 * time.Millisecond})
	start := time.Now()
	th.InjectLatency(context.Background())
	require.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestInjectLatencyHonorsCancellation(t *testing.T) {
	th := NewThrottle(&ThrottleConfig{Latency: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	th.InjectLatency(ctx)
	require.Less(t, time.Since(start), time.Second)
}

func TestDropEgressNoLossReturnsSameBytes(t *testing.T) {
	th := NewThrottle(&ThrottleConfig{PacketLossPercent: 0})
	in := []byte("abcdef")
	require.Equal(t, in, th.DropEgress(in))
}

func TestDropEgressFullLossDropsEverything(t *testing.T) {
	th := NewThrottle(&ThrottleConfig{PacketLossPercent: 100})
	out := th.DropEgress([]byte("abcdef"))
	require.Empty(t, out)
}
