package proxy

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDialUpstreamPlaintext(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan struct{})
	go func() {
		c, err := ln.Accept()
		if err == nil {
			c.Close()
		}
		close(accepted)
	}()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	m := &Manager{cfg: Config{UpstreamConnectTimeout: time.Second}}
	conn, err := m.dialUpstream(context.Background(), host, port, false)
	require.NoError(t, err)
	defer conn.Close()

	<-accepted
}

func TestDialUpstreamConnectionRefused(t *testing.T) {
	m := &Manager{cfg: Config{UpstreamConnectTimeout: time.Second}}
	_, err := m.dialUpstream(context.Background(), "127.0.0.1", 1, false)
	require.Error(t, err)
}
