package proxy

import (
	"context"
	"crypto/tls"
	"net"
	"strconv"
)

// dialUpstream opens a connection to host:port, upgrading to TLS when
// secure is true, bounded by cfg.UpstreamConnectTimeout for the TCP
// connect and cfg.HandshakeTimeout for the TLS handshake.
func (m *Manager) dialUpstream(ctx context.Context, host string, port int, secure bool) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: m.cfg.UpstreamConnectTimeout}
	if port == 0 {
		port = 80
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	nc, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if !secure {
		return nc, nil
	}

	tlsConn := tls.Client(nc, upstreamTLSConfig(host, m.cfg.InsecureSkipVerifyUpstream))
	hctx, cancel := context.WithTimeout(ctx, m.cfg.HandshakeTimeout)
	defer cancel()
	if err := tlsConn.HandshakeContext(hctx); err != nil {
		nc.Close()
		return nil, err
	}
	return tlsConn, nil
}
