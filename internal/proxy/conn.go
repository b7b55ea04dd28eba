package proxy

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"strings"
)

// handleConn sniffs the first line of a newly accepted connection and
// dispatches to the CONNECT handler or directly into the HTTP/1 forward
// proxy loop, per the Connection Manager's protocol-sniffing steps.
func (m *Manager) handleConn(ctx context.Context, nc net.Conn) {
	defer nc.Close()

	br := bufio.NewReader(nc)
	line, err := peekLine(br)
	if err != nil {
		return
	}

	if method, target, ok := parseRequestLine(line); ok && method == "CONNECT" {
		m.handleConnect(ctx, nc, br, target)
		return
	}

	m.runHTTP1(ctx, nc, br, "", "", 0)
}

// peekLine returns the first CRLF-terminated request line without
// consuming it from br, so the caller can still feed the same bytes into
// the HTTP/1 parser afterward.
func peekLine(br *bufio.Reader) (string, error) {
	for size := 512; ; size *= 2 {
		if size > 64*1024 {
			return "", errors.New("request line too long")
		}
		peeked, err := br.Peek(size)
		if idx := indexCRLF(peeked); idx >= 0 {
			return string(peeked[:idx]), nil
		}
		if err != nil {
			if len(peeked) == 0 {
				return "", err
			}
			return "", errors.New("no complete request line buffered")
		}
	}
}

func indexCRLF(b []byte) int {
	for i := 0; i+1 < len(b); i++ {
		if b[i] == '\r' && b[i+1] == '\n' {
			return i
		}
	}
	return -1
}

func parseRequestLine(line string) (method, target string, ok bool) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// handleConnect services a CONNECT tunnel: it replies 200, then either
// terminates TLS and dispatches by ALPN (intercept mode) or blindly
// splices bytes to the dialed target (tunnel mode).
func (m *Manager) handleConnect(ctx context.Context, nc net.Conn, br *bufio.Reader, target string) {
	if !consumeConnectRequest(br) {
		return
	}

	host, port := parseAuthority(target, "https")

	if _, err := io.WriteString(nc, "HTTP/1.1 200 Connection Established\r\n\r\n"); err != nil {
		return
	}

	if !m.cfg.Intercept {
		m.tunnel(ctx, nc, host, port)
		return
	}
	m.intercept(ctx, nc, br, host, port)
}

// consumeConnectRequest reads and discards the CONNECT request's headers
// (CONNECT carries no body) so the connection is positioned at the start
// of whatever follows, whether that's a TLS ClientHello or raw bytes.
func consumeConnectRequest(br *bufio.Reader) bool {
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return false
		}
		if line == "\r\n" || line == "\n" {
			return true
		}
	}
}

// tunnel blindly splices bytes between the client and the dialed target
// until either side closes, per interception-disabled CONNECT handling.
func (m *Manager) tunnel(ctx context.Context, client net.Conn, host string, port int) {
	upstream, err := m.dialUpstream(ctx, host, port, false)
	if err != nil {
		return
	}
	defer upstream.Close()

	done := make(chan struct{}, 2)
	go func() {
		_, _ = io.Copy(upstream, client)
		if c, ok := upstream.(interface{ CloseWrite() error }); ok {
			_ = c.CloseWrite()
		}
		done <- struct{}{}
	}()
	go func() {
		_, _ = io.Copy(client, upstream)
		if c, ok := client.(interface{ CloseWrite() error }); ok {
			_ = c.CloseWrite()
		}
		done <- struct{}{}
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
}

// bufferedConn adapts a net.Conn whose cleartext prefix (the CONNECT
// request) was already consumed into a bufio.Reader back into a plain
// net.Conn, so a fresh reader (e.g. tls.Server) sees the bytes still
// sitting in that buffer before it sees any more off the wire.
type bufferedConn struct {
	net.Conn
	br *bufio.Reader
}

func (b *bufferedConn) Read(p []byte) (int, error) { return b.br.Read(p) }

// intercept terminates TLS on the client socket using a leaf cert minted
// for host, then dispatches by negotiated ALPN protocol: h2 traffic is
// tunneled with frame-level observation, everything else runs the
// HTTP/1 request/response loop with the upstream dialed as TLS too.
func (m *Manager) intercept(ctx context.Context, client net.Conn, clientBR *bufio.Reader, host string, port int) {
	key, cert, err := m.leafs.GetOrGenerate(host)
	if err != nil {
		m.logger.Debug("leaf cert generation failed", "host", host, "error", err)
		return
	}

	tlsConfig := interceptTLSConfig(key, cert, m.caStore.RootCertificate())

	tlsConn := tls.Server(&bufferedConn{Conn: client, br: clientBR}, tlsConfig)
	hctx, cancel := context.WithTimeout(ctx, m.cfg.HandshakeTimeout)
	defer cancel()
	if err := tlsConn.HandshakeContext(hctx); err != nil {
		m.logger.Debug("client TLS handshake failed", "host", host, "error", err)
		return
	}

	br := bufio.NewReader(tlsConn)
	if tlsConn.ConnectionState().NegotiatedProtocol == "h2" {
		m.bridgeH2(ctx, tlsConn, host, port)
		return
	}
	m.runHTTP1(ctx, tlsConn, br, "https", host, port)
}
