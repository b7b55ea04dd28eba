package proxy

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/syrahproxy/syrah/internal/flow"
	"github.com/syrahproxy/syrah/internal/httpmsg"
	"github.com/syrahproxy/syrah/internal/metrics"
	"github.com/syrahproxy/syrah/internal/rules"
	"github.com/syrahproxy/syrah/internal/wsframe"
)

// runHTTP1 drives the HTTP/1 request/response loop for one client
// connection. A non-empty fixedHost/fixedPort/fixedScheme pins every
// request on the connection to the CONNECT target that was already
// TLS-terminated; otherwise each request's target is derived from its
// own request line or Host header, as a forward proxy does.
func (m *Manager) runHTTP1(ctx context.Context, clientConn net.Conn, br *bufio.Reader, fixedScheme, fixedHost string, fixedPort int) {
	intercepted := fixedHost != ""

	for {
		if err := clientConn.SetReadDeadline(time.Now().Add(m.cfg.IdleKeepAliveTimeout)); err != nil {
			return
		}

		parser := httpmsg.NewParser(httpmsg.KindRequest)
		if !m.readMessage(clientConn, br, parser) {
			return
		}

		scheme, host, port, req := m.resolveRequest(parser, fixedScheme, fixedHost, fixedPort, intercepted)
		if req == nil {
			writeBadRequest(clientConn)
			return
		}

		f := flow.New(m.sessionID, protocolFor(scheme))
		if err := f.RecordRequest(req); err != nil {
			m.logger.Warn("cannot record request against flow", "error", err)
			return
		}
		ex := &exchange{f: f, req: req, intercepted: intercepted}

		keepAlive := shouldKeepAlive(req.Headers)

		flowCtx, cancel := context.WithCancel(ctx)
		m.registerFlow(f.ID, cancel)
		ok := m.runExchange(flowCtx, clientConn, ex, scheme, host, port)
		m.unregisterFlow(f.ID)
		cancel()
		if !ok {
			return
		}
		if !keepAlive {
			return
		}
	}
}

// runExchange performs steps (a)-(e) of one request/response pair and
// reports whether the connection should continue to the next request.
func (m *Manager) runExchange(ctx context.Context, clientConn net.Conn, ex *exchange, scheme, host string, port int) bool {
	decision, killed, err := m.applyDecision(ctx, rules.PhaseRequest, ex)
	if err != nil {
		m.logger.Debug("request phase evaluation failed", "error", err)
		return false
	}
	if killed {
		m.publish(ex)
		return false
	}

	switch decision.Kind {
	case rules.DecisionShort:
		ex.resp = decision.Response
		return m.finishWithResponse(clientConn, ex)
	case rules.DecisionRedirect:
		if u, err := url.Parse(decision.NewUpstream); err == nil && u.Host != "" {
			host, port = parseAuthority(u.Host, u.Scheme)
			if u.Scheme != "" {
				scheme = u.Scheme
			}
		}
	}

	upstream, err := m.dialUpstream(ctx, host, port, scheme == "https")
	if err != nil {
		ex.resp = badGatewayResponse(err)
		return m.finishWithResponse(clientConn, ex)
	}
	defer upstream.Close()

	m.throttle.InjectLatency(ctx)
	reqPayload := m.throttle.DropEgress(serializeRequest(ex.req))
	if err := m.throttle.WaitUpload(ctx, len(reqPayload)); err != nil {
		ex.resp = badGatewayResponse(err)
		return m.finishWithResponse(clientConn, ex)
	}
	if _, err := upstream.Write(reqPayload); err != nil {
		ex.resp = badGatewayResponse(err)
		return m.finishWithResponse(clientConn, ex)
	}

	respParser := httpmsg.NewParser(httpmsg.KindResponse)
	upstreamReader := bufio.NewReader(upstream)
	if !m.readMessage(upstream, upstreamReader, respParser) {
		ex.resp = badGatewayResponse(errors.New("upstream closed before a complete response"))
		return m.finishWithResponse(clientConn, ex)
	}

	ex.resp = buildResponse(respParser)
	if err := ex.f.RecordResponseHeaders(ex.resp); err != nil {
		m.logger.Debug("cannot record response against flow", "error", err)
	}

	if ex.resp.StatusCode == 101 && wsframe.IsUpgradeRequest(ex.req.Headers) {
		if err := ex.f.CompleteResponse(ex.resp); err == nil {
			m.publish(ex)
		}
		if err := writeResponse(clientConn, ex.resp); err != nil {
			return false
		}
		m.bridgeWebSocket(ctx, clientConn, upstream, host)
		return false
	}

	decision, killed, err = m.applyDecision(ctx, rules.PhaseResponse, ex)
	if err != nil {
		m.logger.Debug("response phase evaluation failed", "error", err)
		return false
	}
	if killed {
		m.publish(ex)
		return false
	}
	if decision.Kind == rules.DecisionShort {
		ex.resp = decision.Response
	}

	return m.finishWithResponse(clientConn, ex)
}

// finishWithResponse completes the flow, writes the response back to the
// client (subject to throttling), and emits the finalized flow.
func (m *Manager) finishWithResponse(clientConn net.Conn, ex *exchange) bool {
	if ex.f.CurrentState() == flow.StateWaiting {
		// Short-circuited, bad-gateway and resumed exchanges reach here
		// without response headers recorded; Waiting cannot go straight
		// to Completed.
		_ = ex.f.RecordResponseHeaders(ex.resp)
	}
	if err := ex.f.CompleteResponse(ex.resp); err != nil {
		_ = ex.f.Fail(err)
		m.publish(ex)
		metrics.Registry.IncrCounter(metrics.FlowsFailed, 1)
		return false
	}

	payload := serializeResponse(ex.resp)
	payload = m.throttle.DropEgress(payload)
	if err := m.throttle.WaitDownload(context.Background(), len(payload)); err != nil {
		return false
	}
	if _, err := clientConn.Write(payload); err != nil {
		return false
	}

	m.publish(ex)
	metrics.Registry.IncrCounter(metrics.FlowsCompleted, 1)
	return true
}

// readMessage feeds br into parser until it reaches Complete, reporting
// false if the connection closed or errored before that point.
func (m *Manager) readMessage(nc net.Conn, br *bufio.Reader, parser *httpmsg.Parser) bool {
	buf := make([]byte, 8192)
	for {
		n, err := br.Read(buf)
		if n > 0 {
			if ferr := parser.Feed(buf[:n]); ferr != nil {
				return false
			}
			if parser.State() == httpmsg.StateComplete {
				return true
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return parser.Close() == nil && parser.State() == httpmsg.StateComplete
			}
			return false
		}
	}
}

// resolveRequest determines scheme/host/port for a parsed request and
// builds the Flow model's Request for it. Returns a nil req if the
// request line cannot be resolved to a target.
func (m *Manager) resolveRequest(parser *httpmsg.Parser, fixedScheme, fixedHost string, fixedPort int, intercepted bool) (scheme, host string, port int, req *flow.Request) {
	if intercepted {
		scheme, host, port = fixedScheme, fixedHost, fixedPort
		return scheme, host, port, buildRequest(parser, scheme, host, port, scheme == "https")
	}

	target := parser.Start.Target
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		u, err := url.Parse(target)
		if err != nil {
			return "", "", 0, nil
		}
		scheme = u.Scheme
		host, port = parseAuthority(u.Host, scheme)
		parser.Start.Target = u.RequestURI()
		return scheme, host, port, buildRequest(parser, scheme, host, port, scheme == "https")
	}

	hostHeader, _ := parser.Headers.Get("Host")
	if hostHeader == "" {
		return "", "", 0, nil
	}
	scheme = "http"
	host, port = parseAuthority(hostHeader, scheme)
	return scheme, host, port, buildRequest(parser, scheme, host, port, false)
}

func protocolFor(scheme string) flow.Protocol {
	if scheme == "https" {
		return flow.ProtocolHTTPS
	}
	return flow.ProtocolHTTP
}

func shouldKeepAlive(headers *flow.Headers) bool {
	conn, ok := headers.Get("Connection")
	if !ok {
		return true
	}
	return !strings.EqualFold(strings.TrimSpace(conn), "close")
}

func serializeResponse(resp *flow.Response) []byte {
	var b strings.Builder
	_ = writeResponse(&b, resp)
	return []byte(b.String())
}

func serializeRequest(req *flow.Request) []byte {
	var b strings.Builder
	_ = writeRequest(&b, req)
	return []byte(b.String())
}

func badGatewayResponse(err error) *flow.Response {
	headers := flow.NewHeaders()
	headers.Set("Content-Type", "text/plain")
	body := []byte("bad gateway: " + err.Error())
	headers.Set("Content-Length", strconv.Itoa(len(body)))
	return &flow.Response{
		StatusCode:    502,
		StatusMessage: "Bad Gateway",
		HTTPVersion:   "HTTP/1.1",
		Headers:       headers,
		Body:          &flow.Body{Raw: body, Text: string(body), HasText: true},
		ContentLength: int64(len(body)),
		Timestamp:     time.Now(),
	}
}

func writeBadRequest(nc net.Conn) {
	_, _ = nc.Write([]byte("HTTP/1.1 400 Bad Request\r\nConnection: close\r\nContent-Length: 0\r\n\r\n"))
}

