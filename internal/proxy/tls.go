package proxy

import (
	"crypto/ecdsa"
	"crypto/tls"
	"crypto/x509"

	"github.com/syrahproxy/syrah/internal/common"
)

// cipherSuiteIDs maps the cipher suite names common.SupportedTLSCipherSuite
// recognizes onto their crypto/tls IDs, so the interception listener
// offers the suites common.DefaultTLSCipherSuites lists rather than
// whatever crypto/tls defaults to.
var cipherSuiteIDs = buildCipherSuiteIDs()

func buildCipherSuiteIDs() map[string]uint16 {
	ids := make(map[string]uint16)
	for _, suite := range tls.CipherSuites() {
		if common.SupportedTLSCipherSuite(suite.Name) {
			ids[suite.Name] = suite.ID
		}
	}
	return ids
}

// interceptTLSConfig builds the server-role *tls.Config used to terminate
// a client's CONNECT tunnel once a leaf cert for the target host is
// available: ECDSA leaf + chain to the root CA, ALPN offering h2 then
// http/1.1 so the handshake's negotiated protocol picks the HTTP/2 or
// HTTP/1 dispatch, and the cipher suite set from the default list.
func interceptTLSConfig(leafKey *ecdsa.PrivateKey, leafCert, rootCert *x509.Certificate) *tls.Config {
	cert := tls.Certificate{
		Certificate: [][]byte{leafCert.Raw, rootCert.Raw},
		PrivateKey:  leafKey,
	}

	suites := make([]uint16, 0, len(common.DefaultTLSCipherSuites()))
	for _, name := range common.DefaultTLSCipherSuites() {
		if id, ok := cipherSuiteIDs[name]; ok {
			suites = append(suites, id)
		}
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{"h2", "http/1.1"},
		MinVersion:   tls.VersionTLS12,
		CipherSuites: suites,
	}
}

// upstreamTLSConfig builds the client-role *tls.Config used when dialing
// an intercepted HTTPS origin, offering the same ALPN set so the upstream
// negotiation can select h2 independently of what the client negotiated.
func upstreamTLSConfig(serverName string, insecureSkipVerify bool) *tls.Config {
	return &tls.Config{
		ServerName:         serverName,
		NextProtos:         []string{"h2", "http/1.1"},
		InsecureSkipVerify: insecureSkipVerify,
		MinVersion:         tls.VersionTLS12,
	}
}
