// Package ca implements on-disk root key/cert persistence, on-demand
// leaf signing, and a bounded leaf cert cache.
package ca

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/pkcs12"

	"github.com/syrahproxy/syrah/internal/errs"
)

// ErrMissing is returned by Load when no CA material is present on disk.
var ErrMissing = errors.New("ca: key material missing")

// ErrCorrupt is returned when persisted CA material exists but cannot be
// decoded.
var ErrCorrupt = errors.New("ca: key material corrupt")

const (
	subjectCN     = "SyrahProxy CA"
	validityYears = 10
	leafValidity  = 365 * 24 * time.Hour

	keyFileName  = "syrah-ca.key"
	certFileName = "syrah-ca-cert.pem"
	derFileName  = "syrah-ca-cert.cer"
	p12FileName  = "syrah-ca-cert.p12"
)

// Material holds the root CA's private key and parsed certificate, plus the
// raw DER bytes needed to build certificate chains for leaves.
type Material struct {
	Key     *ecdsa.PrivateKey
	Cert    *x509.Certificate
	CertDER []byte
}

// Store is the Root CA Store. It is safe for concurrent use: the key
// material is immutable after Load succeeds, so reads never need to
// synchronize.
type Store struct {
	dir      string
	material *Material
}

// NewStore returns a Store rooted at dir. Call Load to populate it.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Load loads persisted CA material from dir, generating and persisting a
// new CA if none is present. Both failure modes are fatal to
// the proxy process.
func (s *Store) Load() (*Material, error) {
	keyPath := filepath.Join(s.dir, keyFileName)
	certPath := filepath.Join(s.dir, certFileName)

	keyPEM, keyErr := os.ReadFile(keyPath)
	certPEM, certErr := os.ReadFile(certPath)

	switch {
	case os.IsNotExist(keyErr) && os.IsNotExist(certErr):
		material, err := generate()
		if err != nil {
			return nil, errs.New(errs.KindFatal, "generating root CA", err)
		}
		if err := s.persist(material); err != nil {
			return nil, errs.New(errs.KindFatal, "persisting root CA", err)
		}
		s.material = material
		return material, nil
	case keyErr != nil || certErr != nil:
		return nil, errs.New(errs.KindFatal, "reading root CA", ErrMissing)
	}

	material, err := decode(keyPEM, certPEM)
	if err != nil {
		return nil, errs.New(errs.KindFatal, "decoding root CA", fmt.Errorf("%w: %v", ErrCorrupt, err))
	}
	s.material = material
	return material, nil
}

func generate() (*Material, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, err
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   subjectCN,
			Organization: []string{"SyrahProxy"},
		},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().AddDate(validityYears, 0, 0),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}

	return &Material{Key: key, Cert: cert, CertDER: der}, nil
}

func decode(keyPEM, certPEM []byte) (*Material, error) {
	keyBlock, _ := pem.Decode(keyPEM)
	if keyBlock == nil {
		return nil, errors.New("no PEM block in key file")
	}
	keyAny, err := x509.ParsePKCS8PrivateKey(keyBlock.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := keyAny.(*ecdsa.PrivateKey)
	if !ok {
		return nil, errors.New("root CA key is not an ECDSA key")
	}

	certBlock, _ := pem.Decode(certPEM)
	if certBlock == nil {
		return nil, errors.New("no PEM block in cert file")
	}
	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, err
	}

	return &Material{Key: key, Cert: cert, CertDER: certBlock.Bytes}, nil
}

func (s *Store) persist(m *Material) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}

	keyDER, err := x509.MarshalPKCS8PrivateKey(m.Key)
	if err != nil {
		return err
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})
	if err := os.WriteFile(filepath.Join(s.dir, keyFileName), keyPEM, 0o600); err != nil {
		return err
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: m.CertDER})
	if err := os.WriteFile(filepath.Join(s.dir, certFileName), certPEM, 0o644); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(s.dir, derFileName), m.CertDER, 0o644); err != nil {
		return err
	}

	p12Bytes, err := pkcs12.Encode(rand.Reader, m.Key, m.Cert, nil, "")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dir, p12FileName), p12Bytes, 0o644)
}

// SignLeaf signs a new leaf certificate for hostCN/sanDNSNames using the
// loaded root CA key.
func (s *Store) SignLeaf(hostCN string, sanDNSNames []string, validity time.Duration) (*ecdsa.PrivateKey, *x509.Certificate, error) {
	if s.material == nil {
		return nil, nil, ErrMissing
	}
	if validity <= 0 {
		validity = leafValidity
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, err
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, err
	}

	dnsNames := sanDNSNames
	if len(dnsNames) == 0 {
		dnsNames = []string{hostCN}
	}

	var ips []net.IP
	if ip := net.ParseIP(hostCN); ip != nil {
		ips = append(ips, ip)
		dnsNames = nil
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: hostCN},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(validity),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     dnsNames,
		IPAddresses:  ips,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, s.material.Cert, &key.PublicKey, s.material.Key)
	if err != nil {
		return nil, nil, err
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, nil, err
	}

	return key, cert, nil
}

// Format selects the encoding Export produces.
type Format string

const (
	FormatPEM Format = "pem"
	FormatDER Format = "der"
	FormatP12 Format = "p12"
)

// RootCertificate returns the loaded root CA's certificate, for building
// the chain a leaf cert is served with during interception. Nil if Load
// has not succeeded yet.
func (s *Store) RootCertificate() *x509.Certificate {
	if s.material == nil {
		return nil
	}
	return s.material.Cert
}

// Export produces the CA certificate (and, for p12, the key too) in the
// requested encoding, for installation into an OS trust store.
func (s *Store) Export(format Format) ([]byte, error) {
	if s.material == nil {
		return nil, ErrMissing
	}
	switch format {
	case FormatPEM:
		return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: s.material.CertDER}), nil
	case FormatDER:
		return s.material.CertDER, nil
	case FormatP12:
		return pkcs12.Encode(rand.Reader, s.material.Key, s.material.Cert, nil, "")
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}
