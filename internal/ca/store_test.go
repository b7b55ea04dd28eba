package ca

import (
	"crypto/x509"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesAndPersists(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	material, err := store.Load()
	require.NoError(t, err)
	require.True(t, material.Cert.IsCA)
	require.Equal(t, subjectCN, material.Cert.Subject.CommonName)

	reloaded := NewStore(dir)
	again, err := reloaded.Load()
	require.NoError(t, err)
	require.Equal(t, material.Cert.SerialNumber, again.Cert.SerialNumber)
}

func TestSignLeafChainsToCA(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	_, err := store.Load()
	require.NoError(t, err)

	_, leaf, err := store.SignLeaf("example.test", []string{"example.test"}, 0)
	require.NoError(t, err)
	require.Contains(t, leaf.DNSNames, "example.test")
	require.Equal(t, subjectCN, leaf.Issuer.CommonName)

	pool := x509.NewCertPool()
	pool.AddCert(store.material.Cert)
	_, err = leaf.Verify(x509.VerifyOptions{Roots: pool, KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}})
	require.NoError(t, err)
}

func TestExportFormats(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	_, err := store.Load()
	require.NoError(t, err)

	for _, format := range []Format{FormatPEM, FormatDER, FormatP12} {
		data, err := store.Export(format)
		require.NoError(t, err)
		require.NotEmpty(t, data)
	}
}
