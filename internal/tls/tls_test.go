package tls

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupDisabled(t *testing.T) {
	cfg, err := Setup(Config{})
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestSetupAutoGenerate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tls")
	c := Config{Enabled: true, Dir: dir, AutoGenerate: true, ValidDays: 1}

	cfg, err := Setup(c)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, uint16(tls.VersionTLS13), cfg.MinVersion)

	for _, name := range []string{tlsCrt, tlsKey, tlsCaCrt} {
		_, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err, name)
	}
	cert, err := cfg.GetCertificate(&tls.ClientHelloInfo{})
	require.NoError(t, err)
	require.NotEmpty(t, cert.Certificate)

	parsed, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	assert.Equal(t, "localhost", parsed.Subject.CommonName)
	assert.Contains(t, parsed.DNSNames, "localhost")
	require.Len(t, parsed.IPAddresses, 1)
	assert.Equal(t, "127.0.0.1", parsed.IPAddresses[0].String())
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 1), parsed.NotAfter, time.Hour)

	// a second Setup reuses the generated pair
	before, err := os.ReadFile(filepath.Join(dir, tlsCrt))
	require.NoError(t, err)
	_, err = Setup(c)
	require.NoError(t, err)
	after, err := os.ReadFile(filepath.Join(dir, tlsCrt))
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestSetupExplicitFiles(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := filepath.Join(dir, "a.crt"), filepath.Join(dir, "a.key")
	require.NoError(t, GenerateSelfSignedCert(CertConfig{
		CommonName: "tuc.local", Organization: "tuc", NotAfter: time.Now().Add(time.Hour),
		CertPath: certPath, KeyPath: keyPath,
	}))

	cfg, err := Setup(Config{Enabled: true, CertFile: certPath, KeyFile: keyPath, MinVersion: "1.2"})
	require.NoError(t, err)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)

	data, err := os.ReadFile(keyPath)
	require.NoError(t, err)
	block, _ := pem.Decode(data)
	require.NotNil(t, block)
	assert.Equal(t, "PRIVATE KEY", block.Type)

	_, err = Setup(Config{Enabled: true, CertFile: filepath.Join(dir, "x.crt"), KeyFile: keyPath})
	assert.Error(t, err)
}

func TestSetupMissingWithoutAutoGenerate(t *testing.T) {
	_, err := Setup(Config{Enabled: true, Dir: t.TempDir()})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Config{}.Validate())
	assert.Error(t, Config{Enabled: true}.Validate())
	assert.Error(t, Config{Enabled: true, CertFile: "a.crt"}.Validate())
	assert.Error(t, Config{Enabled: true, Dir: "d", MinVersion: "1.1"}.Validate())
	assert.NoError(t, Config{Enabled: true, Dir: "d", MaxVersion: "TLS1.3"}.Validate())
}

func TestSafeReadFileRejectsOutsideBase(t *testing.T) {
	base := t.TempDir()
	_, err := safeReadFile(base, filepath.Join(base, "..", "etc", "passwd"))
	assert.Error(t, err)
}

func TestCACertPath(t *testing.T) {
	assert.Empty(t, Config{}.CACertPath())
	assert.Equal(t, filepath.Join("d", tlsCaCrt), Config{Dir: "d"}.CACertPath())
}
