package tls

import (
	"crypto/tls"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupDisabled(t *testing.T) {
	cfg, err := Setup(ServerConfig{})
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestSetupAutoGenerate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "certs")
	cfg, err := Setup(ServerConfig{Enabled: true, Dir: dir, AutoGenerate: true, MinVersion: "1.2"})
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	assert.Equal(t, uint16(tls.VersionTLS13), cfg.MaxVersion)

	for _, f := range []string{tlsCrt, tlsKey, tlsCaCrt} {
		_, err := os.Stat(filepath.Join(dir, f))
		assert.NoError(t, err, f)
	}
	info, err := os.Stat(filepath.Join(dir, tlsKey))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	cert, err := cfg.GetCertificate(&tls.ClientHelloInfo{})
	require.NoError(t, err)
	assert.NotEmpty(t, cert.Certificate)
}

func TestSetupDirWithoutCertificates(t *testing.T) {
	_, err := Setup(ServerConfig{Enabled: true, Dir: t.TempDir()})
	assert.Error(t, err)
}

func TestSetupExplicitFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, GenerateSelfSignedCert(CertConfig{
		CommonName: "relay",
		DNSNames:   []string{"relay.local"},
		NotAfter:   time.Now().Add(time.Hour),
		CertPath:   filepath.Join(dir, "relay.crt"),
		KeyPath:    filepath.Join(dir, "relay.key"),
	}))
	cfg, err := Setup(ServerConfig{
		Enabled:  true,
		CertFile: filepath.Join(dir, "relay.crt"),
		KeyFile:  filepath.Join(dir, "relay.key"),
	})
	require.NoError(t, err)
	assert.Equal(t, uint16(tls.VersionTLS13), cfg.MinVersion)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ServerConfig
		wantErr bool
	}{
		{"disabled", ServerConfig{MinVersion: "bogus"}, false},
		{"dir", ServerConfig{Enabled: true, Dir: "/tmp/x"}, false},
		{"files", ServerConfig{Enabled: true, CertFile: "a", KeyFile: "b"}, false},
		{"default version", ServerConfig{Enabled: true, Dir: "d", MinVersion: "default"}, false},
		{"cert without key", ServerConfig{Enabled: true, CertFile: "a"}, true},
		{"nothing", ServerConfig{Enabled: true}, true},
		{"bad version", ServerConfig{Enabled: true, Dir: "d", MaxVersion: "1.1"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSafeReadFileRejectsEscape(t *testing.T) {
	dir := t.TempDir()
	_, err := safeReadFile(dir, filepath.Join(dir, "..", "etc", "passwd"))
	assert.Error(t, err)
}
