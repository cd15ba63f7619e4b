package tlsutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
)

type certFiles struct {
	cert, key string
}

// writeCert creates a certificate signed by parent (self-signed when parent
// is nil) and writes it with its key under dir
func writeCert(t *testing.T, dir, name, cn string, isCA bool, parent *x509.Certificate, parentKey *ecdsa.PrivateKey) (certFiles, *x509.Certificate, *ecdsa.PrivateKey) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  isCA,
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
		DNSNames:              []string{"localhost"},
	}
	signer, signerKey := tmpl, key
	if parent != nil {
		signer, signerKey = parent, parentKey
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, signer, &key.PublicKey, signerKey)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	files := certFiles{
		cert: filepath.Join(dir, name+".pem"),
		key:  filepath.Join(dir, name+"-key.pem"),
	}
	require.NoError(t, os.WriteFile(files.cert, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o644))
	require.NoError(t, os.WriteFile(files.key, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))
	return files, cert, key
}

type pki struct {
	ca, server, client, stranger certFiles
}

func newPKI(t *testing.T) pki {
	t.Helper()
	dir := t.TempDir()
	ca, caCert, caKey := writeCert(t, dir, "ca", "test-ca", true, nil, nil)
	server, _, _ := writeCert(t, dir, "server", "localhost", false, caCert, caKey)
	client, _, _ := writeCert(t, dir, "client", "rtcd-client", false, caCert, caKey)
	stranger, _, _ := writeCert(t, dir, "stranger", "stranger", false, caCert, caKey)
	return pki{ca: ca, server: server, client: client, stranger: stranger}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"client disabled", ClientConfig{}.Validate(), false},
		{"client CA only", ClientConfig{Enabled: true, CAFiles: []string{"ca.pem"}}.Validate(), false},
		{"client cert without key", ClientConfig{Enabled: true, CertFile: "c.pem"}.Validate(), true},
		{"client bad version", ClientConfig{Enabled: true, MinVersion: "1.0"}.Validate(), true},
		{"server disabled", ServerConfig{}.Validate(), false},
		{"server complete", ServerConfig{Enabled: true, CertFile: "c", KeyFile: "k", MinVersion: "1.3"}.Validate(), false},
		{"server missing key", ServerConfig{Enabled: true, CertFile: "c"}.Validate(), true},
		{"server requires CAs", ServerConfig{Enabled: true, CertFile: "c", KeyFile: "k", RequireClientCert: true}.Validate(), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.wantErr {
				assert.True(t, errors.IsInvalid(tt.err), "got %v", tt.err)
			} else {
				assert.NoError(t, tt.err)
			}
		})
	}
}

func TestLoadDisabled(t *testing.T) {
	c, err := LoadClientConfig(ClientConfig{})
	require.NoError(t, err)
	assert.Nil(t, c)

	s, err := LoadServerConfig(ServerConfig{})
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestLoadServerConfig(t *testing.T) {
	p := newPKI(t)

	cfg, err := LoadServerConfig(ServerConfig{Enabled: true, CertFile: p.server.cert, KeyFile: p.server.key, MinVersion: "1.3"})
	require.NoError(t, err)
	assert.Len(t, cfg.Certificates, 1)
	assert.Equal(t, uint16(tls.VersionTLS13), cfg.MinVersion)
	assert.Equal(t, tls.NoClientCert, cfg.ClientAuth)

	cfg, err = LoadServerConfig(ServerConfig{
		Enabled: true, CertFile: p.server.cert, KeyFile: p.server.key,
		ClientCAFiles: []string{p.ca.cert}, RequireClientCert: true,
	})
	require.NoError(t, err)
	assert.Equal(t, tls.RequireAndVerifyClientCert, cfg.ClientAuth)
	assert.NotNil(t, cfg.ClientCAs)

	_, err = LoadServerConfig(ServerConfig{Enabled: true, CertFile: "/nonexistent.pem", KeyFile: p.server.key})
	assert.True(t, errors.IsFatal(err))

	_, err = LoadServerConfig(ServerConfig{
		Enabled: true, CertFile: p.server.cert, KeyFile: p.server.key,
		ClientCAFiles: []string{p.server.key},
	})
	assert.True(t, errors.IsFatal(err), "a key file holds no certificates")
}

func TestLoadClientConfig(t *testing.T) {
	p := newPKI(t)

	cfg, err := LoadClientConfig(ClientConfig{Enabled: true, CAFiles: []string{p.ca.cert}})
	require.NoError(t, err)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	assert.Empty(t, cfg.Certificates)
	assert.False(t, cfg.InsecureSkipVerify)

	cfg, err = LoadClientConfig(ClientConfig{
		Enabled: true, CAFiles: []string{p.ca.cert},
		CertFile: p.client.cert, KeyFile: p.client.key,
	})
	require.NoError(t, err)
	assert.Len(t, cfg.Certificates, 1)

	_, err = LoadClientConfig(ClientConfig{Enabled: true, CAFiles: []string{"/nonexistent.pem"}})
	assert.True(t, errors.IsFatal(err))
}

func TestMutualTLSHandshake(t *testing.T) {
	p := newPKI(t)

	serverCfg, err := LoadServerConfig(ServerConfig{
		Enabled: true, CertFile: p.server.cert, KeyFile: p.server.key,
		ClientCAFiles: []string{p.ca.cert}, RequireClientCert: true,
		AllowedClientCNs: []string{"rtcd-client"},
	})
	require.NoError(t, err)

	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	srv.TLS = serverCfg
	srv.StartTLS()
	defer srv.Close()

	get := func(files certFiles) error {
		clientCfg, err := LoadClientConfig(ClientConfig{
			Enabled: true, CAFiles: []string{p.ca.cert},
			CertFile: files.cert, KeyFile: files.key,
		})
		require.NoError(t, err)
		client := &http.Client{Transport: &http.Transport{TLSClientConfig: clientCfg}, Timeout: 5 * time.Second}
		resp, err := client.Get(srv.URL)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		return nil
	}

	assert.NoError(t, get(p.client))
	assert.Error(t, get(p.stranger), "CN outside the allow list")
}

func TestParseTLSVersion(t *testing.T) {
	assert.Equal(t, uint16(tls.VersionTLS13), parseTLSVersion("1.3"))
	assert.Equal(t, uint16(tls.VersionTLS12), parseTLSVersion("1.2"))
	assert.Equal(t, uint16(tls.VersionTLS12), parseTLSVersion(""))
}
