// Package tlsutil builds tls.Config values for the NATS carrier and the
// health endpoint from file-based settings.
package tlsutil

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"slices"

	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
)

// ClientConfig describes the TLS settings of an outbound connection.
// The system CA bundle is always trusted; CAFiles are additional roots.
type ClientConfig struct {
	Enabled            bool     `json:"enabled"                        mapstructure:"enabled"`
	CAFiles            []string `json:"ca_files,omitempty"             mapstructure:"ca_files"`
	CertFile           string   `json:"cert_file,omitempty"            mapstructure:"cert_file"`
	KeyFile            string   `json:"key_file,omitempty"             mapstructure:"key_file"`
	InsecureSkipVerify bool     `json:"insecure_skip_verify,omitempty" mapstructure:"insecure_skip_verify"`
	MinVersion         string   `json:"min_version,omitempty"          mapstructure:"min_version"`
}

// ServerConfig describes the TLS settings of a listener. ClientCAFiles
// enables client certificate verification.
type ServerConfig struct {
	Enabled           bool     `json:"enabled"                       mapstructure:"enabled"`
	CertFile          string   `json:"cert_file,omitempty"           mapstructure:"cert_file"`
	KeyFile           string   `json:"key_file,omitempty"            mapstructure:"key_file"`
	MinVersion        string   `json:"min_version,omitempty"         mapstructure:"min_version"`
	ClientCAFiles     []string `json:"client_ca_files,omitempty"     mapstructure:"client_ca_files"`
	RequireClientCert bool     `json:"require_client_cert,omitempty" mapstructure:"require_client_cert"`
	AllowedClientCNs  []string `json:"allowed_client_cns,omitempty"  mapstructure:"allowed_client_cns"`
}

// Validate checks that the referenced files are named consistently
func (c ClientConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if (c.CertFile == "") != (c.KeyFile == "") {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "tlsutil", "ClientConfig.Validate",
			"cert_file and key_file must be set together")
	}
	return checkVersion(c.MinVersion)
}

// Validate checks that a certificate and key are configured
func (c ServerConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.CertFile == "" || c.KeyFile == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "tlsutil", "ServerConfig.Validate",
			"cert_file and key_file are required")
	}
	if c.RequireClientCert && len(c.ClientCAFiles) == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig, "tlsutil", "ServerConfig.Validate",
			"require_client_cert needs client_ca_files")
	}
	return checkVersion(c.MinVersion)
}

// LoadClientConfig returns nil when TLS is disabled
func LoadClientConfig(cfg ClientConfig) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	rootCAs, err := x509.SystemCertPool()
	if err != nil {
		rootCAs = x509.NewCertPool()
	}
	if err := appendPEMFiles(rootCAs, cfg.CAFiles); err != nil {
		return nil, errors.WrapFatal(err, "tlsutil", "LoadClientConfig", "load CA files")
	}

	tlsConfig := &tls.Config{
		RootCAs:            rootCAs,
		MinVersion:         parseTLSVersion(cfg.MinVersion),
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}

	if cfg.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, errors.WrapFatal(err, "tlsutil", "LoadClientConfig", "load client certificate")
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	return tlsConfig, nil
}

// LoadServerConfig returns nil when TLS is disabled
func LoadServerConfig(cfg ServerConfig) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, errors.WrapFatal(err, "tlsutil", "LoadServerConfig", "load certificate")
	}
	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   parseTLSVersion(cfg.MinVersion),
	}

	if len(cfg.ClientCAFiles) == 0 {
		return tlsConfig, nil
	}

	clientCAs := x509.NewCertPool()
	if err := appendPEMFiles(clientCAs, cfg.ClientCAFiles); err != nil {
		return nil, errors.WrapFatal(err, "tlsutil", "LoadServerConfig", "load client CA files")
	}
	tlsConfig.ClientCAs = clientCAs
	if cfg.RequireClientCert {
		tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
	} else {
		tlsConfig.ClientAuth = tls.VerifyClientCertIfGiven
	}

	if len(cfg.AllowedClientCNs) > 0 {
		allowed := cfg.AllowedClientCNs
		tlsConfig.VerifyPeerCertificate = func(_ [][]byte, chains [][]*x509.Certificate) error {
			return verifyAllowedClientCN(chains, allowed)
		}
	}
	return tlsConfig, nil
}

func appendPEMFiles(pool *x509.CertPool, files []string) error {
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if !pool.AppendCertsFromPEM(data) {
			return fmt.Errorf("no PEM certificates in %s", path)
		}
	}
	return nil
}

// verifyAllowedClientCN checks the leaf certificate CN against the allow list.
// Without verified chains (no client certificate) there is nothing to check.
func verifyAllowedClientCN(chains [][]*x509.Certificate, allowed []string) error {
	if len(chains) == 0 || len(chains[0]) == 0 {
		return nil
	}
	cn := chains[0][0].Subject.CommonName
	if slices.Contains(allowed, cn) {
		return nil
	}
	return fmt.Errorf("client certificate CN %q not in allowed list", cn)
}

func checkVersion(v string) error {
	switch v {
	case "", "1.2", "1.3":
		return nil
	default:
		return errors.WrapInvalid(fmt.Errorf("unsupported TLS version %q", v), "tlsutil", "Validate", "min_version")
	}
}

// parseTLSVersion converts a version string to a crypto/tls constant,
// defaulting to TLS 1.2
func parseTLSVersion(version string) uint16 {
	if version == "1.3" {
		return tls.VersionTLS13
	}
	return tls.VersionTLS12
}
