// Package tls builds the operator API's server TLS configuration, optionally
// generating a self-signed certificate on first start.
package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	tlsCaCrt = "tls_ca.crt"
	tlsCrt   = "tls.crt"
	tlsKey   = "tls.key"
)

// Config describes where the operator API finds its certificate.
type Config struct {
	Enabled      bool     `mapstructure:"enabled"`
	CertFile     string   `mapstructure:"cert_file"`
	KeyFile      string   `mapstructure:"key_file"`
	Dir          string   `mapstructure:"dir"`
	AutoGenerate bool     `mapstructure:"auto_generate"`
	CommonName   string   `mapstructure:"common_name"`
	DNSNames     []string `mapstructure:"dns_names"`
	IPAddresses  []string `mapstructure:"ip_addresses"`
	ValidDays    int      `mapstructure:"valid_days"`
	MinVersion   string   `mapstructure:"min_version"`
	MaxVersion   string   `mapstructure:"max_version"`
}

// parseVersion maps "1.2"/"1.3" style strings onto tls constants.
func parseVersion(ver string) (uint16, bool) {
	switch strings.ToLower(ver) {
	case "", "default":
		return tls.VersionTLS13, false
	case "1.2", "tls1.2":
		return tls.VersionTLS12, true
	case "1.3", "tls1.3":
		return tls.VersionTLS13, true
	default:
		return 0, false
	}
}

// Validate reports configuration that Setup would reject.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	var errs []error
	for _, v := range []string{c.MinVersion, c.MaxVersion} {
		if _, ok := parseVersion(v); !ok && v != "" && v != "default" {
			errs = append(errs, fmt.Errorf("server.tls: unknown TLS version %q", v))
		}
	}
	if (c.CertFile == "") != (c.KeyFile == "") {
		errs = append(errs, errors.New("server.tls: cert_file and key_file must be set together"))
	}
	if c.CertFile == "" && c.Dir == "" {
		errs = append(errs, errors.New("server.tls: enabled but neither cert_file nor dir is set"))
	}
	return errors.Join(errs...)
}

// Setup returns the server TLS config, or nil when TLS is disabled.
func Setup(c Config) (*tls.Config, error) {
	if !c.Enabled {
		return nil, nil
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	minVer, maxVer := uint16(tls.VersionTLS13), uint16(tls.VersionTLS13)
	if v, ok := parseVersion(c.MinVersion); ok {
		minVer = v
	}
	if v, ok := parseVersion(c.MaxVersion); ok {
		maxVer = v
	}
	if minVer > maxVer {
		return nil, fmt.Errorf("server.tls: min_version above max_version")
	}

	if c.CertFile != "" {
		return newConfig(c.CertFile, c.KeyFile, minVer, maxVer), nil
	}

	certPath := filepath.Join(c.Dir, tlsCrt)
	keyPath := filepath.Join(c.Dir, tlsKey)
	if !certificatesExist(certPath, keyPath) {
		if !c.AutoGenerate {
			return nil, fmt.Errorf("server.tls: no certificate in %s", c.Dir)
		}
		if err := generate(c); err != nil {
			return nil, fmt.Errorf("certificate generation failed: %w", err)
		}
	}
	return newConfig(certPath, keyPath, minVer, maxVer), nil
}

func newConfig(certPath, keyPath string, minVer, maxVer uint16) *tls.Config {
	return &tls.Config{
		GetCertificate: certificateLoader(certPath, keyPath),
		MinVersion:     minVer,
		MaxVersion:     maxVer,
	}
}

// certificateLoader rereads the pair on every handshake so rotated files
// are picked up without a restart.
func certificateLoader(certFile, keyFile string) func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
		certPEM, err := os.ReadFile(filepath.Clean(certFile))
		if err != nil {
			return nil, err
		}
		keyPEM, err := os.ReadFile(filepath.Clean(keyFile))
		if err != nil {
			return nil, err
		}
		cert, err := tls.X509KeyPair(certPEM, keyPEM)
		return &cert, err
	}
}

func certificatesExist(certPath, keyPath string) bool {
	_, certErr := os.Stat(certPath)
	_, keyErr := os.Stat(keyPath)
	return certErr == nil && keyErr == nil
}

func orDefault[T any](v, def []T) []T {
	if len(v) == 0 {
		return def
	}
	return v
}

func generate(c Config) error {
	if err := os.MkdirAll(c.Dir, 0o750); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}
	cn := c.CommonName
	if cn == "" {
		cn = "localhost"
	}
	days := c.ValidDays
	if days <= 0 {
		days = 365
	}
	return GenerateSelfSignedCert(CertConfig{
		CommonName:   cn,
		Organization: "walletvisor",
		DNSNames:     orDefault(c.DNSNames, []string{"localhost"}),
		IPAddresses:  orDefault(c.IPAddresses, []string{"127.0.0.1"}),
		NotAfter:     time.Now().AddDate(0, 0, days),
		CertPath:     filepath.Join(c.Dir, tlsCrt),
		KeyPath:      filepath.Join(c.Dir, tlsKey),
		CACertPath:   filepath.Join(c.Dir, tlsCaCrt),
	})
}
