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

// Config is the [server.tls] section.
type Config struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
	// Dir holds tls.crt and tls.key; used when CertFile/KeyFile are empty.
	Dir          string   `mapstructure:"dir"`
	AutoGenerate bool     `mapstructure:"auto_generate"`
	CommonName   string   `mapstructure:"common_name"`
	DNSNames     []string `mapstructure:"dns_names"`
	IPAddresses  []string `mapstructure:"ip_addresses"`
	ValidDays    int      `mapstructure:"valid_days"`
	MinVersion   string   `mapstructure:"min_version"`
	MaxVersion   string   `mapstructure:"max_version"`
}

// parseTLSVersion parses TLS version string and returns the corresponding constant
func parseTLSVersion(ver string) (uint16, bool) {
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

// resolveTLSVersions defaults both bounds to TLS 1.3.
func resolveTLSVersions(cfg Config) (min uint16, max uint16) {
	min = tls.VersionTLS13
	max = tls.VersionTLS13
	if v, ok := parseTLSVersion(cfg.MinVersion); ok {
		min = v
	}
	if v, ok := parseTLSVersion(cfg.MaxVersion); ok {
		max = v
	}
	return
}

// Validate reports settings Setup would reject.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	var errs []error
	for _, v := range []string{c.MinVersion, c.MaxVersion} {
		if _, ok := parseTLSVersion(v); !ok && v != "" && v != "default" {
			errs = append(errs, fmt.Errorf("unsupported TLS version %q", v))
		}
	}
	if (c.CertFile == "") != (c.KeyFile == "") {
		errs = append(errs, errors.New("cert_file and key_file must be set together"))
	}
	if c.CertFile == "" && c.Dir == "" {
		errs = append(errs, errors.New("TLS enabled but neither cert_file nor dir is set"))
	}
	return errors.Join(errs...)
}

// safeReadFile reads file content safely within base directory
func safeReadFile(baseDir, p string) ([]byte, error) {
	clean := filepath.Clean(p)
	if baseDir != "" {
		absBase, _ := filepath.Abs(baseDir)
		absFile, _ := filepath.Abs(clean)
		if !strings.HasPrefix(absFile, absBase+string(filepath.Separator)) && absFile != absBase {
			return nil, errors.New("file path outside of allowed directory")
		}
	}
	return os.ReadFile(clean)
}

// getCertificationFunc reloads the pair on every handshake so renewed
// certificates are picked up without a restart.
func getCertificationFunc(certFile, keyFile string) func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	baseDir := filepath.Dir(certFile)
	return func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
		if readCert, err := safeReadFile(baseDir, certFile); err != nil {
			return nil, err
		} else if readKey, err := safeReadFile(filepath.Dir(keyFile), keyFile); err != nil {
			return nil, err
		} else {
			certificate, err := tls.X509KeyPair(readCert, readKey)
			return &certificate, err
		}
	}
}

// Setup builds the listener TLS config, generating a self-signed pair in
// Dir when AutoGenerate is on and none exists. It returns nil when TLS is
// disabled.
func Setup(cfg Config) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	minVer, maxVer := resolveTLSVersions(cfg)

	// Priority 1: explicit cert/key files
	if cfg.CertFile != "" {
		if !certificatesExist(cfg.CertFile, cfg.KeyFile) {
			return nil, fmt.Errorf("certificate %s or key %s not found", cfg.CertFile, cfg.KeyFile)
		}
		return createTLSConfig(cfg.CertFile, cfg.KeyFile, minVer, maxVer), nil
	}

	// Priority 2: directory-based certificates
	keyPath := filepath.Join(cfg.Dir, tlsKey)
	certPath := filepath.Join(cfg.Dir, tlsCrt)
	if !certificatesExist(certPath, keyPath) {
		// Auto-generate if enabled and certificates don't exist
		if !cfg.AutoGenerate {
			return nil, fmt.Errorf("no certificate in %s and auto_generate is off", cfg.Dir)
		}
		if err := generateCertificate(cfg); err != nil {
			return nil, fmt.Errorf("certificate generation failed: %w", err)
		}
	}
	return createTLSConfig(certPath, keyPath, minVer, maxVer), nil
}

// CACertPath is where an auto-generated certificate is also written for
// clients to trust.
func (c Config) CACertPath() string {
	if c.Dir == "" {
		return ""
	}
	return filepath.Join(c.Dir, tlsCaCrt)
}

func getOrDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}

func getOrDefaultSlice(value, defaultValue []string) []string {
	if len(value) == 0 {
		return defaultValue
	}
	return value
}

func createTLSConfig(certPath, keyPath string, minVer, maxVer uint16) *tls.Config {
	// #nosec G402 min version is configurable down to 1.2
	return &tls.Config{
		GetCertificate: getCertificationFunc(certPath, keyPath),
		MinVersion:     minVer,
		MaxVersion:     maxVer,
	}
}

func certificatesExist(certPath, keyPath string) bool {
	_, certErr := os.Stat(certPath)
	_, keyErr := os.Stat(keyPath)
	return certErr == nil && keyErr == nil
}

func generateCertificate(cfg Config) error {
	// Ensure destination directory exists
	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}
	// Calculate expiration date
	validDays := cfg.ValidDays
	if validDays <= 0 {
		validDays = 365 * 5
	}
	return GenerateSelfSignedCert(CertConfig{
		CommonName:   getOrDefault(cfg.CommonName, "localhost"),
		Organization: "tuc",
		DNSNames:     getOrDefaultSlice(cfg.DNSNames, []string{"localhost"}),
		IPAddresses:  getOrDefaultSlice(cfg.IPAddresses, []string{"127.0.0.1"}),
		NotAfter:     time.Now().AddDate(0, 0, validDays),
		CertPath:     filepath.Join(cfg.Dir, tlsCrt),
		KeyPath:      filepath.Join(cfg.Dir, tlsKey),
		CACertPath:   cfg.CACertPath(),
	})
}
