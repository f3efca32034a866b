//file: internal/broker/tls_utils.go

package broker

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"fedgate/config"
	"fedgate/internal/logger"
)

// CreateTLSConfig creates a *tls.Config for the NATS connection. It returns
// nil when TLS is disabled.
func CreateTLSConfig(cfg config.TLSConfig, logger *logger.Logger) (*tls.Config, error) {
	if !cfg.Enable {
		return nil, nil
	}

	if err := ValidateTLSConfig(cfg); err != nil {
		return nil, err
	}

	logger.Info("enabling TLS for NATS connection", "insecure", cfg.Insecure)

	tlsConfig := &tls.Config{
		InsecureSkipVerify: cfg.Insecure,
		MinVersion:         tls.VersionTLS12,
	}

	// Load client certificates if provided
	if cfg.CertFile != "" && cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load NATS TLS client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
		logger.Info("loaded TLS client certificate", "certFile", cfg.CertFile)
	}

	// Load CA certificate if provided
	if cfg.CAFile != "" {
		caCert, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read NATS CA certificate: %w", err)
		}

		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse NATS CA certificate")
		}
		tlsConfig.RootCAs = caCertPool
		logger.Info("loaded TLS CA certificate", "caFile", cfg.CAFile)
	}

	return tlsConfig, nil
}

// ValidateTLSConfig validates TLS configuration settings
func ValidateTLSConfig(cfg config.TLSConfig) error {
	if !cfg.Enable {
		return nil
	}

	// Validate that both cert and key are provided together
	if (cfg.CertFile == "") != (cfg.KeyFile == "") {
		return fmt.Errorf("NATS TLS requires both certFile and keyFile to be specified together")
	}

	for kind, path := range map[string]string{"cert": cfg.CertFile, "key": cfg.KeyFile, "CA": cfg.CAFile} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return fmt.Errorf("NATS TLS %s file does not exist: %s", kind, path)
		}
	}

	return nil
}
