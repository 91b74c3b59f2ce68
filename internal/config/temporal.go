package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	temporalclient "go.temporal.io/sdk/client"
)

// TemporalClientOptions returns the dial options for the reply-check worker.
// mTLS is enabled when a client certificate is configured.
func (c *Config) TemporalClientOptions() (temporalclient.Options, error) {
	opts := temporalclient.Options{HostPort: c.TemporalAddress}
	if c.TemporalTLSCert == "" && c.TemporalTLSKey == "" {
		return opts, nil
	}

	cert, err := tls.LoadX509KeyPair(c.TemporalTLSCert, c.TemporalTLSKey)
	if err != nil {
		return opts, fmt.Errorf("load temporal client cert: %w", err)
	}
	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		ServerName:   c.TemporalTLSServerName,
	}

	if c.TemporalTLSCACert != "" {
		caPEM, err := os.ReadFile(c.TemporalTLSCACert)
		if err != nil {
			return opts, fmt.Errorf("read temporal CA cert: %w", err)
		}
		roots := x509.NewCertPool()
		if !roots.AppendCertsFromPEM(caPEM) {
			return opts, fmt.Errorf("parse temporal CA cert %s", c.TemporalTLSCACert)
		}
		tlsConfig.RootCAs = roots
	}

	opts.ConnectionOptions = temporalclient.ConnectionOptions{TLS: tlsConfig}
	return opts, nil
}
