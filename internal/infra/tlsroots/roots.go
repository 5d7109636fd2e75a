package tlsroots

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

// ErrNoCertsFound means a CA file held no PEM certificate.
var ErrNoCertsFound = errors.New("tlsroots: no certificates found in PEM file")

// LoadPool builds a root pool from PEM files, on top of the system roots when
// system is true. A system pool that cannot be read falls back to empty.
func LoadPool(system bool, files ...string) (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	if system {
		if sys, err := x509.SystemCertPool(); err == nil {
			pool = sys
		}
	}
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("tlsroots: read CA file: %w", err)
		}
		if !pool.AppendCertsFromPEM(data) {
			return nil, fmt.Errorf("%w: %s", ErrNoCertsFound, path)
		}
	}
	return pool, nil
}

// ClientConfig returns the client side of a grid TLS connection. With no CA
// files the system roots verify the server; otherwise only the given CAs do.
// An empty serverName is taken from the dialed address.
func ClientConfig(serverName string, caFiles ...string) (*tls.Config, error) {
	pool, err := LoadPool(len(caFiles) == 0, caFiles...)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		RootCAs:    pool,
		ServerName: serverName,
		MinVersion: tls.VersionTLS12,
	}, nil
}
