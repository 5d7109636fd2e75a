// Package tlsroots handles the certificates of grid TLS connections.
//
// Servers use a Reloader so that a rotated key pair reaches new connections
// without a restart. Clients build their root pool with ClientConfig.
// WriteSelfSigned makes throwaway pairs for development and tests.
package tlsroots
