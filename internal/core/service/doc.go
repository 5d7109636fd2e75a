// Package service provides the session and authentication services that sit
// between the RESP transport and the grid.
//
// This package contains:
//
//   - SessionService: client sessions, heartbeats and expiry. An expired
//     session loses every lock it holds and its pending waits are failed.
//   - Authenticator: Argon2id password verification for AUTH.
package service
