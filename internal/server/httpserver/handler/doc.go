// Package handler provides the JSON handlers behind the operational HTTP
// endpoints.
package handler
