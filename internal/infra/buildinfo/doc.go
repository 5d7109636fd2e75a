// Package buildinfo exposes the version of the running binary.
//
// Release builds inject values via ldflags:
//
//	go build -ldflags "-X github.com/yndnr/gridmesh-go/internal/infra/buildinfo.Version=v0.3.0"
//
// Without ldflags the Go toolchain's embedded VCS stamp is used.
package buildinfo
