// Package confloader loads layered configuration with koanf.
//
// A target struct holding the defaults is overlaid with, in order:
//
//  1. a YAML file
//  2. environment variables under a prefix (GRIDMESH_ for the server,
//     GRIDMESH_CLI_ for the CLI)
//  3. overrides, typically command-line flags
//
// Watcher reports settled changes to files so that selected settings, such
// as the log level or the TLS certificate, apply without a restart.
package confloader
