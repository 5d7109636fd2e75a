// Package config loads gridmesh-cli settings.
//
// Settings come from defaults, then ~/.gridmesh/cli.yaml (or the file named
// by --config), then GRIDMESH_CLI_* environment variables. Command-line
// flags are applied last by the command package.
package config
