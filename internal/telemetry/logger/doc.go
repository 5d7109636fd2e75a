// Package logger is the structured logger of gridmesh, a thin layer over
// log/slog.
//
// Every Logger built by New shares one slog.LevelVar, so SetLevel applies to
// the whole process when the server configuration is reloaded. Output can
// rotate through lumberjack. Password-like attributes and argon2 hashes are
// masked before they reach any handler.
package logger
