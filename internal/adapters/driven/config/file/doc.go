// Package file provides the TOML settings store kept in ~/.suitelink.
//
// Keys are addressed in dot notation ("redis.addr") and may be overridden
// by SUITELINK_* environment variables, which is how .env files loaded at
// startup reach the settings.
package file
