// Package gtest contains helpers shared across tests in this module.
package gtest

import (
	"log/slog"
	"testing"

	"github.com/neilotoole/slogt"
)

// NewLogger returns a logger that writes through t.Log,
// so output is only shown for failing tests or with -v.
func NewLogger(t testing.TB) *slog.Logger {
	t.Helper()
	return slogt.New(t, slogt.Text())
}
