//go:build !debug

// Package debug provides assertion helpers that compile away entirely
// unless the binary is built with the "debug" build tag.
package debug

func ON() bool { return false }

func Assert(_ bool, _ ...any)            {}
func Assertf(_ bool, _ string, _ ...any) {}
func AssertNoErr(_ error)                {}
func AssertFunc(_ func() bool, _ ...any) {}
