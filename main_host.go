//go:build !tinygo

package main

// Stub entry point so the package compiles with the standard Go
// toolchain; the real main lives in main.go behind the tinygo build tag.
func main() {}
