//go:build !otpbypass

package engine

// bypassAccepts never matches in regular builds.
func bypassAccepts(bool, string) bool { return false }
