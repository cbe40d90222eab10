//go:build otpbypass

package engine

import "crypto/subtle"

// BypassCode is accepted by VerifyOTP when the engine was built with the
// otpbypass tag and Deps.AllowBypass is set.
const BypassCode = "000000"

func bypassAccepts(enabled bool, code string) bool {
	return enabled && subtle.ConstantTimeCompare([]byte(code), []byte(BypassCode)) == 1
}
