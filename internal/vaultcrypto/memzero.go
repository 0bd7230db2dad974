package vaultcrypto

import "crypto/subtle"

// zero overwrites b in a way the compiler will not elide.
func zero(b []byte) {
	if len(b) == 0 {
		return
	}
	subtle.ConstantTimeCopy(1, b, make([]byte, len(b)))
}

// Wipe zeroes a secret held by a caller, e.g. a session password.
func Wipe(b []byte) { zero(b) }
