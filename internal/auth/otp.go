package auth

import (
	"crypto/rand"
	"encoding/base32"
	"time"

	"github.com/pquerna/otp/totp"
)

// OTPTTL is how long an emailed verification code stays valid.
const OTPTTL = 10 * time.Minute

// GenerateOTP returns a fresh 6-digit verification code. Each code is
// derived from its own throwaway random secret; matching and
// single-use enforcement live in the store, keyed by email.
func GenerateOTP() (string, error) {
	var raw [20]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	secret := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw[:])
	return totp.GenerateCode(secret, time.Now())
}
