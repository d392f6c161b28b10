package gatekeeper

import (
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	totpDigits = 6
	totpPeriod = 30
	totpSkew   = 1
)

var totpValidateOpts = totp.ValidateOpts{
	Period:    totpPeriod,
	Skew:      totpSkew,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// VerifyTOTP reports whether code is the six digit TOTP for secret at now,
// or at the step immediately before or after it. It never panics and returns
// false for malformed codes and undecodable secrets. Comparison is constant
// time.
func VerifyTOTP(code, secret string, now time.Time) bool {
	code = strings.TrimSpace(code)
	if len(code) != totpDigits || !isNumericString(code) || secret == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, now.UTC(), totpValidateOpts)
	return err == nil && ok
}

// GenerateTOTPSecret creates a fresh 160-bit base32 secret and its otpauth://
// provisioning URI.
func GenerateTOTPSecret(issuer, account string) (secret, uri string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Period:      totpPeriod,
		SecretSize:  20,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", err
	}
	return key.Secret(), key.URL(), nil
}

func isNumericString(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
