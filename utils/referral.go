package utils

import (
	"crypto/rand"
	"math/big"
)

const (
	referralCodeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	referralCodeLength  = 6
)

// GenerateReferralCode generates a 6-character alphanumeric referral code.
// Uniqueness is the store's responsibility; callers retry on conflict.
func GenerateReferralCode() (string, error) {
	code := make([]byte, referralCodeLength)
	max := big.NewInt(int64(len(referralCodeCharset)))
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		code[i] = referralCodeCharset[n.Int64()]
	}
	return string(code), nil
}

// ReferralLink builds the public registration link embedding the code.
func ReferralLink(baseURL, code string) string {
	if baseURL == "" {
		baseURL = "https://refnet.app"
	}
	return baseURL + "/register?ref=" + code
}
