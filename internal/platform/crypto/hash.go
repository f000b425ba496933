// Package crypto holds the deterministic booking fingerprint, webhook HMAC
// verification and symmetric encryption of sensitive fields.
package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"hash"
	"strconv"
	"strings"
	"time"
)

// Fingerprint digests the defining attributes of a booking. Every field is
// length-prefixed so that no two distinct inputs share a canonical form.
func Fingerprint(userID, serviceID string, checkIn, checkOut time.Time) string {
	var b strings.Builder
	for _, field := range []string{
		userID,
		serviceID,
		checkIn.UTC().Format(time.RFC3339Nano),
		checkOut.UTC().Format(time.RFC3339Nano),
	} {
		b.WriteString(strconv.Itoa(len(field)))
		b.WriteByte(':')
		b.WriteString(field)
		b.WriteByte('|')
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

type Scheme int

const (
	HMACSHA256Hex Scheme = iota
	HMACSHA256Base64
	HMACSHA512Hex
)

func (s Scheme) newHash() func() hash.Hash {
	if s == HMACSHA512Hex {
		return sha512.New
	}
	return sha256.New
}

// Sign computes the signature of payload under the given scheme.
func Sign(scheme Scheme, payload []byte, secret string) string {
	mac := hmac.New(scheme.newHash(), []byte(secret))
	mac.Write(payload)
	sum := mac.Sum(nil)

	if scheme == HMACSHA256Base64 {
		return base64.StdEncoding.EncodeToString(sum)
	}
	return hex.EncodeToString(sum)
}

// VerifySignature checks signature against the raw payload bytes exactly as
// they were received. An empty signature or secret never verifies.
func VerifySignature(scheme Scheme, payload []byte, signature, secret string) bool {
	signature = strings.TrimSpace(signature)
	if signature == "" || secret == "" {
		return false
	}

	expected := Sign(scheme, payload, secret)
	if scheme != HMACSHA256Base64 {
		signature = strings.ToLower(signature)
	}
	return hmac.Equal([]byte(expected), []byte(signature))
}

func RandomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
