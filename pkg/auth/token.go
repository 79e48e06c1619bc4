// Package auth extracts a verified subject identifier from bearer tokens.
// That is the only use this pipeline makes of credentials; issuing them is
// someone else's job.
package auth

import (
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier checks a token's HMAC signature against the shared secret before
// trusting the subject claim. Verification failure is never fatal to a
// connection: callers treat it exactly like a missing token.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// SubjectID returns the numeric subject of a verified token. The boolean is
// false for missing, malformed, unsigned, badly signed, or expired tokens,
// and for subjects that are not integers.
func (v *Verifier) SubjectID(token string) (int64, bool) {
	if token == "" || len(v.secret) == 0 {
		return 0, false
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return 0, false
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return 0, false
	}

	// sub may be encoded as a JSON number or a string
	switch sub := claims["sub"].(type) {
	case float64:
		return int64(sub), true
	case string:
		id, err := strconv.ParseInt(sub, 10, 64)
		if err != nil {
			return 0, false
		}
		return id, true
	default:
		return 0, false
	}
}
