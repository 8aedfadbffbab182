package oidc

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
)

const (
	CodeChallengeMethodPlain CodeChallengeMethod = "plain"
	CodeChallengeMethodS256  CodeChallengeMethod = "S256"
)

type CodeChallengeMethod string

// NewCodeVerifier generates a high-entropy PKCE code verifier
// per RFC 7636, section 4.1.
func NewCodeVerifier() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(err) // rand.Read does not fail on supported platforms
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

// NewSHACodeChallenge computes the S256 code challenge of a verifier.
func NewSHACodeChallenge(codeVerifier string) string {
	sum := sha256.Sum256([]byte(codeVerifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
