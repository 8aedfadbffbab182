package oidc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSHACodeChallenge(t *testing.T) {
	// test vector from RFC 7636, appendix B
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	want := "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
	assert.Equal(t, want, NewSHACodeChallenge(verifier))
}

func TestNewCodeVerifier(t *testing.T) {
	one := NewCodeVerifier()
	two := NewCodeVerifier()
	assert.NotEqual(t, one, two)
	// 32 bytes, unpadded base64url
	assert.Len(t, one, 43)
}
