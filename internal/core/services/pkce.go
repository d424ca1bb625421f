package services

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"math/big"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/suitelink/internal/core/domain"
)

// PKCE code verifier bounds (RFC 7636 section 4.1).
const (
	minVerifierLength = 43
	maxVerifierLength = 128
)

// verifierAlphabet is the RFC 7636 unreserved character set.
const verifierAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~"

// NewPKCESession creates fresh PKCE material for one authorization attempt.
func NewPKCESession() domain.PKCESession {
	return newPKCESessionAt(time.Now())
}

func newPKCESessionAt(now time.Time) domain.PKCESession {
	verifier := generateCodeVerifier()
	return domain.PKCESession{
		CodeVerifier:  verifier,
		CodeChallenge: generateCodeChallenge(verifier),
		State:         generateState(now),
		CreatedAt:     now,
	}
}

// VerifyChallenge reports whether challenge is the S256 transform of verifier.
func VerifyChallenge(verifier, challenge string) bool {
	want := generateCodeChallenge(verifier)
	return subtle.ConstantTimeCompare([]byte(want), []byte(challenge)) == 1
}

// generateCodeVerifier draws a length uniformly from [43,128] and fills it
// with characters drawn uniformly from the unreserved set.
func generateCodeVerifier() string {
	n := minVerifierLength + randomIntn(maxVerifierLength-minVerifierLength+1)
	b := make([]byte, n)
	for i := range b {
		b[i] = verifierAlphabet[randomIntn(len(verifierAlphabet))]
	}
	return string(b)
}

// generateCodeChallenge creates a S256 code challenge from the verifier.
func generateCodeChallenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// generateState creates the anti-CSRF state: a random UUID plus the
// creation time in base36 nanoseconds.
func generateState(now time.Time) string {
	return uuid.NewString() + "." + strconv.FormatInt(now.UnixNano(), 36)
}

// randomIntn returns a uniform value in [0,n) from crypto/rand.
// crypto/rand.Reader does not fail on supported platforms, so an error
// here means the process has no entropy source left.
func randomIntn(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic("crypto/rand unavailable: " + err.Error())
	}
	return int(v.Int64())
}
