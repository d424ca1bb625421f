package domain

import "time"

// PKCESession is the secret material for one authorization attempt.
// It is consumed exactly once by the code exchange and then discarded.
type PKCESession struct {
	// CodeVerifier is 43-128 characters from the unreserved set A-Za-z0-9-._~.
	CodeVerifier string
	// CodeChallenge is base64url(SHA-256(CodeVerifier)) without padding.
	CodeChallenge string
	// State is the anti-CSRF value round-tripped through the redirect.
	State     string
	CreatedAt time.Time
}

// CodeChallengeMethod is the only PKCE method supported.
const CodeChallengeMethod = "S256"
