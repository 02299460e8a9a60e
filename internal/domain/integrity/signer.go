// Package integrity signs session material with HMAC-SHA256.
package integrity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

// ErrEmptySecret is returned when a signer is built without a key.
var ErrEmptySecret = errors.New("integrity: empty secret")

// Signer produces and checks base64 HMAC-SHA256 signatures.
type Signer struct {
	key []byte
}

// NewSigner returns a signer keyed by secret.
func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &Signer{key: []byte(secret)}, nil
}

// Sign returns base64(HMAC-SHA256(secret, parts...)). Parts are concatenated
// without separators.
func (s *Signer) Sign(parts ...string) string {
	return base64.StdEncoding.EncodeToString(s.mac(parts...))
}

// SessionToken is the integrity token handed out with a new session.
func (s *Signer) SessionToken(sessionID string) string {
	return s.Sign(sessionID)
}

// Submission is the signature a client must send with typedText.
func (s *Signer) Submission(sessionID, typedText string) string {
	return s.Sign(sessionID, typedText)
}

// VerifySubmission reports whether sig matches sessionID and typedText.
// The comparison is constant time over the encoded form.
func (s *Signer) VerifySubmission(sessionID, typedText, sig string) bool {
	want := s.Submission(sessionID, typedText)
	return hmac.Equal([]byte(want), []byte(sig))
}

func (s *Signer) mac(parts ...string) []byte {
	h := hmac.New(sha256.New, s.key)
	for _, p := range parts {
		h.Write([]byte(p))
	}
	return h.Sum(nil)
}
