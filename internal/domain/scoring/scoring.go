// Package scoring validates finished games and turns them into scores.
package scoring

import (
	"time"
	"unicode/utf8"

	"github.com/okian/typerace/internal/domain/integrity"
	"github.com/okian/typerace/internal/domain/model"
)

const (
	defaultHeartbeatWindow = 15 * time.Second
	defaultMinDuration     = 2 * time.Second
	defaultMaxWPM          = 400

	// wpm = (chars/5) / (ms/60000) = chars*12000/ms
	charsPerWord = 5
	msPerMinute  = 60_000
)

// Claim is what the client asserts when it finishes a game.
type Claim struct {
	Username   string
	TypedText  string
	FinishTime time.Time
	Signature  string
}

// Validator runs the anti-cheat checks. It holds no mutable state and is
// safe for concurrent use.
type Validator struct {
	signer          *integrity.Signer
	heartbeatWindow time.Duration
	minDuration     time.Duration
	maxWPM          int
}

// NewValidator creates a Validator that checks signatures with signer.
func NewValidator(signer *integrity.Signer, opts ...Option) *Validator {
	v := &Validator{
		signer:          signer,
		heartbeatWindow: defaultHeartbeatWindow,
		minDuration:     defaultMinDuration,
		maxWPM:          defaultMaxWPM,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate checks c against s at time now. Checks run in order: signature,
// heartbeat freshness, speed, duration. The first failure is returned as a
// *ValidationError.
func (v *Validator) Validate(s *model.GameSession, c Claim, now time.Time) (model.ScoreSubmission, error) {
	if !v.signer.VerifySubmission(s.ID, c.TypedText, c.Signature) {
		return model.ScoreSubmission{}, reject(ErrInvalidSignature, "session %s", s.ID)
	}

	if age := now.Sub(s.LastHeartbeat); age > v.heartbeatWindow {
		return model.ScoreSubmission{}, reject(ErrStaleHeartbeat, "last heartbeat %s ago", age.Round(time.Millisecond))
	}

	durationMs := c.FinishTime.UnixMilli() - s.StartTime.UnixMilli()
	if durationMs <= 0 {
		durationMs = 1
	}
	wpm := WPM(utf8.RuneCountInString(c.TypedText), durationMs)
	if wpm > v.maxWPM {
		return model.ScoreSubmission{}, reject(ErrImpossibleSpeed, "%d wpm", wpm)
	}
	if durationMs < v.minDuration.Milliseconds() {
		return model.ScoreSubmission{}, reject(ErrImpossibleDuration, "%dms", durationMs)
	}

	return model.ScoreSubmission{
		Username:  model.NormalizeUsername(c.Username),
		WPM:       wpm,
		MaxCombo:  MaxCombo(c.TypedText, s.Target()),
		Timestamp: c.FinishTime,
	}, nil
}

// WPM is floor((chars/5) / (durationMs/60000)) computed in integers.
// durationMs must be positive.
func WPM(chars int, durationMs int64) int {
	return int(int64(chars) * (msPerMinute / charsPerWord) / durationMs)
}

// MaxCombo is the longest run of positions where typed and target hold the
// same character, over the shorter of the two. Comparison is case sensitive.
func MaxCombo(typed, target string) int {
	a, b := []rune(typed), []rune(target)
	n := min(len(a), len(b))
	run, best := 0, 0
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			run = 0
			continue
		}
		run++
		best = max(best, run)
	}
	return best
}
