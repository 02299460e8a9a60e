// Package model contains domain models passed between layers.
package model

import (
	"strings"
	"time"
)

// DefaultUsername is used when a player does not give a name.
const DefaultUsername = "Anonymous"

// Score weights applied by TotalScore.
const (
	WPMWeight   = 10
	ComboWeight = 5
)

// GameSession is one in-flight typing game. It lives from creation until it
// is either finalized by a valid submission or expired by the sweeper.
type GameSession struct {
	ID            string
	Username      string
	Phrases       []string  // issued in order
	StartTime     time.Time // server clock at creation
	LastHeartbeat time.Time
	Progress      int // last client-reported progress, opaque to the server
}

// Target is the delimiter-free concatenation of the issued phrases.
func (s *GameSession) Target() string {
	return strings.Join(s.Phrases, "")
}

// ScoreSubmission is an accepted, immutable game result.
type ScoreSubmission struct {
	Username  string
	WPM       int
	MaxCombo  int
	Timestamp time.Time // server clock at finish
}

// TotalScore is wpm*10 + maxCombo*5.
func (s ScoreSubmission) TotalScore() int64 {
	return int64(s.WPM)*WPMWeight + int64(s.MaxCombo)*ComboWeight
}

// LeaderboardEntry is a persisted submission with its derived score.
type LeaderboardEntry struct {
	ScoreSubmission
	TotalScore int64
}

// NewLeaderboardEntry derives the entry for s.
func NewLeaderboardEntry(s ScoreSubmission) LeaderboardEntry {
	return LeaderboardEntry{ScoreSubmission: s, TotalScore: s.TotalScore()}
}

// NormalizeUsername trims name and falls back to DefaultUsername when blank.
func NormalizeUsername(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultUsername
	}
	return name
}
