// Package types contains the wire shapes shared by the HTTP API, the live
// channel and the load generator.
package types

import "github.com/okian/typerace/internal/domain/model"

// Entry is one leaderboard row.
type Entry struct {
	Username   string `json:"username"`
	WPM        int    `json:"wpm"`
	MaxCombo   int    `json:"maxCombo"`
	Timestamp  int64  `json:"timestamp"` // unix millis
	TotalScore int64  `json:"totalScore"`
}

// FromLeaderboardEntry converts a stored entry to its wire shape.
func FromLeaderboardEntry(e model.LeaderboardEntry) Entry {
	return Entry{
		Username:   e.Username,
		WPM:        e.WPM,
		MaxCombo:   e.MaxCombo,
		Timestamp:  e.Timestamp.UnixMilli(),
		TotalScore: e.TotalScore,
	}
}

// StartRequest is the body of POST /api/game/start.
type StartRequest struct {
	Username string `json:"username"`
}

// StartResponse carries the challenge issued to the client.
type StartResponse struct {
	SessionID string   `json:"sessionId"`
	Commands  []string `json:"commands"`
	StartTime int64    `json:"startTime"`
	Signature string   `json:"signature"`
}

// HeartbeatRequest is the body of POST /api/game/heartbeat.
type HeartbeatRequest struct {
	SessionID string `json:"sessionId"`
	Progress  int    `json:"progress"`
}

// SubmitRequest is the body of POST /api/game/submit.
type SubmitRequest struct {
	SessionID string `json:"sessionId"`
	Username  string `json:"username"`
	TypedText string `json:"typedText"`
	Signature string `json:"signature"`
}

// SubmitResponse is the accepted result.
type SubmitResponse struct {
	WPM      int `json:"wpm"`
	MaxCombo int `json:"maxCombo"`
}

// Live frame types sent by the server.
const (
	LiveAck   = "ack"
	LiveError = "error"
)

// LiveProgress is a client frame on the live channel.
type LiveProgress struct {
	Progress int `json:"progress"`
}

// LiveReply is a server frame on the live channel.
type LiveReply struct {
	Type     string `json:"type"`
	Progress int    `json:"progress,omitempty"`
	Code     string `json:"code,omitempty"`
	Message  string `json:"message,omitempty"`
}
