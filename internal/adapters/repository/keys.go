package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/okian/typerace/internal/domain/model"
)

// Persisted entries live under this prefix. The key is
//
//	score:<totalScore, 19 digits>:<timestamp millis>:<username>
//
// so byte order equals ascending score, then timestamp, then username. The
// score is padded to the width of math.MaxInt64.
const (
	scorePrefix = "score:"
	// scoreUpper is the first string after every "score:..." key.
	scoreUpper = "score;"
)

func entryKey(e model.LeaderboardEntry) string {
	return fmt.Sprintf("%s%019d:%d:%s", scorePrefix, e.TotalScore, e.Timestamp.UnixMilli(), e.Username)
}

// storedEntry is the JSON value stored under an entry key.
type storedEntry struct {
	Username   string `json:"username"`
	WPM        int    `json:"wpm"`
	MaxCombo   int    `json:"maxCombo"`
	Timestamp  int64  `json:"timestamp"`
	TotalScore int64  `json:"totalScore"`
}

func encodeEntry(e model.LeaderboardEntry) ([]byte, error) {
	return json.Marshal(storedEntry{
		Username:   e.Username,
		WPM:        e.WPM,
		MaxCombo:   e.MaxCombo,
		Timestamp:  e.Timestamp.UnixMilli(),
		TotalScore: e.TotalScore,
	})
}

func decodeEntry(raw []byte) (model.LeaderboardEntry, error) {
	var v storedEntry
	if err := json.Unmarshal(raw, &v); err != nil {
		return model.LeaderboardEntry{}, err
	}
	return model.LeaderboardEntry{
		ScoreSubmission: model.ScoreSubmission{
			Username:  v.Username,
			WPM:       v.WPM,
			MaxCombo:  v.MaxCombo,
			Timestamp: time.UnixMilli(v.Timestamp),
		},
		TotalScore: v.TotalScore,
	}, nil
}
