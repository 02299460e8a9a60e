package loadgen

import (
	"fmt"

	"github.com/okian/typerace/internal/domain/model"
	"github.com/okian/typerace/internal/domain/types"
)

func (o outcome) total() int64 {
	return model.ScoreSubmission{WPM: o.Result.WPM, MaxCombo: o.Result.MaxCombo}.TotalScore()
}

func best(outcomes []outcome) outcome {
	b := outcomes[0]
	for _, o := range outcomes[1:] {
		if o.total() > b.total() {
			b = o
		}
	}
	return b
}

func countOwn(board []types.Entry, outcomes []outcome) int {
	own := make(map[string]struct{}, len(outcomes))
	for _, o := range outcomes {
		own[o.Username] = struct{}{}
	}
	n := 0
	for _, e := range board {
		if _, ok := own[e.Username]; ok {
			n++
		}
	}
	return n
}

// bestVisible reports whether the board already accounts for the run's best
// game: either it is listed, or a full board only holds scores at least as
// high.
func bestVisible(board []types.Entry, outcomes []outcome, top int) bool {
	b := best(outcomes)
	for _, e := range board {
		if e.Username == b.Username {
			return true
		}
	}
	return len(board) >= top && board[len(board)-1].TotalScore >= b.total()
}

// verify checks the board is ordered, internally consistent and agrees with
// what the server answered to each submit.
func verify(board []types.Entry, outcomes []outcome, top int) error {
	for _, o := range outcomes {
		if o.Result.MaxCombo != o.ExpectedCombo {
			return fmt.Errorf("%w: %s got combo %d, want %d", ErrInconsistent, o.Username, o.Result.MaxCombo, o.ExpectedCombo)
		}
	}
	if len(board) > top {
		return fmt.Errorf("%w: %d rows for limit %d", ErrInconsistent, len(board), top)
	}

	byUser := make(map[string]outcome, len(outcomes))
	for _, o := range outcomes {
		byUser[o.Username] = o
	}
	for i, e := range board {
		if want := (model.ScoreSubmission{WPM: e.WPM, MaxCombo: e.MaxCombo}).TotalScore(); e.TotalScore != want {
			return fmt.Errorf("%w: row %d total %d, want %d", ErrInconsistent, i, e.TotalScore, want)
		}
		if i > 0 {
			prev := board[i-1]
			if e.TotalScore > prev.TotalScore || (e.TotalScore == prev.TotalScore && e.Timestamp < prev.Timestamp) {
				return fmt.Errorf("%w: row %d out of order", ErrInconsistent, i)
			}
		}
		if o, ok := byUser[e.Username]; ok && (o.Result.WPM != e.WPM || o.Result.MaxCombo != e.MaxCombo) {
			return fmt.Errorf("%w: %s listed as %d/%d, submitted %d/%d",
				ErrInconsistent, e.Username, e.WPM, e.MaxCombo, o.Result.WPM, o.Result.MaxCombo)
		}
	}
	if !bestVisible(board, outcomes, top) {
		return fmt.Errorf("%w: best game by %s missing", ErrInconsistent, best(outcomes).Username)
	}
	return nil
}
