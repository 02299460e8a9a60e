package types_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/okian/typerace/internal/domain/model"
	types "github.com/okian/typerace/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestEntry(t *testing.T) {
	Convey("Given a stored leaderboard entry", t, func() {
		stored := model.NewLeaderboardEntry(model.ScoreSubmission{
			Username:  "alice",
			WPM:       34,
			MaxCombo:  17,
			Timestamp: time.UnixMilli(1_700_000_000_123),
		})

		Convey("When converting it to the wire shape", func() {
			e := types.FromLeaderboardEntry(stored)

			Convey("Then scores and millisecond timestamp are carried over", func() {
				So(e.Username, ShouldEqual, "alice")
				So(e.TotalScore, ShouldEqual, int64(425))
				So(e.Timestamp, ShouldEqual, int64(1_700_000_000_123))
			})

			Convey("Then the JSON uses the client's camelCase names", func() {
				raw, err := json.Marshal(e)
				So(err, ShouldBeNil)
				So(string(raw), ShouldEqual,
					`{"username":"alice","wpm":34,"maxCombo":17,"timestamp":1700000000123,"totalScore":425}`)
			})
		})
	})
}

func TestRequests(t *testing.T) {
	Convey("Given a submit body from the browser client", t, func() {
		body := `{"sessionId":"s-1","username":"bob","typedText":"ls","signature":"c2ln"}`

		Convey("Then it decodes into SubmitRequest", func() {
			var req types.SubmitRequest
			So(json.Unmarshal([]byte(body), &req), ShouldBeNil)
			So(req, ShouldResemble, types.SubmitRequest{SessionID: "s-1", Username: "bob", TypedText: "ls", Signature: "c2ln"})
		})
	})

	Convey("Given a live ack", t, func() {
		raw, err := json.Marshal(types.LiveReply{Type: types.LiveAck, Progress: 3})

		Convey("Then empty fields are omitted", func() {
			So(err, ShouldBeNil)
			So(string(raw), ShouldEqual, `{"type":"ack","progress":3}`)
		})
	})
}
