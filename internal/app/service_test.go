package service_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/typerace/internal/adapters/repository"
	service "github.com/okian/typerace/internal/app"
	"github.com/okian/typerace/internal/domain/integrity"
	"github.com/okian/typerace/internal/domain/model"
	"github.com/okian/typerace/internal/domain/scoring"
	"github.com/okian/typerace/internal/domain/session"
	. "github.com/smartystreets/goconvey/convey"
)

type fixedPhrases []string

func (f fixedPhrases) GetPhrases(int) []string { return append([]string(nil), f...) }

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type harness struct {
	svc    *service.Service
	store  *repository.Leaderboard
	signer *integrity.Signer
	clock  *fakeClock
	dir    string
}

func newHarness(t *testing.T, phrases []string, opts ...service.Option) *harness {
	t.Helper()
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "data")
	store, err := repository.Open(ctx, dir)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close(ctx) })

	signer, err := integrity.NewSigner("test-secret")
	if err != nil {
		t.Fatal(err)
	}
	clock := &fakeClock{t: time.UnixMilli(1_700_000_000_000)}
	seq := 0
	opts = append([]service.Option{
		service.WithClock(clock.Now),
		service.WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("session-%d", seq)
		}),
		service.WithPhrasesPerSession(len(phrases)),
	}, opts...)

	return &harness{
		svc:    service.New(store, fixedPhrases(phrases), signer, opts...),
		store:  store,
		signer: signer,
		clock:  clock,
		dir:    dir,
	}
}

func (h *harness) submit(ctx context.Context, id, user, typed string) (service.Result, error) {
	return h.svc.Submit(ctx, service.SubmitRequest{
		SessionID:  id,
		Username:   user,
		TypedText:  typed,
		FinishTime: h.clock.Now(),
		Signature:  h.signer.Submission(id, typed),
	})
}

func TestService_FullGame(t *testing.T) {
	Convey("Given a service issuing [git status, ls -la]", t, func() {
		ctx := context.Background()
		h := newHarness(t, []string{"git status", "ls -la"})

		ch, err := h.svc.CreateSession(ctx, "alice")
		So(err, ShouldBeNil)

		Convey("Then the challenge carries the phrases and a session token", func() {
			So(ch.SessionID, ShouldEqual, "session-1")
			So(ch.Phrases, ShouldResemble, []string{"git status", "ls -la"})
			So(ch.StartTime, ShouldEqual, h.clock.Now())
			So(ch.IntegrityToken, ShouldEqual, h.signer.SessionToken(ch.SessionID))
		})

		Convey("When alice heartbeats and types it perfectly in six seconds", func() {
			h.clock.Advance(5 * time.Second)
			So(h.svc.RecordHeartbeat(ctx, ch.SessionID, 10), ShouldBeNil)
			h.clock.Advance(time.Second)

			res, err := h.submit(ctx, ch.SessionID, "alice", "git statusls -la")

			Convey("Then she scores 32 wpm with a 16 combo", func() {
				So(err, ShouldBeNil)
				So(res, ShouldResemble, service.Result{WPM: 32, MaxCombo: 16})
			})

			Convey("And the session is finalized", func() {
				_, err := h.svc.Session(ctx, ch.SessionID)
				So(errors.Is(err, session.ErrNotFound), ShouldBeTrue)
				_, err = h.submit(ctx, ch.SessionID, "alice", "git statusls -la")
				So(errors.Is(err, session.ErrNotFound), ShouldBeTrue)
			})

			Convey("And the entry appears only after a flush", func() {
				top, err := h.svc.Leaderboard(ctx, 10)
				So(err, ShouldBeNil)
				So(top, ShouldBeEmpty)

				_, err = h.store.Flush(ctx)
				So(err, ShouldBeNil)
				top, err = h.svc.Leaderboard(ctx, 10)
				So(err, ShouldBeNil)
				So(len(top), ShouldEqual, 1)
				So(top[0].Username, ShouldEqual, "alice")
				So(top[0].TotalScore, ShouldEqual, int64(400))
				So(top[0].Timestamp, ShouldEqual, h.clock.Now().UnixMilli())
			})
		})
	})
}

func TestService_SeventeenCharacterVariant(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, []string{"git status", "ls -lah"})

	ch, err := h.svc.CreateSession(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	h.clock.Advance(6 * time.Second)
	if err := h.svc.RecordHeartbeat(ctx, ch.SessionID, 17); err != nil {
		t.Fatal(err)
	}
	res, err := h.submit(ctx, ch.SessionID, "alice", "git statusls -lah")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.WPM != 34 || res.MaxCombo != 17 {
		t.Fatalf("got %+v, want wpm 34 combo 17", res)
	}
}

func TestService_Heartbeat(t *testing.T) {
	Convey("Given a live session", t, func() {
		ctx := context.Background()
		h := newHarness(t, []string{"ls"})
		ch, err := h.svc.CreateSession(ctx, "bob")
		So(err, ShouldBeNil)

		Convey("When heartbeats arrive with any progress", func() {
			h.clock.Advance(3 * time.Second)
			So(h.svc.RecordHeartbeat(ctx, ch.SessionID, 40), ShouldBeNil)
			h.clock.Advance(time.Second)
			So(h.svc.RecordHeartbeat(ctx, ch.SessionID, 5), ShouldBeNil)

			Convey("Then the latest time and progress win", func() {
				gs, err := h.svc.Session(ctx, ch.SessionID)
				So(err, ShouldBeNil)
				So(gs.Progress, ShouldEqual, 5)
				So(gs.LastHeartbeat, ShouldEqual, h.clock.Now())
			})
		})

		Convey("When the heartbeat names an unknown session", func() {
			err := h.svc.RecordHeartbeat(ctx, "nope", 1)

			Convey("Then it is not found", func() {
				So(errors.Is(err, session.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestService_Sweep(t *testing.T) {
	Convey("Given a session with no heartbeats", t, func() {
		ctx := context.Background()
		h := newHarness(t, []string{"ls"})
		ch, err := h.svc.CreateSession(ctx, "carol")
		So(err, ShouldBeNil)

		Convey("When exactly the timeout has passed", func() {
			h.clock.Advance(5 * time.Minute)

			Convey("Then the sweep keeps it", func() {
				So(h.svc.Sweep(ctx), ShouldEqual, 0)
				So(h.svc.RecordHeartbeat(ctx, ch.SessionID, 1), ShouldBeNil)
			})
		})

		Convey("When more than five minutes pass", func() {
			h.clock.Advance(5*time.Minute + time.Millisecond)

			Convey("Then the sweep removes it and later calls see NotFound", func() {
				So(h.svc.Sweep(ctx), ShouldEqual, 1)
				So(errors.Is(h.svc.RecordHeartbeat(ctx, ch.SessionID, 1), session.ErrNotFound), ShouldBeTrue)
				_, err := h.submit(ctx, ch.SessionID, "carol", "ls")
				So(errors.Is(err, session.ErrNotFound), ShouldBeTrue)
				So(h.store.Buffered(), ShouldEqual, 0)
			})
		})
	})
}

func TestService_RejectionKeepsSession(t *testing.T) {
	Convey("Given a session ready to submit", t, func() {
		ctx := context.Background()
		h := newHarness(t, []string{"git status", "ls -la"})
		ch, err := h.svc.CreateSession(ctx, "dave")
		So(err, ShouldBeNil)
		h.clock.Advance(10 * time.Second)
		So(h.svc.RecordHeartbeat(ctx, ch.SessionID, 16), ShouldBeNil)

		Convey("When the signature is forged", func() {
			_, err := h.svc.Submit(ctx, service.SubmitRequest{
				SessionID:  ch.SessionID,
				TypedText:  "git statusls -la",
				FinishTime: h.clock.Now(),
				Signature:  "forged",
			})

			Convey("Then it is rejected and the session survives", func() {
				So(errors.Is(err, scoring.ErrInvalidSignature), ShouldBeTrue)
				_, getErr := h.svc.Session(ctx, ch.SessionID)
				So(getErr, ShouldBeNil)
				So(h.store.Buffered(), ShouldEqual, 0)
			})

			Convey("And a correct retry is accepted once", func() {
				res, err := h.submit(ctx, ch.SessionID, "", "git statusls -la")
				So(err, ShouldBeNil)
				So(res.MaxCombo, ShouldEqual, 16)
				So(h.store.Buffered(), ShouldEqual, 1)
			})
		})

		Convey("When the game is finished too fast", func() {
			_, err := h.svc.Submit(ctx, service.SubmitRequest{
				SessionID:  ch.SessionID,
				TypedText:  "git statusls -la",
				FinishTime: h.clock.Now().Add(-9 * time.Second),
				Signature:  h.signer.Submission(ch.SessionID, "git statusls -la"),
			})

			Convey("Then it is rejected as impossible", func() {
				So(errors.Is(err, scoring.ErrImpossibleDuration), ShouldBeTrue)
				So(scoring.Code(err), ShouldEqual, "impossible_duration")
			})
		})

		Convey("When the last heartbeat is stale", func() {
			h.clock.Advance(16 * time.Second)
			_, err := h.submit(ctx, ch.SessionID, "dave", "git statusls -la")

			Convey("Then it is rejected", func() {
				So(errors.Is(err, scoring.ErrStaleHeartbeat), ShouldBeTrue)
			})
		})
	})
}

func TestService_BlankUsernamesPlayAnonymously(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, []string{"git status", "ls -la"})

	ch, err := h.svc.CreateSession(ctx, "   ")
	if err != nil {
		t.Fatal(err)
	}
	gs, _ := h.svc.Session(ctx, ch.SessionID)
	if gs.Username != model.DefaultUsername {
		t.Fatalf("session username = %q", gs.Username)
	}

	h.clock.Advance(8 * time.Second)
	_ = h.svc.RecordHeartbeat(ctx, ch.SessionID, 16)
	if _, err := h.submit(ctx, ch.SessionID, "", "git statusls -la"); err != nil {
		t.Fatal(err)
	}
	if _, err := h.store.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	top, err := h.svc.Leaderboard(ctx, 0)
	if err != nil || len(top) != 1 || top[0].Username != model.DefaultUsername {
		t.Fatalf("leaderboard = %+v, %v", top, err)
	}
}

func TestService_ConcurrentSubmitsFinalizeOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, []string{"git status", "ls -la"})
	ch, err := h.svc.CreateSession(ctx, "eve")
	if err != nil {
		t.Fatal(err)
	}
	h.clock.Advance(8 * time.Second)
	_ = h.svc.RecordHeartbeat(ctx, ch.SessionID, 16)

	var wins, notFound atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.submit(ctx, ch.SessionID, "eve", "git statusls -la")
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, session.ErrNotFound):
				notFound.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 || notFound.Load() != 15 {
		t.Fatalf("wins=%d notFound=%d", wins.Load(), notFound.Load())
	}
	if h.store.Buffered() != 1 {
		t.Fatalf("buffered = %d, want exactly one score", h.store.Buffered())
	}
}

func TestService_StartStop(t *testing.T) {
	Convey("Given a started service", t, func() {
		ctx := context.Background()
		h := newHarness(t, []string{"git status", "ls -la"},
			service.WithIntervals(time.Hour, time.Hour, time.Hour))
		So(h.svc.Start(ctx), ShouldBeNil)
		So(h.svc.Start(ctx), ShouldBeNil)

		stats := h.svc.Stats(ctx)
		So(stats["started"], ShouldEqual, true)
		So(stats["maxWpm"], ShouldEqual, 400)

		ch, err := h.svc.CreateSession(ctx, "frank")
		So(err, ShouldBeNil)
		h.clock.Advance(8 * time.Second)
		So(h.svc.RecordHeartbeat(ctx, ch.SessionID, 16), ShouldBeNil)
		_, err = h.submit(ctx, ch.SessionID, "frank", "git statusls -la")
		So(err, ShouldBeNil)
		So(h.svc.Stats(ctx)["bufferedScores"], ShouldEqual, 1)

		Convey("When it stops", func() {
			So(h.svc.Stop(ctx), ShouldBeNil)
			So(h.svc.Stop(ctx), ShouldBeNil)

			Convey("Then the buffered score was flushed to disk", func() {
				reopened, err := repository.Open(ctx, h.dir)
				So(err, ShouldBeNil)
				defer reopened.Close(ctx)
				top, err := reopened.Query(ctx, 10)
				So(err, ShouldBeNil)
				So(len(top), ShouldEqual, 1)
				So(top[0].Username, ShouldEqual, "frank")
			})
		})
	})
}
