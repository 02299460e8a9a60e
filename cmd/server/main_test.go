package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/typerace/internal/config"
	"github.com/okian/typerace/internal/domain/integrity"
	"github.com/okian/typerace/internal/domain/types"
	"github.com/okian/typerace/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

const testSecret = "main-test-secret"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.New()
	cfg.Addr = "127.0.0.1:0"
	cfg.HMACSecret = testSecret
	cfg.PhrasesDir = filepath.Join("..", "..", "commands")
	cfg.DataDir = filepath.Join(root, "data")
	cfg.BackupDir = filepath.Join(root, "backups")
	cfg.FlushInterval = 10 * time.Millisecond
	// Real clocks make every game "fast"; open the plausibility gates.
	cfg.MinDuration = 0
	cfg.MaxWPM = math.MaxInt32
	cfg.RateLimitRPS = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}
	return cfg
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, _ := json.Marshal(body)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func TestBuild_PlaysAGame(t *testing.T) {
	convey.Convey("Given a fully wired server", t, func() {
		ctx := context.Background()
		cfg := testConfig(t)

		srv, svc, err := build(ctx, cfg, logger.Nop())
		convey.So(err, convey.ShouldBeNil)
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		ts := httptest.NewServer(srv.Handler)
		defer ts.Close()
		defer func() { _ = svc.Stop(ctx) }()

		convey.Convey("When a player completes a game", func() {
			resp := postJSON(t, ts.URL+"/api/game/start", types.StartRequest{Username: "alice"})
			var start types.StartResponse
			convey.So(json.NewDecoder(resp.Body).Decode(&start), convey.ShouldBeNil)
			resp.Body.Close()
			convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
			convey.So(len(start.Commands), convey.ShouldEqual, cfg.PhrasesPerSession)

			signer, _ := integrity.NewSigner(testSecret)
			convey.So(start.Signature, convey.ShouldEqual, signer.SessionToken(start.SessionID))

			resp = postJSON(t, ts.URL+"/api/game/heartbeat", types.HeartbeatRequest{SessionID: start.SessionID, Progress: 3})
			resp.Body.Close()
			convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)

			typed := ""
			for _, c := range start.Commands {
				typed += c
			}
			resp = postJSON(t, ts.URL+"/api/game/submit", types.SubmitRequest{
				SessionID: start.SessionID,
				Username:  "alice",
				TypedText: typed,
				Signature: signer.Submission(start.SessionID, typed),
			})
			var result types.SubmitResponse
			convey.So(json.NewDecoder(resp.Body).Decode(&result), convey.ShouldBeNil)
			resp.Body.Close()

			convey.Convey("Then the score is accepted and reaches the leaderboard after a flush", func() {
				convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
				convey.So(result.MaxCombo, convey.ShouldEqual, len([]rune(typed)))

				var entries []types.Entry
				deadline := time.Now().Add(3 * time.Second)
				for time.Now().Before(deadline) {
					r, err := http.Get(ts.URL + "/api/leaderboard?limit=5")
					convey.So(err, convey.ShouldBeNil)
					_ = json.NewDecoder(r.Body).Decode(&entries)
					r.Body.Close()
					if len(entries) > 0 {
						break
					}
					time.Sleep(20 * time.Millisecond)
				}
				convey.So(len(entries), convey.ShouldEqual, 1)
				convey.So(entries[0].Username, convey.ShouldEqual, "alice")
				convey.So(entries[0].WPM, convey.ShouldEqual, result.WPM)
			})

			convey.Convey("And a replay of the same submission is not found", func() {
				again := postJSON(t, ts.URL+"/api/game/submit", types.SubmitRequest{
					SessionID: start.SessionID,
					TypedText: typed,
					Signature: signer.Submission(start.SessionID, typed),
				})
				again.Body.Close()
				convey.So(again.StatusCode, convey.ShouldEqual, http.StatusNotFound)
			})
		})

		convey.Convey("When the docs and metrics are requested", func() {
			for _, path := range []string{"/openapi.yaml", "/api-docs", "/healthz", "/stats"} {
				r, err := http.Get(ts.URL + path)
				convey.So(err, convey.ShouldBeNil)
				r.Body.Close()
				convey.So(r.StatusCode, convey.ShouldEqual, http.StatusOK)
			}
		})
	})
}

func TestBuild_StartupFailures(t *testing.T) {
	ctx := context.Background()

	cfg := testConfig(t)
	cfg.HMACSecret = ""
	if _, _, err := build(ctx, cfg, logger.Nop()); err == nil {
		t.Fatal("expected an error without a signing secret")
	}

	cfg = testConfig(t)
	parent := filepath.Join(t.TempDir(), "plain-file")
	if err := os.WriteFile(parent, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg.DataDir = filepath.Join(parent, "data")
	if _, _, err := build(ctx, cfg, logger.Nop()); err == nil {
		t.Fatal("expected an error when the data dir cannot be created")
	}
}

func TestRun_GracefulShutdown(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, logger.Nop()) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
}
