package loadgen

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/okian/typerace/internal/domain/integrity"
	"github.com/okian/typerace/internal/domain/scoring"
	"github.com/okian/typerace/internal/domain/types"
)

// plan is one scripted player.
type plan struct {
	Username string
	seed     uint64
}

// outcome is what a finished game produced.
type outcome struct {
	Username      string
	Result        types.SubmitResponse
	ExpectedCombo int
}

// makePlans builds n players with distinct fake usernames.
func makePlans(faker *gofakeit.Faker, n int) []plan {
	seen := make(map[string]struct{}, n)
	plans := make([]plan, 0, n)
	for len(plans) < n {
		name := faker.Username()
		if _, dup := seen[name]; dup || strings.TrimSpace(name) == "" {
			continue
		}
		seen[name] = struct{}{}
		plans = append(plans, plan{Username: name, seed: faker.Uint64()})
	}
	return plans
}

// typingTime is how long a player at wpm needs for chars characters,
// rounded up so the server never computes a faster speed.
func typingTime(chars, wpm int) time.Duration {
	ms := (int64(chars)*12_000 + int64(wpm) - 1) / int64(wpm)
	return time.Duration(ms+1) * time.Millisecond
}

// mistype replaces roughly rate of the runes in target. The rune count is
// unchanged so the speed stays what was paced for.
func mistype(faker *gofakeit.Faker, target string, rate float64) string {
	if rate <= 0 {
		return target
	}
	rs := []rune(target)
	for i, r := range rs {
		if faker.Float64() >= rate {
			continue
		}
		if r == '~' {
			rs[i] = '^'
		} else {
			rs[i] = '~'
		}
	}
	return string(rs)
}

// player plays one game per plan.
type player struct {
	cfg    *Config
	client *client
	signer *integrity.Signer
}

func (p *player) play(ctx context.Context, pl plan) (outcome, error) {
	ch, err := p.client.start(ctx, pl.Username)
	if err != nil {
		return outcome{}, err
	}
	target := strings.Join(ch.Commands, "")
	typed := mistype(gofakeit.New(pl.seed), target, p.cfg.TypoRate)
	chars := utf8.RuneCountInString(typed)

	if err := p.pace(ctx, ch.SessionID, chars); err != nil {
		return outcome{}, err
	}

	res, err := p.client.submit(ctx, types.SubmitRequest{
		SessionID: ch.SessionID,
		Username:  pl.Username,
		TypedText: typed,
		Signature: p.signer.Submission(ch.SessionID, typed),
	})
	if err != nil {
		return outcome{}, err
	}
	return outcome{
		Username:      pl.Username,
		Result:        res,
		ExpectedCombo: scoring.MaxCombo(typed, target),
	}, nil
}

// pace waits out the typing time, heartbeating with linear progress, and
// sends a last heartbeat so the submit sees a fresh one.
func (p *player) pace(ctx context.Context, sessionID string, chars int) error {
	total := typingTime(chars, p.cfg.TargetWPM)
	began := time.Now()
	deadline := time.NewTimer(total)
	defer deadline.Stop()
	tick := time.NewTicker(p.cfg.HeartbeatEvery)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			progress := int(int64(chars) * int64(time.Since(began)) / int64(total))
			if err := p.client.heartbeat(ctx, sessionID, min(progress, chars)); err != nil {
				return err
			}
		case <-deadline.C:
			return p.client.heartbeat(ctx, sessionID, chars)
		}
	}
}
