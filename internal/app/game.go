package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/okian/typerace/internal/domain/model"
	"github.com/okian/typerace/internal/domain/scoring"
	"github.com/okian/typerace/internal/domain/session"
	"github.com/okian/typerace/pkg/logger"
	"github.com/okian/typerace/pkg/metrics"
)

// Challenge is what a player receives when a game starts.
type Challenge struct {
	SessionID      string
	Phrases        []string
	StartTime      time.Time
	IntegrityToken string
}

// SubmitRequest is a finished game as claimed by the client. FinishTime is
// supplied by the caller; the HTTP edge stamps it with the server clock.
type SubmitRequest struct {
	SessionID  string
	Username   string
	TypedText  string
	FinishTime time.Time
	Signature  string
}

// Result is the score of an accepted game.
type Result struct {
	WPM      int
	MaxCombo int
}

// CreateSession starts a game for username. A blank username plays as
// model.DefaultUsername.
func (s *Service) CreateSession(ctx context.Context, username string) (Challenge, error) {
	ctx, span := tracer.Start(ctx, "service.CreateSession")
	defer span.End()

	now := s.now()
	gs := &model.GameSession{
		ID:            s.newID(),
		Username:      model.NormalizeUsername(username),
		Phrases:       s.phrases.GetPhrases(s.phrasesPerSession),
		StartTime:     now,
		LastHeartbeat: now,
	}
	if err := s.sessions.Put(ctx, gs); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Challenge{}, fmt.Errorf("create session: %w", err)
	}

	metrics.RecordSessionCreated()
	metrics.UpdateActiveSessions(int(s.sessions.Len()))
	span.SetAttributes(attribute.String("session.id", gs.ID), attribute.Int("session.phrases", len(gs.Phrases)))
	s.logger.Debug(ctx, "session created",
		logger.String("sessionId", gs.ID),
		logger.String("username", gs.Username),
		logger.Int("phrases", len(gs.Phrases)),
	)

	return Challenge{
		SessionID:      gs.ID,
		Phrases:        gs.Phrases,
		StartTime:      gs.StartTime,
		IntegrityToken: s.signer.SessionToken(gs.ID),
	}, nil
}

// RecordHeartbeat marks the session alive now and stores progress. It
// returns session.ErrNotFound for unknown, finished or expired sessions.
func (s *Service) RecordHeartbeat(ctx context.Context, sessionID string, progress int) error {
	if err := s.sessions.Touch(ctx, sessionID, progress, s.now()); err != nil {
		metrics.RecordHeartbeat("not_found")
		return err
	}
	metrics.RecordHeartbeat("ok")
	return nil
}

// Submit validates a finished game and, when it passes, removes the session
// and buffers the score in one step. A rejected submission leaves the
// session in place. Errors wrap session.ErrNotFound, a scoring sentinel, or
// the store's error.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (Result, error) {
	ctx, span := tracer.Start(ctx, "service.Submit")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", req.SessionID))

	start := time.Now()
	defer func() {
		metrics.RecordSubmitLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	claim := scoring.Claim{
		Username:   req.Username,
		TypedText:  req.TypedText,
		FinishTime: req.FinishTime,
		Signature:  req.Signature,
	}

	var accepted model.ScoreSubmission
	err := s.sessions.Consume(ctx, req.SessionID, func(gs model.GameSession) error {
		sub, err := s.validator.Validate(&gs, claim, s.now())
		if err != nil {
			return err
		}
		if err := s.store.Buffer(ctx, sub); err != nil {
			return fmt.Errorf("buffer score: %w", err)
		}
		accepted = sub
		return nil
	})
	if err != nil {
		s.recordRejection(ctx, req.SessionID, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}

	metrics.RecordSubmission("accepted", "")
	metrics.RecordAcceptedWPM(accepted.WPM)
	metrics.RecordSessionFinalized()
	metrics.UpdateActiveSessions(int(s.sessions.Len()))
	span.SetAttributes(attribute.Int("score.wpm", accepted.WPM), attribute.Int("score.max_combo", accepted.MaxCombo))
	s.logger.Info(ctx, "score accepted",
		logger.String("sessionId", req.SessionID),
		logger.String("username", accepted.Username),
		logger.Int("wpm", accepted.WPM),
		logger.Int("maxCombo", accepted.MaxCombo),
		logger.Int64("totalScore", accepted.TotalScore()),
	)

	return Result{WPM: accepted.WPM, MaxCombo: accepted.MaxCombo}, nil
}

func (s *Service) recordRejection(ctx context.Context, sessionID string, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		metrics.RecordSubmission("not_found", "")
	case scoring.Code(err) != "":
		metrics.RecordSubmission("rejected", scoring.Code(err))
		s.logger.Info(ctx, "submission rejected",
			logger.String("sessionId", sessionID),
			logger.String("reason", scoring.Code(err)),
			logger.Error(err),
		)
	default:
		metrics.RecordSubmission("error", "")
		metrics.RecordErrorByComponent("service", "submit")
		s.logger.Error(ctx, "submission failed", logger.String("sessionId", sessionID), logger.Error(err))
	}
}

// Sweep removes every session whose last heartbeat is older than the
// session timeout and returns how many it removed. It is the only way a
// session expires.
func (s *Service) Sweep(ctx context.Context) int {
	n := s.sessions.Sweep(ctx, s.now(), s.sessionTimeout)
	if n > 0 {
		metrics.RecordSessionsExpired(n)
		s.logger.Info(ctx, "expired sessions removed", logger.Int("count", n))
	}
	metrics.UpdateActiveSessions(int(s.sessions.Len()))
	return n
}

// Session returns a snapshot of a live session.
func (s *Service) Session(ctx context.Context, sessionID string) (model.GameSession, error) {
	return s.sessions.Get(ctx, sessionID)
}
