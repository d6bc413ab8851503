// Package services – TurnService
//
// This file implements TurnService, the application-level component that owns
// the conversation turn pipeline: validate the user's message, serialize
// turns per room, persist the user message, assemble the recent history
// window, call the generative model, fold the produced delta into the room's
// emotional state under the operator bonus coefficients, and persist the
// assistant message and the advanced room atomically.
//
// Failure containment follows one rule: generation failures never surface
// (the model client degrades to a fallback turn), persistence failures always
// do. The pipeline runs on a context detached from the HTTP request so a
// client disconnect can never strand a half-applied state transition.
//
// Observability: public methods are OpenTelemetry-instrumented; spans include
// room/user identifiers. Prometheus counters track turn outcomes.
package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jwkoh-dev/go-companion-backend/internal/crypto"
	"github.com/jwkoh-dev/go-companion-backend/internal/domain"
	"github.com/jwkoh-dev/go-companion-backend/internal/emotion"
	"github.com/jwkoh-dev/go-companion-backend/internal/genai"
	"github.com/jwkoh-dev/go-companion-backend/internal/repo"
)

var (
	// turnsTotal counts completed turn pipelines by outcome.
	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "companion_turns_total",
			Help: "Total number of conversation turns by outcome.",
		},
		[]string{"outcome"}, // ok | fallback | conflict | error
	)
)

func init() {
	prometheus.MustRegister(turnsTotal)
}

// TurnReply is the completed outcome of one turn.
type TurnReply struct {
	// Message is the persisted assistant message with decrypted content.
	Message domain.Message
	// State is the room's emotional state after the turn.
	State emotion.State
	// UserMessageDelta is the raw (pre-bonus) delta back-annotated onto the
	// triggering user message.
	UserMessageDelta emotion.Delta
}

// TurnStreamEvent is one element of a streaming turn: Content fragments while
// the reply is generated, then exactly one terminal event carrying either
// Reply or Err.
type TurnStreamEvent struct {
	Content string
	Reply   *TurnReply
	Err     error
}

// TurnService coordinates the conversation turn pipeline.
type TurnService struct {
	DB        *gorm.DB
	Generator genai.Generator
	// Cipher encrypts message content and room summaries at rest. May be nil
	// in tests; content then persists in the clear.
	Cipher *crypto.Cipher

	// DefaultModel bootstraps the bonus-config singleton on first read.
	DefaultModel string
	// HistoryLimit caps the conversation window sent to the model,
	// including the just-persisted user message.
	HistoryLimit int
	// MaxContentRunes caps inbound message length.
	MaxContentRunes int
	// IdempotencyTTL is how long a completed turn stays replayable under its
	// Idempotency-Key.
	IdempotencyTTL time.Duration

	// locks serializes turns per room (roomID -> *sync.Mutex).
	locks sync.Map
}

// NewTurnService constructs a TurnService with the defaults the pipeline was
// tuned for: an 11-message window and a 2000-rune input cap.
func NewTurnService(db *gorm.DB, gen genai.Generator, cipher *crypto.Cipher, defaultModel string) *TurnService {
	return &TurnService{
		DB:              db,
		Generator:       gen,
		Cipher:          cipher,
		DefaultModel:    defaultModel,
		HistoryLimit:    11,
		MaxContentRunes: 2000,
		IdempotencyTTL:  24 * time.Hour,
	}
}

// Answer runs one full turn and returns its outcome.
//
// The returned error is ErrEmptyContent / ErrTooLong for invalid input,
// ErrRoomNotFound for a missing or foreign room, ErrStateConflict when a
// concurrent turn won the room write, or a wrapped persistence error.
// Generation failures do not error; they yield a fallback reply.
func (s *TurnService) Answer(ctx context.Context, userID, roomID, content string) (*TurnReply, error) {
	tr := otel.Tracer("services/TurnService")
	ctx, span := tr.Start(ctx, "Answer",
		trace.WithAttributes(
			attribute.String("room.id", roomID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	content, err := s.validate(content)
	if err != nil {
		return nil, err
	}

	// Once the pipeline starts writing, a dropped client must not cancel it.
	ctx = context.WithoutCancel(ctx)

	unlock := s.lockRoom(roomID)
	defer unlock()

	reply, err := s.run(ctx, userID, roomID, content)
	s.count(reply, err)
	return reply, err
}

// AnswerStream runs one full turn while relaying reply-text fragments.
// Validation errors are returned synchronously; everything after that is
// delivered on the channel, which ends with exactly one terminal event.
func (s *TurnService) AnswerStream(ctx context.Context, userID, roomID, content string) (<-chan TurnStreamEvent, error) {
	tr := otel.Tracer("services/TurnService")
	ctx, span := tr.Start(ctx, "AnswerStream",
		trace.WithAttributes(
			attribute.String("room.id", roomID),
			attribute.String("user.id", userID),
		),
	)

	content, err := s.validate(content)
	if err != nil {
		span.End()
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	out := make(chan TurnStreamEvent, 16)

	go func() {
		defer close(out)
		defer span.End()

		unlock := s.lockRoom(roomID)
		defer unlock()

		reply, err := s.runStream(ctx, userID, roomID, content, out)
		s.count(reply, err)
		if err != nil {
			out <- TurnStreamEvent{Err: err}
			return
		}
		out <- TurnStreamEvent{Reply: reply}
	}()

	return out, nil
}

// run executes the non-streaming pipeline. The caller holds the room lock.
func (s *TurnService) run(ctx context.Context, userID, roomID, content string) (*TurnReply, error) {
	prep, err := s.prepare(ctx, userID, roomID, content)
	if err != nil {
		return nil, err
	}

	result, err := s.Generator.GenerateTurn(ctx, prep.req)
	if err != nil {
		return nil, err
	}

	return s.commit(ctx, prep, result)
}

// runStream executes the streaming pipeline, relaying fragments to out.
func (s *TurnService) runStream(ctx context.Context, userID, roomID, content string, out chan<- TurnStreamEvent) (*TurnReply, error) {
	prep, err := s.prepare(ctx, userID, roomID, content)
	if err != nil {
		return nil, err
	}

	events, err := s.Generator.GenerateTurnStream(ctx, prep.req)
	if err != nil {
		return nil, err
	}

	var result *genai.TurnResult
	for ev := range events {
		if ev.Result != nil {
			result = ev.Result
			continue
		}
		if ev.Content != "" {
			out <- TurnStreamEvent{Content: ev.Content}
		}
	}
	if result == nil {
		// The generator contract guarantees a terminal result; treat a
		// violation like a persistence-level failure.
		return nil, errors.New("turn stream ended without a result")
	}

	return s.commit(ctx, prep, result)
}

// turnPrep carries the state assembled before the model call.
type turnPrep struct {
	room    *domain.ChatRoom
	userMsg *domain.Message
	req     genai.TurnRequest
}

// prepare re-fetches the authoritative room, persists the user message, and
// assembles the generation request from the recent history window.
func (s *TurnService) prepare(ctx context.Context, userID, roomID, content string) (*turnPrep, error) {
	room, err := repo.GetRoom(ctx, s.DB, roomID, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}

	// The user message is persisted before generation: even if everything
	// after fails, what the user said is never lost.
	userMsg, err := repo.CreateMessage(s.DB.WithContext(ctx), roomID, domain.RoleUser, s.encrypt(content), nil)
	if err != nil {
		return nil, err
	}

	limit := s.HistoryLimit
	if limit <= 0 {
		limit = 11
	}
	recent, err := repo.ListRecentMessages(s.DB.WithContext(ctx), roomID, limit)
	if err != nil {
		return nil, err
	}
	history := make([]genai.TurnMessage, 0, len(recent))
	for i := len(recent) - 1; i >= 0; i-- { // chronological
		history = append(history, genai.TurnMessage{
			Role:    recent[i].Role,
			Content: s.decrypt(recent[i].Content),
		})
	}

	var override *domain.CharacterConfig
	if cfg, err := repo.GetCharacterConfig(ctx, s.DB, room.CharacterType); err == nil {
		override = cfg
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	bonus, err := repo.GetBonusConfig(ctx, s.DB, s.DefaultModel)
	if err != nil {
		return nil, err
	}

	return &turnPrep{
		room:    room,
		userMsg: userMsg,
		req: genai.TurnRequest{
			Model:         bonus.AIModel,
			CharacterType: room.CharacterType,
			Name:          room.Name,
			Gender:        room.Gender,
			AdultMode:     room.IsAdultMode,
			Summary:       s.decrypt(room.Summary),
			State:         room.State,
			History:       history,
			Override:      override,
		},
	}, nil
}

// commit folds the generation result into persistent state: back-annotate the
// user message with the raw delta, create the assistant message, and advance
// the room under the optimistic guard. All three writes share one transaction,
// so a conflict loser rolls back in full — no assistant message, no
// back-annotation, no state move. Only the user message persisted during
// preparation survives.
func (s *TurnService) commit(ctx context.Context, prep *turnPrep, result *genai.TurnResult) (*TurnReply, error) {
	// Re-read the bonus inside the turn so operator tuning applies to the
	// turn in flight, per the freshest configuration.
	bonusCfg, err := repo.GetBonusConfig(ctx, s.DB, s.DefaultModel)
	if err != nil {
		return nil, err
	}
	newState := emotion.Apply(prep.room.State, result.Delta, bonusCfg.Bonus())

	rawDelta := result.Delta
	deltaPtr := &rawDelta
	if rawDelta.IsEmpty() {
		deltaPtr = nil
	}
	var assistant *domain.Message
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if deltaPtr != nil {
			if err := repo.UpdateMessageDelta(tx, prep.userMsg.ID, deltaPtr); err != nil {
				return err
			}
		}
		m, err := repo.CreateMessage(tx, prep.room.ID, domain.RoleAssistant, s.encrypt(result.Content), deltaPtr)
		if err != nil {
			return err
		}
		assistant = m

		return repo.UpdateRoomOnTurn(ctx, tx, prep.room.ID, prep.room.UpdatedAt,
			newState, s.encrypt(result.SummaryUpdate), s.encrypt(result.Content))
	})
	if err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return nil, ErrStateConflict
		}
		return nil, err
	}

	assistant.Content = result.Content
	reply := &TurnReply{
		Message:          *assistant,
		State:            newState,
		UserMessageDelta: rawDelta,
	}
	if result.Fallback {
		turnsTotal.WithLabelValues("fallback").Inc()
	}
	return reply, nil
}

func (s *TurnService) validate(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyContent
	}
	max := s.MaxContentRunes
	if max <= 0 {
		max = 2000
	}
	if utf8.RuneCountInString(content) > max {
		return "", ErrTooLong
	}
	return content, nil
}

// lockRoom serializes turns per room and returns the unlock func.
func (s *TurnService) lockRoom(roomID string) func() {
	v, _ := s.locks.LoadOrStore(roomID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *TurnService) count(reply *TurnReply, err error) {
	switch {
	case err == nil:
		turnsTotal.WithLabelValues("ok").Inc()
	case errors.Is(err, ErrStateConflict):
		turnsTotal.WithLabelValues("conflict").Inc()
	default:
		turnsTotal.WithLabelValues("error").Inc()
	}
}

func (s *TurnService) encrypt(v string) string {
	if s.Cipher == nil {
		return v
	}
	enc, err := s.Cipher.Encrypt(v)
	if err != nil {
		// Losing a message is worse than storing it in the clear.
		return v
	}
	return enc
}

func (s *TurnService) decrypt(v string) string {
	if s.Cipher == nil {
		return v
	}
	return s.Cipher.Decrypt(v)
}
