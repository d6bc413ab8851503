// Package genai wraps the OpenAI chat-completions API behind a small
// Generator interface that produces one companion turn at a time: the
// character's reply text plus a structured emotional-state delta, both
// constrained by a strict JSON schema.
//
// The package absorbs model failures. Transport errors, refusals, and
// malformed output all degrade to a fixed in-character fallback turn with an
// empty delta, so callers always receive a usable turn and never see a model
// error. Only caller misuse surfaces as an error.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"

	"github.com/jwkoh-dev/go-companion-backend/internal/domain"
	"github.com/jwkoh-dev/go-companion-backend/internal/emotion"
	"github.com/jwkoh-dev/go-companion-backend/internal/persona"
)

// fallbackContent is the reply used when the model cannot produce a turn.
// It stays in character and carries no emotional consequence.
const fallbackContent = "Sorry... my head is all over the place right now. Can you say that again?"

const (
	summaryTakeRunes = 30  // how much of each reply feeds the rolling summary
	summaryMaxRunes  = 200 // rolling summary cap, oldest text trimmed first
)

// TurnMessage is one prior utterance of the conversation window.
type TurnMessage struct {
	Role    string
	Content string
}

// TurnRequest carries everything a single generation needs. Model may be
// empty, in which case the client's configured default is used.
type TurnRequest struct {
	Model         string
	CharacterType string
	Name          string
	Gender        string
	AdultMode     bool
	Summary       string
	State         emotion.State
	History       []TurnMessage
	Override      *domain.CharacterConfig
}

// TurnResult is one completed generation.
type TurnResult struct {
	Content       string
	Delta         emotion.Delta
	SummaryUpdate string
	Fallback      bool
}

// StreamEvent is one element of a streaming generation: zero or more
// Content fragments followed by exactly one terminal event with Result set.
type StreamEvent struct {
	Content string
	Result  *TurnResult
}

// Generator produces companion turns. Implementations must never fail a turn
// for model-side reasons; they degrade to a fallback result instead.
type Generator interface {
	GenerateTurn(ctx context.Context, req TurnRequest) (*TurnResult, error)
	GenerateTurnStream(ctx context.Context, req TurnRequest) (<-chan StreamEvent, error)
}

// Options configures the OpenAI-backed generator.
type Options struct {
	APIKey      string
	Model       string
	MaxTokens   int64
	Temperature float64
}

// OpenAI is the production Generator backed by the OpenAI chat-completions
// API with strict structured output.
type OpenAI struct {
	client      openai.Client
	model       string
	maxTokens   int64
	temperature float64
	schema      map[string]interface{}
	log         zerolog.Logger
}

var _ Generator = (*OpenAI)(nil)

// NewOpenAI builds the production generator.
func NewOpenAI(opts Options, log zerolog.Logger) (*OpenAI, error) {
	if opts.APIKey == "" {
		return nil, errors.New("genai: missing API key")
	}
	if opts.Model == "" {
		return nil, errors.New("genai: missing default model")
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1000
	}
	if opts.Temperature <= 0 {
		opts.Temperature = 0.9
	}
	return &OpenAI{
		client:      openai.NewClient(option.WithAPIKey(opts.APIKey)),
		model:       opts.Model,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
		schema:      generateSchema[turnPayload](),
		log:         log.With().Str("component", "genai").Logger(),
	}, nil
}

// GenerateTurn produces one turn without streaming. Model failures are
// absorbed into a fallback result; err is reserved for caller misuse.
func (o *OpenAI) GenerateTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	params := o.params(req)

	resp, err := o.callWithRetry(ctx, params)
	if err != nil {
		o.log.Warn().Err(err).Str("model", string(params.Model)).Msg("completion failed, using fallback turn")
		return fallbackTurn(req.Summary), nil
	}
	if len(resp.Choices) == 0 {
		o.log.Warn().Str("model", string(params.Model)).Msg("completion returned no choices, using fallback turn")
		return fallbackTurn(req.Summary), nil
	}

	result, err := parseTurn(resp.Choices[0].Message.Content, req.Summary)
	if err != nil {
		o.log.Warn().Err(err).Msg("malformed model output, using fallback turn")
		return fallbackTurn(req.Summary), nil
	}
	return result, nil
}

// GenerateTurnStream produces one turn while relaying reply-text fragments as
// they arrive. The returned channel yields Content events followed by exactly
// one Result event, then closes. Failures mid-stream degrade to the fallback
// turn; the terminal Result is always present and authoritative.
func (o *OpenAI) GenerateTurnStream(ctx context.Context, req TurnRequest) (<-chan StreamEvent, error) {
	params := o.params(req)
	out := make(chan StreamEvent, 16)

	go func() {
		defer close(out)

		stream := o.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		var (
			acc     openai.ChatCompletionAccumulator
			scanner contentScanner
			emitted bool
		)
		for stream.Next() {
			chunk := stream.Current()
			acc.AddChunk(chunk)
			if len(chunk.Choices) == 0 {
				continue
			}
			if text := scanner.Feed(chunk.Choices[0].Delta.Content); text != "" {
				emitted = true
				out <- StreamEvent{Content: text}
			}
		}

		result := o.finishStream(stream.Err(), &acc, req.Summary)
		if result.Fallback && !emitted {
			out <- StreamEvent{Content: result.Content}
		}
		out <- StreamEvent{Result: result}
	}()

	return out, nil
}

// finishStream turns the accumulated stream into the terminal result,
// degrading to the fallback on any transport or parse failure.
func (o *OpenAI) finishStream(streamErr error, acc *openai.ChatCompletionAccumulator, prevSummary string) *TurnResult {
	if streamErr != nil {
		o.log.Warn().Err(streamErr).Msg("stream failed, using fallback turn")
		return fallbackTurn(prevSummary)
	}
	if len(acc.Choices) == 0 {
		o.log.Warn().Msg("stream produced no choices, using fallback turn")
		return fallbackTurn(prevSummary)
	}
	result, err := parseTurn(acc.Choices[0].Message.Content, prevSummary)
	if err != nil {
		o.log.Warn().Err(err).Msg("malformed streamed output, using fallback turn")
		return fallbackTurn(prevSummary)
	}
	return result
}

func (o *OpenAI) params(req TurnRequest) openai.ChatCompletionNewParams {
	model := req.Model
	if model == "" {
		model = o.model
	}

	system := persona.Build(persona.Input{
		Type:      req.CharacterType,
		State:     req.State,
		Summary:   req.Summary,
		Name:      req.Name,
		Gender:    req.Gender,
		AdultMode: req.AdultMode,
		Override:  req.Override,
	})

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+1)
	messages = append(messages, openai.SystemMessage(system))
	for _, m := range req.History {
		if m.Role == domain.RoleAssistant {
			messages = append(messages, openai.AssistantMessage(m.Content))
		} else {
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	return openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(model),
		Messages:    messages,
		Temperature: openai.Float(o.temperature),
		MaxTokens:   openai.Int(o.maxTokens),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        "companion_turn",
					Description: openai.String("One companion chat turn with its emotional state delta."),
					Schema:      o.schema,
					Strict:      openai.Bool(true),
				},
			},
		},
	}
}

// callWithRetry retries rate-limit and server errors a couple of times with
// short waits; anything else fails immediately. Waits respect ctx.
func (o *OpenAI) callWithRetry(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	const maxAttempts = 3
	waits := []time.Duration{time.Second, 3 * time.Second}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		resp, err := o.client.Chat.Completions.New(ctx, params)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if attempt == maxAttempts-1 || !(isRateLimitError(err) || isServerError(err)) {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(waits[attempt]):
		}
	}
	return nil, lastErr
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "429") ||
		strings.Contains(s, "rate limit") ||
		strings.Contains(s, "too many requests")
}

func isServerError(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "500") ||
		strings.Contains(s, "internal server error") ||
		strings.Contains(s, "server_error")
}

// parseTurn decodes the model's structured output and derives the updated
// rolling summary from the reply.
func parseTurn(raw, prevSummary string) (*TurnResult, error) {
	var p turnPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Content) == "" {
		return nil, errors.New("empty content in model output")
	}
	d := p.StateDelta
	return &TurnResult{
		Content:       p.Content,
		Delta:         emotion.Delta{Affection: &d.Affection, Jealousy: &d.Jealousy, Anger: &d.Anger, Trust: &d.Trust},
		SummaryUpdate: rollSummary(prevSummary, p.Content),
	}, nil
}

// fallbackTurn is the degraded result: fixed apologetic content, empty delta,
// summary unchanged.
func fallbackTurn(prevSummary string) *TurnResult {
	return &TurnResult{
		Content:       fallbackContent,
		Delta:         emotion.Delta{},
		SummaryUpdate: prevSummary,
		Fallback:      true,
	}
}

// rollSummary appends the head of the newest reply to the rolling summary and
// trims the result to the newest summaryMaxRunes runes.
func rollSummary(prev, content string) string {
	head := []rune(content)
	if len(head) > summaryTakeRunes {
		head = head[:summaryTakeRunes]
	}
	s := strings.TrimSpace(prev + " " + string(head) + "...")
	r := []rune(s)
	if len(r) > summaryMaxRunes {
		r = r[len(r)-summaryMaxRunes:]
	}
	return string(r)
}
