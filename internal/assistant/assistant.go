package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/Skufu/vitalwatch/internal/backend"
	"github.com/Skufu/vitalwatch/internal/logger"
	"github.com/Skufu/vitalwatch/internal/store"
)

const (
	SourceBackend  = "backend"
	SourceGemini   = "gemini"
	SourceFallback = "fallback"
	SourceRules    = "rules"

	defaultCacheTTL = 10 * time.Minute
)

var (
	ErrEmptyMessage = errors.New("message is required")
	ErrNoGenerator  = errors.New("no generative client configured")
)

// Generator is the generative-AI completion call.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Backend is the subset of the analysis backend the assistant talks to.
type Backend interface {
	Chat(ctx context.Context, req backend.ChatRequest) (*backend.ChatResponse, error)
	AnalyzeHealth(ctx context.Context, req backend.AnalyzeRequest) (*backend.AnalyzeResponse, error)
}

// PredictionStore keeps generated predictions. store.Service satisfies it.
type PredictionStore interface {
	SavePrediction(ctx context.Context, p store.Prediction) store.Prediction
	LatestPrediction(ctx context.Context, predictionType string) *store.Prediction
}

type Reply struct {
	Response string `json:"response"`
	Source   string `json:"source"`
	Cached   bool   `json:"cached"`
}

type Assistant struct {
	backend     Backend
	gen         Generator
	predictions PredictionStore
	cache       *cache.Cache
	log         *zap.Logger
}

type Option func(*Assistant)

func WithBackend(b Backend) Option {
	return func(a *Assistant) { a.backend = b }
}

func WithGenerator(g Generator) Option {
	return func(a *Assistant) { a.gen = g }
}

func WithPredictionStore(p PredictionStore) Option {
	return func(a *Assistant) { a.predictions = p }
}

func WithCacheTTL(ttl time.Duration) Option {
	return func(a *Assistant) {
		if ttl > 0 {
			a.cache = cache.New(ttl, 2*ttl)
		}
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(a *Assistant) { a.log = logger.Module(log, "assistant") }
}

// New builds an assistant. Every collaborator is optional; missing ones are
// skipped on the way to the local fallback.
func New(opts ...Option) *Assistant {
	a := &Assistant{
		cache: cache.New(defaultCacheTTL, 2*defaultCacheTTL),
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Chat answers a health question. It tries the backend, then the generative
// client, then canned keyword replies, and never fails for a non-empty
// message.
func (a *Assistant) Chat(ctx context.Context, message string, profile any) (Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return Reply{}, ErrEmptyMessage
	}

	key := cacheKey(message, profile)
	if cached, ok := a.cache.Get(key); ok {
		reply := cached.(Reply)
		reply.Cached = true
		return reply, nil
	}

	reply := a.answer(ctx, message, profile)
	if reply.Source != SourceFallback {
		a.cache.Set(key, reply, cache.DefaultExpiration)
	}
	return reply, nil
}

func (a *Assistant) answer(ctx context.Context, message string, profile any) Reply {
	if a.backend != nil {
		resp, err := a.backend.Chat(ctx, backend.ChatRequest{Message: message, PatientProfile: profile})
		if err == nil && resp.Success && resp.Response != "" {
			return Reply{Response: resp.Response, Source: SourceBackend}
		}
		a.log.Warn("backend chat failed", zap.Error(err))
	}

	if a.gen != nil {
		text, err := a.gen.Generate(ctx, chatPrompt(message, profile))
		if err == nil && strings.TrimSpace(text) != "" {
			return Reply{Response: strings.TrimSpace(text), Source: SourceGemini}
		}
		a.log.Warn("generative chat failed", zap.Error(err))
	}

	return Reply{Response: FallbackReply(message), Source: SourceFallback}
}

func cacheKey(message string, profile any) string {
	p, err := json.Marshal(profile)
	if err != nil {
		p = []byte(fmt.Sprint(profile))
	}
	return strings.ToLower(message) + "|" + string(p)
}

func chatPrompt(message string, profile any) string {
	p, _ := json.MarshalIndent(profile, "", "  ")
	return fmt.Sprintf(`Interact with the patient as a human for non-medical questions.
Answer the following health-related question based on the patient's profile and health data, if asked:

Question: %s

Patient Profile:
%s

Provide a concise answer focusing on:
1. Direct response to the question
2. Relevant health insights from the data
3. Personalized recommendations if applicable
4. Any necessary precautions or warnings`, message, p)
}
