// Package rag answers questions against a loaded collection: it embeds the question, retrieves
// the nearest chunks, asks the generator for a grounded answer and attributes the quotes in
// that answer back to the retrieved chunks.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/corpus"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/generation"
	"github.com/hyperjump/kotae/internal/metrics"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/session"
	"github.com/hyperjump/kotae/internal/storage"
)

var (
	// ErrNoIndexLoaded is returned when a grounded question targets a collection that has no
	// loaded session.
	ErrNoIndexLoaded = errors.New("no embedding loaded")
	// ErrCollectionNotFound is returned for a collection the owner does not have.
	ErrCollectionNotFound = errors.New("collection not found")
	// ErrEmptyAnswer is returned when the generator produced only whitespace.
	ErrEmptyAnswer = errors.New("no answer generated")
)

// MissingInputError reports a required request field that was empty.
type MissingInputError struct {
	Field string
}

func (e *MissingInputError) Error() string {
	return e.Field + " is required"
}

// State is a step of answering one question.
type State string

const (
	StateReceived            State = "received"
	StateEmbeddingQuery      State = "embedding_query"
	StateSearching           State = "searching"
	StatePrompting           State = "prompting"
	StateGenerating          State = "generating"
	StateReconcilingEvidence State = "reconciling_evidence"
	StateDone                State = "done"
	StateFailed              State = "failed"
)

// Service runs questions through the answering state machine.
type Service struct {
	sessions    *session.Registry
	store       storage.Storage
	embedder    embedding.Embedder
	generator   generation.Generator
	logger      *zap.Logger
	metrics     *metrics.Metrics
	topK        int
	minQuoteLen int
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger for question handling.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records per-stage latency and query outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTopK sets the number of chunks retrieved when a request does not say.
func WithTopK(k int) Option {
	return func(s *Service) {
		if k > 0 {
			s.topK = k
		}
	}
}

// WithMinQuoteLength sets the shortest quote kept as evidence.
func WithMinQuoteLength(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.minQuoteLen = n
		}
	}
}

// NewService answers questions against the sessions in the registry, restoring them from store on demand.
func NewService(sessions *session.Registry, store storage.Storage, embedder embedding.Embedder, generator generation.Generator, opts ...Option) *Service {
	s := &Service{
		sessions:    sessions,
		store:       store,
		embedder:    embedder,
		generator:   generator,
		logger:      zap.NewNop(),
		topK:        models.DefaultTopK,
		minQuoteLen: DefaultMinQuoteLength,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// run tracks one question through its states.
type run struct {
	svc     *Service
	logger  *zap.Logger
	state   State
	entered time.Time
}

func (r *run) enter(next State) {
	now := time.Now()
	r.svc.metrics.ObserveStage(string(r.state), now.Sub(r.entered))
	r.logger.Debug("query state", zap.String("from", string(r.state)), zap.String("to", string(next)))
	r.state = next
	r.entered = now
}

func (r *run) fail(err error) error {
	failedIn := r.state
	r.enter(StateFailed)
	r.svc.metrics.CountQuery(outcome(err))
	r.logger.Warn("query failed", zap.String("state", string(failedIn)), zap.Error(err))
	return fmt.Errorf("%s: %w", failedIn, err)
}

// Ask answers req for owner. Open-mode questions skip retrieval and carry no evidence.
// On success the question and the answer are appended to the collection transcript; a failed
// question leaves the transcript untouched.
func (s *Service) Ask(ctx context.Context, owner string, req models.AskRequest) (*models.Answer, error) {
	question := strings.TrimSpace(req.Question)
	name := strings.TrimSpace(req.Collection)
	r := &run{
		svc:     s,
		logger:  s.logger.With(zap.String("owner", owner), zap.String("collection", name), zap.Bool("open_mode", req.OpenMode)),
		state:   StateReceived,
		entered: time.Now(),
	}

	if question == "" {
		return nil, r.fail(&MissingInputError{Field: "question"})
	}
	if name == "" {
		return nil, r.fail(&MissingInputError{Field: "collection"})
	}
	coll, err := s.store.GetCollection(ctx, owner, name)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, r.fail(fmt.Errorf("%w: %s", ErrCollectionNotFound, name))
	}
	if err != nil {
		return nil, r.fail(fmt.Errorf("failed to look up collection: %w", err))
	}

	var (
		hits   []corpus.Hit
		prompt string
	)
	if req.OpenMode {
		r.enter(StatePrompting)
		prompt = OpenPrompt(question)
	} else {
		c, ok := s.sessions.Get(session.Key{Owner: owner, Collection: name})
		if !ok {
			return nil, r.fail(ErrNoIndexLoaded)
		}

		r.enter(StateEmbeddingQuery)
		vec, err := s.embedder.Embed(ctx, question)
		if err != nil {
			return nil, r.fail(fmt.Errorf("failed to embed question: %w", err))
		}

		r.enter(StateSearching)
		hits, err = c.Search(vec, req.EffectiveTopK(s.topK))
		if err != nil {
			return nil, r.fail(fmt.Errorf("failed to search collection: %w", err))
		}

		r.enter(StatePrompting)
		prompt = GroundedPrompt(question, hits)
	}

	r.enter(StateGenerating)
	text, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, r.fail(err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, r.fail(ErrEmptyAnswer)
	}

	r.enter(StateReconcilingEvidence)
	evidence := []models.EvidenceItem{}
	if !req.OpenMode {
		evidence = ExtractEvidence(text, hits, s.minQuoteLen)
	}

	r.enter(StateDone)
	s.metrics.CountQuery("ok")
	r.logger.Info("question answered", zap.Int("retrieved", len(hits)), zap.Int("evidence", len(evidence)))

	answer := &models.Answer{Answer: text, Evidence: evidence}
	s.recordExchange(ctx, r.logger, coll, question, answer)
	return answer, nil
}

func (s *Service) recordExchange(ctx context.Context, logger *zap.Logger, coll *models.Collection, question string, answer *models.Answer) {
	now := time.Now().UTC()
	msgs := []*models.Message{
		{ID: uuid.NewString(), CollectionID: coll.ID, OwnerID: coll.OwnerID, Role: models.RoleUser, Content: question, CreatedAt: now},
		{ID: uuid.NewString(), CollectionID: coll.ID, OwnerID: coll.OwnerID, Role: models.RoleBot, Content: answer.Answer, Evidence: answer.Evidence, CreatedAt: now},
	}
	if err := s.store.AppendMessages(ctx, msgs...); err != nil {
		logger.Error("failed to save transcript", zap.Error(err))
	}
}

// Messages returns the transcript of one collection, oldest first.
func (s *Service) Messages(ctx context.Context, owner, name string) ([]*models.Message, error) {
	coll, err := s.store.GetCollection(ctx, owner, name)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up collection: %w", err)
	}
	return s.store.ListMessages(ctx, coll.ID)
}

func outcome(err error) string {
	var missing *MissingInputError
	switch {
	case errors.As(err, &missing):
		return "missing_input"
	case errors.Is(err, ErrCollectionNotFound):
		return "not_found"
	case errors.Is(err, ErrNoIndexLoaded):
		return "no_index"
	case errors.Is(err, embedding.ErrEmbeddingService):
		return "embedding_error"
	case errors.Is(err, generation.ErrGenerationService):
		return "generation_error"
	case errors.Is(err, ErrEmptyAnswer):
		return "empty_answer"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
