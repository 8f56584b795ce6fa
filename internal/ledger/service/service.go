package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"rollguard/internal/ledger/canonical"
	"rollguard/internal/ledger/metrics"
	"rollguard/internal/ledger/models"
	dErrors "rollguard/pkg/domain-errors"
	"rollguard/pkg/platform/sentinel"
)

const (
	defaultPageSize   = 100
	maxPageSize       = 1000
	verifyBatchSize   = 500
	defaultAppendWait = 5 * time.Second
)

// Service appends to and verifies hash chains. Appends to the same chain are
// serialized in-process; the store's sequence uniqueness catches writers in
// other processes.
type Service struct {
	store      Store
	locks      chainLocks
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	now        func() time.Time
	appendWait time.Duration
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock overrides the block timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// WithAppendTimeout bounds how long an append waits for the chain when the
// caller's context carries no deadline.
func WithAppendTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.appendWait = d
		}
	}
}

// New constructs a ledger Service.
func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("ledger store is required")
	}
	s := &Service{
		store:      store,
		logger:     slog.Default(),
		tracer:     otel.Tracer("rollguard/ledger"),
		now:        time.Now,
		appendWait: defaultAppendWait,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Append canonically encodes payload and links it to the tail of chain.
// Once the chain is acquired the write runs to completion even if ctx is
// cancelled, so a block is either fully persisted or absent.
func (s *Service) Append(ctx context.Context, chain string, payload any) (*models.Block, error) {
	if err := models.ValidateChainName(chain); err != nil {
		return nil, err
	}
	encoded, err := canonical.Encode(payload)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "payload is not canonically encodable")
	}

	ctx, span := s.tracer.Start(ctx, "ledger.Append", trace.WithAttributes(attribute.String("ledger.chain", chain)))
	defer span.End()

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.appendWait)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "append aborted: context cancelled")
	}

	start := time.Now()
	unlock := s.locks.lock(chain)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "append aborted: context cancelled")
	}
	writeCtx := context.WithoutCancel(ctx)

	block, err := s.nextBlock(writeCtx, chain, encoded)
	if err != nil {
		s.metrics.IncAppendFailure(chain)
		span.RecordError(err)
		return nil, err
	}
	if err := s.store.Append(writeCtx, *block); err != nil {
		s.metrics.IncAppendFailure(chain)
		span.RecordError(err)
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "chain advanced concurrently")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist block")
	}

	s.metrics.ObserveAppend(chain, time.Since(start).Seconds())
	span.SetAttributes(attribute.Int64("ledger.sequence", block.Sequence))
	s.logger.DebugContext(ctx, "ledger block appended",
		"chain", chain,
		"sequence", block.Sequence,
		"hash", block.CurrentHash,
	)
	return block, nil
}

func (s *Service) nextBlock(ctx context.Context, chain string, encoded []byte) (*models.Block, error) {
	prevHash := models.GenesisPrevHash
	var seq int64
	last, err := s.store.Last(ctx, chain)
	switch {
	case err == nil:
		prevHash = last.CurrentHash
		seq = last.Sequence + 1
	case errors.Is(err, sentinel.ErrNotFound):
	default:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read chain tail")
	}

	ts := s.now().UTC().Truncate(time.Millisecond)
	if last != nil && ts.Before(last.Timestamp) {
		// Keep timestamps non-decreasing when the wall clock steps back.
		ts = last.Timestamp
	}
	return &models.Block{
		Chain:        chain,
		Sequence:     seq,
		PreviousHash: prevHash,
		Payload:      encoded,
		Timestamp:    ts,
		CurrentHash:  hashBlock(prevHash, encoded, models.FormatTimestamp(ts)),
	}, nil
}

// Verify replays chain from genesis. A broken chain is reported in the
// result; the error return is reserved for storage failures.
func (s *Service) Verify(ctx context.Context, chain string) (*models.Verification, error) {
	if err := models.ValidateChainName(chain); err != nil {
		return nil, err
	}
	ctx, span := s.tracer.Start(ctx, "ledger.Verify", trace.WithAttributes(attribute.String("ledger.chain", chain)))
	defer span.End()

	result := &models.Verification{Chain: chain, Valid: true}
	prevHash := models.GenesisPrevHash
	var position int64
	for {
		if err := ctx.Err(); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "verification cancelled")
		}
		batch, err := s.store.Range(ctx, chain, position, verifyBatchSize)
		if err != nil {
			span.RecordError(err)
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read chain")
		}
		for i := range batch {
			s.checkBlock(result, &batch[i], position, prevHash)
			prevHash = batch[i].CurrentHash
			position = batch[i].Sequence + 1
		}
		result.Blocks += int64(len(batch))
		if len(batch) < verifyBatchSize {
			break
		}
	}

	s.metrics.ObserveVerify(chain, result.Valid, result.Blocks)
	span.SetAttributes(
		attribute.Bool("ledger.valid", result.Valid),
		attribute.Int64("ledger.blocks", result.Blocks),
	)
	if !result.Valid {
		s.logger.WarnContext(ctx, "ledger chain failed verification",
			"chain", chain,
			"first_invalid_index", *result.FirstInvalidIndex,
			"issues", len(result.Issues),
		)
	}
	return result, nil
}

func (s *Service) checkBlock(result *models.Verification, b *models.Block, expectedSeq int64, prevHash string) {
	var issues []models.Issue
	if b.Sequence != expectedSeq {
		issues = append(issues, models.Issue{
			Sequence: b.Sequence,
			Kind:     models.IssueSequenceGap,
			Expected: formatSeq(expectedSeq),
			Actual:   formatSeq(b.Sequence),
		})
	}
	if b.PreviousHash != prevHash {
		issues = append(issues, models.Issue{
			Sequence: b.Sequence,
			Kind:     models.IssueBrokenLink,
			Expected: prevHash,
			Actual:   b.PreviousHash,
		})
	}
	if want := hashBlock(prevHash, b.Payload, b.TimestampString()); want != b.CurrentHash {
		issues = append(issues, models.Issue{
			Sequence: b.Sequence,
			Kind:     models.IssueHashMismatch,
			Expected: want,
			Actual:   b.CurrentHash,
		})
	}
	if len(issues) == 0 {
		return
	}
	if result.Valid {
		idx := b.Sequence
		result.FirstInvalidIndex = &idx
		result.Valid = false
	}
	result.Issues = append(result.Issues, issues...)
}

// Block returns one block by sequence number.
func (s *Service) Block(ctx context.Context, chain string, seq int64) (*models.Block, error) {
	if err := models.ValidateChainName(chain); err != nil {
		return nil, err
	}
	if seq < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "sequence must be non-negative")
	}
	b, err := s.store.Get(ctx, chain, seq)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "block not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load block")
	}
	return b, nil
}

// Page is one slice of a chain listing.
type Page struct {
	Blocks []models.Block
	Total  int64
	Page   int
	Limit  int
}

// Chain lists blocks in sequence order. page is 1-based.
func (s *Service) Chain(ctx context.Context, chain string, page, limit int) (*Page, error) {
	if err := models.ValidateChainName(chain); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	limit = min(limit, maxPageSize)

	total, err := s.store.Count(ctx, chain)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count blocks")
	}
	blocks, err := s.store.Range(ctx, chain, int64(page-1)*int64(limit), limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list blocks")
	}
	return &Page{Blocks: blocks, Total: total, Page: page, Limit: limit}, nil
}
