// Package pipeline sequences a capture session from transcript to anchored
// commitment: extraction, confirmation, canonicalization, hashing, blob
// upload and ledger commit.
//
// Commit ordering: the blob identifier is attached to the record first and
// the canonical form is computed once, over the final record including that
// identifier. Anchoring a hash that does not cover the blob reference would
// break the audit chain, so the other ordering is treated as a defect.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/OpenHarvest-Labs/fieldproof/pkg/blobstore"
	"github.com/OpenHarvest-Labs/fieldproof/pkg/canonicalize"
	"github.com/OpenHarvest-Labs/fieldproof/pkg/extract"
	"github.com/OpenHarvest-Labs/fieldproof/pkg/ledger"
	"github.com/OpenHarvest-Labs/fieldproof/pkg/observability"
	"github.com/OpenHarvest-Labs/fieldproof/pkg/record"
	"github.com/OpenHarvest-Labs/fieldproof/pkg/schema"
	"github.com/OpenHarvest-Labs/fieldproof/pkg/session"
)

var (
	// ErrInvalidTransition means the requested operation is not allowed
	// from the session's current state.
	ErrInvalidTransition = errors.New("invalid session state transition")
	// ErrCommitFailed means a collaborator call failed or timed out. The
	// session is left in COMMIT_FAILED and the commit may be retried.
	ErrCommitFailed = errors.New("commit failed")
	// ErrCanonicalization means the record violated the canonical schema
	// after extraction. This is a programming error, fatal to the session.
	ErrCanonicalization = errors.New("canonicalization failed")
	// ErrMissingAudio means no evidentiary payload was supplied and none
	// was uploaded by a previous attempt.
	ErrMissingAudio = errors.New("no audio payload")
)

// Options tunes the pipeline.
type Options struct {
	// CommitTimeout bounds one commit attempt across both collaborator
	// calls. Zero selects the default.
	CommitTimeout time.Duration
	Logger        *slog.Logger
	Observability *observability.Provider
	// Trail receives every session state transition. Nil discards them.
	Trail session.Trail
	Clock func() time.Time
}

const defaultCommitTimeout = 60 * time.Second

// Pipeline drives sessions through the capture lifecycle. Independent
// sessions proceed concurrently; operations within one session are
// serialized by a per-session lock.
type Pipeline struct {
	store     session.Store
	blobs     blobstore.Store
	anchor    ledger.Anchorer
	extractor *extract.Extractor
	validator *schema.Validator

	commitTimeout time.Duration
	logger        *slog.Logger
	obs           *observability.Provider
	tracer        trace.Tracer
	trail         session.Trail
	clock         func() time.Time

	locks sync.Map // session id -> *sync.Mutex
}

// New assembles a pipeline over the given collaborators.
func New(store session.Store, blobs blobstore.Store, anchor ledger.Anchorer, extractor *extract.Extractor, opts Options) (*Pipeline, error) {
	validator, err := schema.NewValidator()
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	p := &Pipeline{
		store:         store,
		blobs:         blobs,
		anchor:        anchor,
		extractor:     extractor,
		validator:     validator,
		commitTimeout: opts.CommitTimeout,
		logger:        opts.Logger,
		obs:           opts.Observability,
		trail:         opts.Trail,
		clock:         opts.Clock,
	}
	if p.commitTimeout <= 0 {
		p.commitTimeout = defaultCommitTimeout
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.trail == nil {
		p.trail = session.NopTrail{}
	}
	if p.clock == nil {
		p.clock = time.Now
	}
	if p.obs != nil {
		p.tracer = p.obs.Tracer()
	} else {
		p.tracer = nooptrace.NewTracerProvider().Tracer("fieldproof.pipeline")
	}
	return p, nil
}

func (p *Pipeline) lockFor(id string) *sync.Mutex {
	mu, _ := p.locks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// setState transitions the session and records the transition on the trail.
// A trail write failure is logged, never fails the operation.
func (p *Pipeline) setState(ctx context.Context, sess *session.Session, to session.State, reason string) {
	from := sess.State
	sess.State = to
	sess.UpdatedAt = p.clock().UTC()
	if err := p.trail.Record(sess.ID, sess.FarmerID, from, to, reason); err != nil {
		p.logger.WarnContext(ctx, "trail write failed", "session_id", sess.ID, "error", err)
	}
}

// StartSession creates a new session in CREATED.
func (p *Pipeline) StartSession(ctx context.Context, language string) (*session.Session, error) {
	sess := session.New(extract.NormalizeLanguage(language), p.clock().UTC())
	if err := p.store.Put(ctx, sess); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	if err := p.trail.Record(sess.ID, sess.FarmerID, "", session.StateCreated, ""); err != nil {
		p.logger.WarnContext(ctx, "trail write failed", "session_id", sess.ID, "error", err)
	}
	p.logger.InfoContext(ctx, "session started", "session_id", sess.ID, "language", sess.Language)
	return sess, nil
}

// GetSession retrieves a session by id.
func (p *Pipeline) GetSession(ctx context.Context, id string) (*session.Session, error) {
	return p.store.Get(ctx, id)
}

// Capture runs extraction over the transcript and moves the session to
// READY_FOR_CONFIRMATION. It may be called again to re-capture before the
// session is committed.
func (p *Pipeline) Capture(ctx context.Context, id, transcript string) (*session.Session, error) {
	mu := p.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	sess, err := p.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch sess.State {
	case session.StateCreated, session.StateCapturing, session.StateReadyForConfirmation:
	default:
		return nil, fmt.Errorf("%w: capture from %s", ErrInvalidTransition, sess.State)
	}

	p.setState(ctx, sess, session.StateCapturing, "")
	rec := p.extractor.Extract(transcript, sess.Language)
	rec.FarmerID = sess.FarmerID

	sess.Transcript = transcript
	sess.Record = rec
	p.setState(ctx, sess, session.StateReadyForConfirmation, "")
	if err := p.store.Put(ctx, sess); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}

	p.logger.InfoContext(ctx, "transcript captured",
		"session_id", sess.ID,
		"crop", rec.CropType,
		"acreage", rec.Acreage.String(),
	)
	return sess, nil
}

// Corrections carries user edits applied during confirmation. Nil pointers
// leave the extracted value in place. Farmer id and timestamp are not
// correctable: a correction after commit is a new record.
type Corrections struct {
	CropType         *string
	Acreage          *record.Acres
	CurrentStage     *record.GrowthStage
	ObservedIssues   []string
	ChemicalsUsed    []record.Chemical
	ExpectedYield    *string
	PriceExpectation *string
}

// ApplyCorrections merges user edits into the in-progress record and marks
// the touched fields confirmed.
func (p *Pipeline) ApplyCorrections(ctx context.Context, id string, c Corrections) (*session.Session, error) {
	mu := p.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	sess, err := p.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.State != session.StateReadyForConfirmation && sess.State != session.StateCommitFailed {
		return nil, fmt.Errorf("%w: corrections from %s", ErrInvalidTransition, sess.State)
	}

	rec := sess.Record.Clone()
	if c.CropType != nil {
		rec.CropType = *c.CropType
		rec.MarkSource("crop_type", record.SourceConfirmed)
	}
	if c.Acreage != nil {
		rec.Acreage = *c.Acreage
		rec.MarkSource("acreage", record.SourceConfirmed)
	}
	if c.CurrentStage != nil {
		rec.CurrentStage = *c.CurrentStage
		rec.MarkSource("current_stage", record.SourceConfirmed)
	}
	if c.ObservedIssues != nil {
		rec.ObservedIssues = append([]string(nil), c.ObservedIssues...)
		rec.MarkSource("observed_issues", record.SourceConfirmed)
	}
	if c.ChemicalsUsed != nil {
		rec.ChemicalsUsed = append([]record.Chemical(nil), c.ChemicalsUsed...)
		rec.MarkSource("chemicals_used", record.SourceConfirmed)
	}
	if c.ExpectedYield != nil {
		rec.ExpectedYield = *c.ExpectedYield
		rec.MarkSource("expected_yield", record.SourceConfirmed)
	}
	if c.PriceExpectation != nil {
		rec.PriceExpectation = *c.PriceExpectation
		rec.MarkSource("price_expectation", record.SourceConfirmed)
	}

	sess.Record = rec
	sess.UpdatedAt = p.clock().UTC()
	if err := p.store.Put(ctx, sess); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	return sess, nil
}

// Abort terminates the session without committing.
func (p *Pipeline) Abort(ctx context.Context, id, reason string) (*session.Session, error) {
	mu := p.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	sess, err := p.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.State.Terminal() {
		return nil, fmt.Errorf("%w: abort from %s", ErrInvalidTransition, sess.State)
	}

	sess.FailureReason = reason
	p.setState(ctx, sess, session.StateAborted, reason)
	if err := p.store.Put(ctx, sess); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	p.logger.InfoContext(ctx, "session aborted", "session_id", id, "reason", reason)
	return sess, nil
}

// Commit uploads the evidentiary audio, attaches the returned identifier to
// the record, canonicalizes and hashes the final record, and anchors
// (farmer id, timestamp, hash, identifier) on the ledger.
//
// Withheld consent aborts the session. Collaborator failures leave the
// session in COMMIT_FAILED with a reason; re-invoking Commit retries from
// the last confirmed record state, reusing an already-uploaded blob
// identifier when one exists. No failure path ever fabricates an
// identifier, hash or receipt.
func (p *Pipeline) Commit(ctx context.Context, id string, audio []byte, consent bool) (*session.Session, error) {
	mu := p.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	sess, err := p.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.State != session.StateReadyForConfirmation && sess.State != session.StateCommitFailed {
		return nil, fmt.Errorf("%w: commit from %s", ErrInvalidTransition, sess.State)
	}

	if !consent {
		sess.FailureReason = "consent withheld"
		p.setState(ctx, sess, session.StateAborted, "consent withheld")
		if err := p.store.Put(ctx, sess); err != nil {
			return nil, fmt.Errorf("store session: %w", err)
		}
		p.logger.InfoContext(ctx, "consent withheld", "session_id", id)
		return sess, nil
	}

	p.setState(ctx, sess, session.StateCommitting, "")
	if err := p.store.Put(ctx, sess); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.commit",
		trace.WithAttributes(attribute.String("session.id", sess.ID)))
	defer span.End()

	start := p.clock()
	cctx, cancel := context.WithTimeout(ctx, p.commitTimeout)
	defer cancel()

	sess, err = p.commitLocked(cctx, sess, audio)
	if p.obs != nil && p.obs.CommitDuration != nil {
		p.obs.CommitDuration.Record(ctx, p.clock().Sub(start).Seconds())
	}
	if err != nil {
		span.RecordError(err)
		if p.obs != nil && p.obs.FailureCounter != nil {
			p.obs.FailureCounter.Add(ctx, 1)
		}
		return sess, err
	}
	if p.obs != nil && p.obs.CommitCounter != nil {
		p.obs.CommitCounter.Add(ctx, 1)
	}
	return sess, nil
}

func (p *Pipeline) commitLocked(ctx context.Context, sess *session.Session, audio []byte) (*session.Session, error) {
	// Blob upload first; a retry after a failed anchor reuses the CID.
	cid := sess.AudioCID
	if cid == "" {
		if len(audio) == 0 {
			return p.failCommit(ctx, sess, ErrMissingAudio, "no audio payload supplied")
		}
		uploaded, err := p.blobs.Put(ctx, audio, sess.ID+".webm")
		if err != nil {
			return p.failCommit(ctx, sess, ErrCommitFailed, fmt.Sprintf("blob upload: %v", err))
		}
		cid = uploaded
		sess.AudioCID = cid
	}

	// Hash after the identifier is attached, so the anchored hash covers
	// the blob reference.
	final := sess.Record.WithAudioCID(cid)
	canonical, err := canonicalize.Record(final)
	if err != nil {
		return p.fatal(ctx, sess, fmt.Errorf("%w: %v", ErrCanonicalization, err))
	}
	if err := p.validator.ValidateCanonical(canonical); err != nil {
		return p.fatal(ctx, sess, fmt.Errorf("%w: %v", ErrCanonicalization, err))
	}
	hash := canonicalize.Hash(canonical)

	ts, err := final.TimestampUnix()
	if err != nil {
		return p.fatal(ctx, sess, fmt.Errorf("%w: %v", ErrCanonicalization, err))
	}

	receipt, err := p.anchor.Commit(ctx, final.FarmerID, ts, hash, cid)
	if err != nil {
		return p.failCommit(ctx, sess, ErrCommitFailed, fmt.Sprintf("ledger commit: %v", err))
	}

	sess.Record = final
	sess.DataHash = hash
	sess.Receipt = receipt
	sess.FailureReason = ""
	p.setState(ctx, sess, session.StateCommitted, "")
	if err := p.store.Put(ctx, sess); err != nil {
		return sess, fmt.Errorf("store session: %w", err)
	}

	p.logger.InfoContext(ctx, "record committed",
		"session_id", sess.ID,
		"cid", cid,
		"data_hash", hash,
		"tx_ref", receipt.TxRef,
	)
	return sess, nil
}

// failCommit records a recoverable collaborator failure.
func (p *Pipeline) failCommit(ctx context.Context, sess *session.Session, sentinel error, reason string) (*session.Session, error) {
	sess.FailureReason = reason
	p.setState(ctx, sess, session.StateCommitFailed, reason)
	if err := p.store.Put(context.WithoutCancel(ctx), sess); err != nil {
		p.logger.ErrorContext(ctx, "failed to persist commit failure", "session_id", sess.ID, "error", err)
	}
	p.logger.WarnContext(ctx, "commit failed", "session_id", sess.ID, "reason", reason)
	return sess, fmt.Errorf("%w: %s", sentinel, reason)
}

// fatal records a programming error. The session cannot proceed.
func (p *Pipeline) fatal(ctx context.Context, sess *session.Session, err error) (*session.Session, error) {
	sess.FailureReason = err.Error()
	p.setState(ctx, sess, session.StateAborted, err.Error())
	if putErr := p.store.Put(context.WithoutCancel(ctx), sess); putErr != nil {
		p.logger.ErrorContext(ctx, "failed to persist abort", "session_id", sess.ID, "error", putErr)
	}
	p.logger.ErrorContext(ctx, "session fatally aborted", "session_id", sess.ID, "error", err)
	return sess, err
}
