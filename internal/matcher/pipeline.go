package matcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/face-finder/internal/audit"
	"github.com/kozaktomas/face-finder/internal/constants"
	"github.com/kozaktomas/face-finder/internal/facematch"
	"github.com/kozaktomas/face-finder/internal/scoring"
	"github.com/kozaktomas/face-finder/internal/storage"
)

// Stage is a step of a single match request.
type Stage string

const (
	StageInit       Stage = "init"
	StageFetchQuery Stage = "fetch_query"
	StageScanCorpus Stage = "scan_corpus"
	StageRank       Stage = "rank"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

// ErrMissingImageURL is returned for a request without a query locator.
var ErrMissingImageURL = errors.New("missing image_url in the request")

// StageError is a fatal pipeline error. Only the init and fetch-query stages
// produce it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Request identifies the subject being searched for and the query image.
type Request struct {
	SubjectID string `json:"subject_id"`
	ImageURL  string `json:"image_url"`
}

// Result is the outcome of one request.
type Result struct {
	Matches      []Match
	TotalScanned int // candidates attempted, unaffected by top-K truncation
	Skipped      int // candidates that failed to fetch or score
	Stage        Stage
	Strategy     string
}

// AuditQueue accepts the best match of a request. Enqueue must not block.
type AuditQueue interface {
	Enqueue(rec audit.Record) bool
}

// Options tunes a Pipeline. Zero values fall back to defaults.
type Options struct {
	Workers      int
	FetchTimeout time.Duration
	Logger       *slog.Logger
	Audit        AuditQueue
}

// Pipeline matches query images against a corpus bucket.
type Pipeline struct {
	corpus       storage.Bucket
	query        storage.Fetcher
	scorer       *scoring.Scorer
	workers      int
	fetchTimeout time.Duration
	logger       *slog.Logger
	audit        AuditQueue
}

// NewPipeline creates a pipeline. query resolves request image locators;
// candidates are fetched from corpus.
func NewPipeline(corpus storage.Bucket, query storage.Fetcher, scorer *scoring.Scorer, opts Options) *Pipeline {
	p := &Pipeline{
		corpus:       corpus,
		query:        query,
		scorer:       scorer,
		workers:      opts.Workers,
		fetchTimeout: opts.FetchTimeout,
		logger:       opts.Logger,
		audit:        opts.Audit,
	}
	if p.workers <= 0 {
		p.workers = constants.DefaultWorkers
	}
	if p.fetchTimeout <= 0 {
		p.fetchTimeout = constants.DefaultFetchTimeoutSec * time.Second
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Strategy returns the name of the scoring strategy in use.
func (p *Pipeline) Strategy() string {
	return p.scorer.Strategy().Name
}

// Match runs one request through the pipeline. On a fatal error the returned
// Result has Stage StageFailed and the error is a *StageError. Candidate
// failures are logged and counted in Result.Skipped.
func (p *Pipeline) Match(ctx context.Context, req Request) (*Result, error) {
	strategy := p.scorer.Strategy()
	res := &Result{
		Matches:  []Match{},
		Stage:    StageInit,
		Strategy: strategy.Name,
	}
	fail := func(err error) (*Result, error) {
		stageErr := &StageError{Stage: res.Stage, Err: err}
		res.Stage = StageFailed
		return res, stageErr
	}

	if req.ImageURL == "" {
		return fail(ErrMissingImageURL)
	}
	objects, err := p.corpus.List(ctx)
	if err != nil {
		return fail(fmt.Errorf("list corpus: %w", err))
	}

	res.Stage = StageFetchQuery
	query, err := p.sampleQuery(ctx, req.ImageURL)
	if err != nil {
		return fail(err)
	}

	res.Stage = StageScanCorpus
	candidates, attempted, skipped := p.scan(ctx, req, query, objects)
	res.TotalScanned = attempted
	res.Skipped = skipped

	res.Stage = StageRank
	res.Matches = Rank(candidates, strategy.Threshold, strategy.TopK)

	res.Stage = StageDone
	p.logger.InfoContext(ctx, "match finished",
		"subject_id", req.SubjectID,
		"strategy", strategy.Name,
		"scanned", res.TotalScanned,
		"skipped", res.Skipped,
		"matches", len(res.Matches))

	p.recordBest(ctx, req, res)
	return res, nil
}

func (p *Pipeline) sampleQuery(ctx context.Context, locator string) (*scoring.Sample, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
	defer cancel()

	img, err := p.query.Fetch(fetchCtx, locator)
	if err != nil {
		return nil, fmt.Errorf("fetch query image: %w", err)
	}
	sample, err := p.scorer.Sample(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("describe query image: %w", err)
	}
	return sample, nil
}

// scan scores every object with a bounded pool. Workers never return errors,
// so one failing candidate cannot cancel its siblings. Results are slotted by
// corpus index to keep scan order for ranking.
func (p *Pipeline) scan(ctx context.Context, req Request, query *scoring.Sample, objects []storage.Object) ([]Match, int, int) {
	slots := make([]*Match, len(objects))
	var attempted, skipped atomic.Int64

	var g errgroup.Group
	g.SetLimit(p.workers)
	for i, obj := range objects {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			attempted.Add(1)
			m, err := p.scoreCandidate(ctx, req, query, obj)
			if err != nil {
				skipped.Add(1)
				p.logger.WarnContext(ctx, "skipping candidate", "candidate_id", obj.Name, "error", err)
				return nil
			}
			slots[i] = m
			return nil
		})
	}
	_ = g.Wait()

	candidates := make([]Match, 0, len(objects))
	for _, m := range slots {
		if m != nil {
			candidates = append(candidates, *m)
		}
	}
	return candidates, int(attempted.Load()), int(skipped.Load())
}

func (p *Pipeline) scoreCandidate(ctx context.Context, req Request, query *scoring.Sample, obj storage.Object) (m *Match, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while scoring: %v", r)
		}
	}()

	fetchCtx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
	defer cancel()

	img, err := p.corpus.Fetch(fetchCtx, obj.Name)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	candidate, err := p.scorer.Sample(ctx, img)
	if err != nil {
		return nil, err
	}

	scores := p.scorer.Score(query, candidate)
	confidence := p.scorer.Confidence(scores, scoring.Hints{
		Subject: req.SubjectID,
		Label:   facematch.PersonNameFromObject(obj.Name),
	})
	p.logger.DebugContext(ctx, "scored candidate", "candidate_id", obj.Name, "confidence", confidence)

	return &Match{
		CandidateID: obj.Name,
		Confidence:  confidence,
		ImageURL:    p.corpus.URL(obj.Name),
	}, nil
}

func (p *Pipeline) recordBest(ctx context.Context, req Request, res *Result) {
	if p.audit == nil || len(res.Matches) == 0 {
		return
	}
	best := res.Matches[0]
	rec := audit.NewRecord(req.SubjectID, req.ImageURL, best.CandidateID, best.ImageURL, best.Confidence, res.Strategy)
	if !p.audit.Enqueue(rec) {
		p.logger.WarnContext(ctx, "audit queue full, dropping match record", "record_id", rec.ID, "candidate_id", best.CandidateID)
	}
}
