package translate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Skip reasons recorded for keys that did not come back.
const (
	reasonNotReturned        = "Translation not returned by API"
	reasonNotReturnedInChunk = "Not returned by API in chunk %d"
	reasonChunkFailed        = "Chunk %d failed: %v"
)

// Request is one translation job for a single target language.
type Request struct {
	// Keys are the catalog keys to translate, in order.
	Keys []string
	// Sources maps a key to its source text. Keys without an entry use the
	// key itself, which is how string catalogs are keyed.
	Sources        map[string]string
	SourceLanguage string
	TargetLanguage string
	// AppContext is an optional description of the app used in prompts.
	AppContext string
}

func (r Request) source(key string) string {
	if s, ok := r.Sources[key]; ok {
		return s
	}
	return key
}

// Result holds the outcome of a job. Every requested key is in exactly one
// of the two maps.
type Result struct {
	// Translated maps keys to translated text.
	Translated map[string]string
	// Skipped maps keys to the reason they were not translated.
	Skipped map[string]string
}

// Translator runs translation jobs against a backend. It is safe for
// concurrent use.
type Translator struct {
	backend Backend
	opts    Options
	tracer  trace.Tracer
}

// New creates a Translator.
func New(backend Backend, opts Options) *Translator {
	return &Translator{
		backend: backend,
		opts:    opts,
		tracer:  otel.Tracer("github.com/minios-linux/xcloc/translate"),
	}
}

// chunkOutcome is the slot each dispatched chunk writes exactly once.
type chunkOutcome struct {
	res chunkResult
	// failed is set when the chunk terminated abnormally.
	failed error
}

// TranslateMany translates req.Keys into req.TargetLanguage. Backend
// failures never abort the job: keys that were not translated end up in
// Result.Skipped with a reason.
func (t *Translator) TranslateMany(ctx context.Context, req Request) Result {
	keys := dedupe(req.Keys)
	result := Result{
		Translated: make(map[string]string),
		Skipped:    make(map[string]string),
	}
	if len(keys) == 0 {
		return result
	}

	if t.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.opts.JobTimeout)
		defer cancel()
	}

	chunks := splitKeys(keys, t.opts.effectiveChunkSize())
	ctx, span := t.tracer.Start(ctx, "translate.job",
		trace.WithAttributes(
			attribute.String("lang", req.TargetLanguage),
			attribute.Int("keys", len(keys)),
			attribute.Int("chunks", len(chunks)),
		),
	)
	defer span.End()

	log := t.opts.Logger.With().Str("lang", req.TargetLanguage).Logger()
	log.Info().Int("keys", len(keys)).Int("chunks", len(chunks)).Msg("translating")

	if len(chunks) == 1 {
		out := t.safeRun(ctx, req, keys, 1, 0)
		if out.failed != nil {
			out.res.cause = out.failed
		}
		for _, key := range keys {
			if value, ok := out.res.translated[key]; ok {
				result.Translated[key] = value
				continue
			}
			result.Skipped[key] = skipReason(out.res, key, reasonNotReturned)
		}
		t.progress(req.TargetLanguage, 1, 1)
		t.finish(span, req.TargetLanguage, result)
		return result
	}

	outcomes := t.dispatch(ctx, req, chunks)

	for i, chunk := range chunks {
		n := i + 1
		out := outcomes[i]
		if out.failed != nil {
			log.Error().Err(out.failed).Int("chunk", n).Msg("chunk failed")
			for _, key := range chunk {
				result.Skipped[key] = fmt.Sprintf(reasonChunkFailed, n, out.failed)
			}
			continue
		}
		for _, key := range chunk {
			if value, ok := out.res.translated[key]; ok {
				result.Translated[key] = value
				continue
			}
			result.Skipped[key] = skipReason(out.res, key, fmt.Sprintf(reasonNotReturnedInChunk, n))
		}
	}

	t.finish(span, req.TargetLanguage, result)
	return result
}

// dispatch runs chunks concurrently, at most MaxConcurrent at a time. Each
// dispatch slot sleeps RateLimitDelay before its backend call.
func (t *Translator) dispatch(ctx context.Context, req Request, chunks [][]string) []chunkOutcome {
	outcomes := make([]chunkOutcome, len(chunks))
	delay := t.opts.effectiveDelay()

	var (
		mu   sync.Mutex
		done int
	)
	var g errgroup.Group
	g.SetLimit(t.opts.effectiveMaxConcurrent())

	for i, chunk := range chunks {
		g.Go(func() error {
			outcomes[i] = t.safeRun(ctx, req, chunk, i+1, delay)
			mu.Lock()
			done++
			t.progress(req.TargetLanguage, done, len(chunks))
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// safeRun paces, then translates one chunk. A panic or a context cancelled
// before the backend call marks the chunk as failed.
func (t *Translator) safeRun(ctx context.Context, req Request, batch []string, n int, delay time.Duration) (out chunkOutcome) {
	defer func() {
		if r := recover(); r != nil {
			out = chunkOutcome{failed: fmt.Errorf("panic: %v", r)}
		}
	}()
	if err := sleepCtx(ctx, delay); err != nil {
		return chunkOutcome{failed: err}
	}
	return chunkOutcome{res: t.runChunk(ctx, req, batch, n)}
}

func (t *Translator) runChunk(ctx context.Context, req Request, batch []string, n int) chunkResult {
	ctx, span := t.tracer.Start(ctx, "translate.chunk",
		trace.WithAttributes(
			attribute.Int("chunk.number", n),
			attribute.Int("chunk.keys", len(batch)),
		),
	)
	defer span.End()

	res := t.translateChunk(ctx, req, batch)
	span.SetAttributes(attribute.Int("chunk.translated", len(res.translated)))
	if res.cause != nil {
		span.RecordError(res.cause)
	}
	return res
}

func (t *Translator) progress(lang string, done, total int) {
	if t.opts.OnProgress != nil {
		t.opts.OnProgress(lang, done, total)
	}
}

func (t *Translator) finish(span trace.Span, lang string, result Result) {
	span.SetAttributes(
		attribute.Int("translated", len(result.Translated)),
		attribute.Int("skipped", len(result.Skipped)),
	)
	if len(result.Translated) == 0 && len(result.Skipped) > 0 {
		span.SetStatus(codes.Error, "nothing translated")
	}
	t.opts.Logger.Info().Str("lang", lang).Int("translated", len(result.Translated)).
		Int("skipped", len(result.Skipped)).Msg("translation finished")
}

func skipReason(res chunkResult, key, fallback string) string {
	if reason, ok := res.rejected[key]; ok {
		return reason
	}
	if res.cause != nil {
		return fmt.Sprintf("%s (%v)", fallback, res.cause)
	}
	return fallback
}

// splitKeys divides keys into contiguous chunks of the given size.
func splitKeys(keys []string, chunkSize int) [][]string {
	if chunkSize <= 0 || chunkSize >= len(keys) {
		return [][]string{keys}
	}
	var chunks [][]string
	for i := 0; i < len(keys); i += chunkSize {
		end := i + chunkSize
		if end > len(keys) {
			end = len(keys)
		}
		chunks = append(chunks, keys[i:end])
	}
	return chunks
}

func dedupe(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, key)
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
