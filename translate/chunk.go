package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/minios-linux/xcloc/placeholder"
)

var markdownCodeBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// errNoObject is returned when a response holds no JSON object.
var errNoObject = errors.New("response contains no JSON object")

// chunkResult is what translateChunk produced for one batch.
type chunkResult struct {
	translated map[string]string
	// rejected maps keys dropped by the strict placeholder policy to the
	// reason.
	rejected map[string]string
	// cause is why the primary request produced nothing, if it did.
	cause error
}

// translateChunk runs one primary request for batch and at most one retry
// for a small residual of missing keys. It never fails: backend and parse
// errors leave keys untranslated and are reported through cause.
func (t *Translator) translateChunk(ctx context.Context, req Request, batch []string) chunkResult {
	res := chunkResult{translated: make(map[string]string), rejected: make(map[string]string)}
	if len(batch) == 0 {
		return res
	}
	log := t.opts.Logger.With().Str("lang", req.TargetLanguage).Int("keys", len(batch)).Logger()

	user, err := userPrompt(req, batch)
	if err != nil {
		res.cause = fmt.Errorf("encoding batch: %w", err)
		return res
	}
	text, err := t.complete(ctx, Completion{
		System:      systemPrompt(req, len(batch)),
		User:        user,
		Temperature: t.opts.effectiveTemperature(),
	})
	if err != nil {
		log.Warn().Err(err).Msg("translation request failed")
		res.cause = err
		return res
	}

	inBatch := make(map[string]bool, len(batch))
	for _, key := range batch {
		inBatch[key] = true
	}

	values, err := parseResponse(text)
	if err != nil {
		log.Warn().Err(err).Str("response", truncate(text, 300)).Msg("unparsable translation response")
		res.cause = err
	}
	t.accept(req, values, inBatch, res, false)

	missing := missingKeys(batch, res.translated)
	if len(missing) == 0 || len(missing) > t.opts.effectiveRetryThreshold() {
		if len(missing) > 0 {
			log.Warn().Int("missing", len(missing)).Msg("keys not returned, too many to retry")
		}
		return res
	}

	log.Debug().Int("missing", len(missing)).Strs("sample", sample(missing, 5)).Msg("retrying missing keys")
	retryUser, err := retryUserPrompt(req, missing)
	if err != nil {
		return res
	}
	retryText, err := t.complete(ctx, Completion{
		System:      retrySystemPrompt(req),
		User:        retryUser,
		Temperature: retryTemperature,
	})
	if err != nil {
		log.Warn().Err(err).Msg("retry request failed")
		return res
	}
	retryValues, err := parseResponse(retryText)
	if err != nil {
		log.Warn().Err(err).Msg("retry response unparsable")
		return res
	}
	pending := make(map[string]bool, len(missing))
	for _, key := range missing {
		pending[key] = true
	}
	t.accept(req, retryValues, pending, res, true)

	if still := missingKeys(batch, res.translated); len(still) > 0 {
		log.Warn().Int("missing", len(still)).Strs("sample", sample(still, 5)).Msg("keys still not translated after retry")
	}
	return res
}

// accept copies values for allowed keys into res, applying the placeholder
// policy. Keys outside allowed are ignored.
func (t *Translator) accept(req Request, values map[string]string, allowed map[string]bool, res chunkResult, retry bool) {
	for key, value := range values {
		if !allowed[key] {
			t.opts.Logger.Debug().Str("key", key).Msg("unexpected key in response")
			continue
		}
		if drift, ok := placeholder.Check(req.source(key), value); !ok {
			if t.opts.strict() {
				res.rejected[key] = "placeholder mismatch: " + drift.String()
				continue
			}
			t.opts.Logger.Warn().Str("key", key).Str("lang", req.TargetLanguage).
				Strs("expected", drift.Source).Strs("got", drift.Translated).
				Msg("placeholders modified")
		}
		res.translated[key] = value
		delete(res.rejected, key)
		if retry {
			t.opts.Logger.Debug().Str("key", key).Msg("retried key translated")
		}
	}
}

// complete calls the backend under the per-request timeout.
func (t *Translator) complete(ctx context.Context, c Completion) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.opts.effectiveTimeout())
	defer cancel()
	return t.backend.Complete(ctx, c)
}

// parseResponse extracts a JSON object of string values from a reply.
// Markdown fences and text around the outermost braces are tolerated;
// non-string values are dropped.
func parseResponse(content string) (map[string]string, error) {
	content = strings.TrimSpace(content)
	if m := markdownCodeBlock.FindStringSubmatch(content); len(m) > 1 {
		content = m[1]
	}
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, errNoObject
	}
	content = content[start : end+1]

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse translation response as JSON object: %w", err)
	}
	values := make(map[string]string, len(raw))
	for key, v := range raw {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			continue
		}
		values[key] = s
	}
	return values, nil
}

func missingKeys(batch []string, translated map[string]string) []string {
	var missing []string
	for _, key := range batch {
		if _, ok := translated[key]; !ok {
			missing = append(missing, key)
		}
	}
	return missing
}

func sample(keys []string, n int) []string {
	if len(keys) <= n {
		return keys
	}
	return keys[:n]
}

// truncate shortens s to at most maxLen runes.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
