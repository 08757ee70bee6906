package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"contentscore/internal/core/extract"
	"contentscore/internal/core/result"
	"contentscore/internal/core/score"
	"contentscore/internal/logger"
)

var ErrCreditExhausted = score.ErrCreditExhausted

type Extractor interface {
	Extract(ctx context.Context, url string) (extract.Page, error)
}

type Scorer interface {
	Score(ctx context.Context, text, url string) (*score.Result, error)
}

// Ledger is the slice of usage.Ledger the processor writes to.
type Ledger interface {
	Record(inputUnits, outputUnits int)
	RecordError()
}

type Options struct {
	// ExhaustionMarkers are matched as case-sensitive substrings of scoring
	// error messages.
	ExhaustionMarkers []string
	// MaxParseFallbacks consecutive free-text fallbacks mark the record as
	// credit exhausted. Zero disables the check.
	MaxParseFallbacks int
	Now               func() time.Time
}

// Processor turns one URL into one result.Record. It is not safe for
// concurrent use: the parse fallback streak is per run.
type Processor struct {
	extractor Extractor
	scorer    Scorer
	ledger    Ledger
	opts      Options
	log       *logger.Logger

	fallbackStreak int
}

func New(extractor Extractor, scorer Scorer, ledger Ledger, opts Options) *Processor {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Processor{
		extractor: extractor,
		scorer:    scorer,
		ledger:    ledger,
		opts:      opts,
		log:       logger.New("ItemProcessor"),
	}
}

// IsExhaustion reports whether err signals that the scoring service will not
// accept further calls.
func IsExhaustion(err error, markers []string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCreditExhausted) {
		return true
	}
	return ContainsMarker(err.Error(), markers)
}

func ContainsMarker(msg string, markers []string) bool {
	for _, m := range markers {
		if m != "" && strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// Process never returns an error; every failure becomes a record.
func (p *Processor) Process(ctx context.Context, url string) (rec result.Record) {
	accounted := false
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Str("url", url).Interface("panic", r).Msg("recovered panic while processing")
			if !accounted {
				p.ledger.RecordError()
			}
			rec = result.Failed(url, "", result.StatusError, fmt.Sprintf("Processing error: %v", r), p.opts.Now())
		}
	}()

	page, err := p.extractor.Extract(ctx, url)
	if err == nil && strings.TrimSpace(page.Text) == "" {
		err = extract.ErrEmptyContent
	}
	if err != nil {
		p.log.Warn().Str("url", url).Err(err).Msg("extraction failed")
		p.ledger.RecordError()
		accounted = true
		return result.Failed(url, page.Title, result.StatusError, "Processing error: "+err.Error(), p.opts.Now())
	}

	text := strings.TrimSpace(page.Text)
	scored, err := p.scorer.Score(ctx, text, url)
	if err != nil || scored == nil {
		if err == nil {
			err = errors.New("scorer returned no result")
		}
		p.ledger.RecordError()
		accounted = true
		status := result.StatusError
		if IsExhaustion(err, p.opts.ExhaustionMarkers) {
			status = result.StatusCreditExhausted
			p.log.Warn().Str("url", url).Err(err).Msg("scoring service exhausted")
		} else {
			p.log.Warn().Str("url", url).Err(err).Msg("scoring failed")
		}
		rec = result.Failed(url, page.Title, status, "API Error: "+err.Error(), p.opts.Now())
		rec.ContentLength = len([]rune(text))
		rec.ContentPreview = result.Preview(text)
		return rec
	}

	if scored.Usage != nil {
		p.ledger.Record(scored.Usage.InputTokens, scored.Usage.OutputTokens)
	} else {
		p.ledger.Record(0, 0)
	}
	accounted = true

	if scored.Fallback {
		p.fallbackStreak++
	} else {
		p.fallbackStreak = 0
	}
	if p.opts.MaxParseFallbacks > 0 && p.fallbackStreak >= p.opts.MaxParseFallbacks {
		p.log.LogWarnf("%d consecutive unparsable scoring responses, treating as exhaustion", p.fallbackStreak)
		rec = result.Failed(url, page.Title, result.StatusCreditExhausted,
			fmt.Sprintf("Scoring responses unparsable %d times in a row: %s", p.fallbackStreak, scored.Reasoning), p.opts.Now())
		rec.ContentLength = len([]rune(text))
		rec.ContentPreview = result.Preview(text)
		return rec
	}

	return result.Record{
		URL:            url,
		Title:          page.Title,
		ContentPreview: result.Preview(text),
		ContentLength:  len([]rune(text)),
		Cw:             result.Clamp(scored.Cw),
		Sd:             result.Clamp(scored.Sd),
		Dv:             result.Clamp(scored.Dv),
		Status:         result.StatusSuccess,
		Reasoning:      scored.Reasoning,
		ProcessedAt:    p.opts.Now().UTC().Format(time.RFC3339Nano),
	}
}
