// Package pipeline turns one raw submission into its artifact pair by calling
// the external background-removal service and deriving the monochrome variant
// locally.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/disintegration/imaging"

	"photobot/internal/domain"
	"photobot/internal/infra"
)

// Transformer is the external background-removal service.
type Transformer interface {
	RemoveBackground(ctx context.Context, img []byte, tier domain.Tier) ([]byte, error)
}

const (
	defaultAttempts = 2
	defaultBackoff  = time.Second
)

// Pipeline executes the transformation with a bounded retry budget.
type Pipeline struct {
	transformer Transformer
	logger      infra.Logger

	attempts int
	backoff  time.Duration
	sleep    func(time.Duration)
}

// New constructs a pipeline with the production retry budget.
func New(transformer Transformer, logger infra.Logger) *Pipeline {
	return &Pipeline{
		transformer: transformer,
		logger:      logger,
		attempts:    defaultAttempts,
		backoff:     defaultBackoff,
		sleep:       time.Sleep,
	}
}

// Process produces the transparent cutout and its monochrome derivative. Both
// steps run inside the retry budget; exhausting it propagates the last failure
// and the caller must not create an image record.
func (p *Pipeline) Process(ctx context.Context, raw []byte, tier domain.Tier) (transparent, mono []byte, err error) {
	var lastErr error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		transparent, mono, lastErr = p.attempt(ctx, raw, tier)
		if lastErr == nil {
			return transparent, mono, nil
		}
		p.logger.Warn().Err(lastErr).Int("attempt", attempt).Str("tier", string(tier)).Msg("pipeline: transform attempt failed")
		if attempt < p.attempts {
			p.sleep(p.backoff)
		}
	}
	return nil, nil, fmt.Errorf("%w: %v", domain.ErrTransformFailure, lastErr)
}

func (p *Pipeline) attempt(ctx context.Context, raw []byte, tier domain.Tier) ([]byte, []byte, error) {
	transparent, err := p.transformer.RemoveBackground(ctx, raw, tier)
	if err != nil {
		return nil, nil, err
	}
	if len(transparent) == 0 {
		return nil, nil, errors.New("background removal returned empty data")
	}
	mono, err := Monochrome(transparent)
	if err != nil {
		return nil, nil, err
	}
	if len(mono) == 0 {
		return nil, nil, errors.New("monochrome conversion returned empty data")
	}
	return transparent, mono, nil
}

// Monochrome converts the image to grayscale, keeping the alpha channel so
// transparent cutouts stay transparent.
func Monochrome(data []byte) ([]byte, error) {
	src, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode for monochrome: %w", err)
	}
	gray := imaging.Grayscale(src)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, gray, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode monochrome: %w", err)
	}
	return buf.Bytes(), nil
}
