package generation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"flash-study/internal/logger"
	"flash-study/internal/models"
)

// Orchestrator is the single entry point for flashcard generation. It checks
// the cache, runs every enabled provider concurrently under its own timeout,
// and falls back to the heuristic generator. It never fails.
type Orchestrator struct {
	cache     Cache
	providers []Provider
	log       *logger.Logger
}

// NewOrchestrator wires providers in launch order; when several succeed the
// earliest in this list wins regardless of which finished first.
func NewOrchestrator(cache Cache, log *logger.Logger, providers ...Provider) *Orchestrator {
	if cache == nil {
		cache = NewMemoryCache(DefaultCacheTTL)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Orchestrator{
		cache:     cache,
		providers: providers,
		log:       log.With("component", "Orchestrator"),
	}
}

// EnabledProviders lists the names of providers that will be raced.
func (o *Orchestrator) EnabledProviders() []string {
	var names []string
	for _, p := range o.providers {
		if p != nil && p.Enabled() {
			names = append(names, p.Name())
		}
	}
	return names
}

// Generate returns at least one flashcard for any input.
func (o *Orchestrator) Generate(ctx context.Context, text string) (cards []models.Flashcard) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("generation panicked, using local fallback", "panic", r)
			cards = Heuristic(text)
			if ctx.Err() == nil {
				o.safePut(ctx, text, cards)
			}
		}
	}()

	if strings.TrimSpace(text) == "" {
		return Heuristic(text)
	}

	if cached, ok := o.cache.Get(ctx, text); ok && len(cached) > 0 {
		o.log.Debug("cache hit", "chars", len(text))
		return cached
	}

	var enabled []Provider
	for _, p := range o.providers {
		if p != nil && p.Enabled() {
			enabled = append(enabled, p)
		}
	}
	if len(enabled) == 0 {
		o.log.Debug("no providers configured, using local generation")
		return o.fallback(ctx, text)
	}

	results := make([][]models.Flashcard, len(enabled))
	var g errgroup.Group
	for i, p := range enabled {
		g.Go(func() error {
			started := time.Now()
			got, err := o.runProvider(ctx, p, text)
			if err != nil {
				o.log.Warn("provider failed", "provider", p.Name(), "elapsed", time.Since(started), "error", err)
				return nil
			}
			results[i] = got
			return nil
		})
	}
	_ = g.Wait()

	for i, got := range results {
		if len(got) == 0 {
			continue
		}
		o.log.Info("provider won", "provider", enabled[i].Name(), "cards", len(got))
		o.cache.Put(ctx, text, got)
		return got
	}

	if ctx.Err() != nil {
		// The caller gave up, so the failures say nothing about the providers.
		o.log.Debug("caller cancelled, local cards not cached", "error", ctx.Err())
		return Heuristic(text)
	}
	o.log.Info("all providers failed, using local generation", "providers", len(enabled))
	return o.fallback(ctx, text)
}

func (o *Orchestrator) fallback(ctx context.Context, text string) []models.Flashcard {
	cards := Heuristic(text)
	o.cache.Put(ctx, text, cards)
	return cards
}

func (o *Orchestrator) safePut(ctx context.Context, text string, cards []models.Flashcard) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("cache write panicked", "panic", r)
		}
	}()
	o.cache.Put(ctx, text, cards)
}

// runProvider bounds a provider by its own timeout. The provider runs on a
// separate goroutine so a call that ignores ctx cannot hold the join past the
// deadline, and a panic inside it becomes an ordinary failure.
func (o *Orchestrator) runProvider(ctx context.Context, p Provider, text string) ([]models.Flashcard, error) {
	pctx, cancel := context.WithTimeout(ctx, p.Timeout())
	defer cancel()

	type outcome struct {
		cards []models.Flashcard
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("provider panic: %v", r)}
			}
		}()
		cards, err := p.Generate(pctx, text)
		done <- outcome{cards: cards, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return nil, out.err
		}
		cards := normalizeCards(out.cards)
		if len(cards) == 0 {
			return nil, fmt.Errorf("%w: empty result", ErrInsufficientYield)
		}
		return cards, nil
	case <-pctx.Done():
		return nil, fmt.Errorf("%s timed out: %w", p.Name(), pctx.Err())
	}
}
