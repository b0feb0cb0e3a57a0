// Package usecase implements the short-code lifecycle: code allocation with
// collision retry, lookup, deletion and the redirect path with click accounting.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/vadimbarashkov/tinylink/internal/entity"
)

// ErrGenerationExhausted is returned when no free short code was found within the retry budget.
var ErrGenerationExhausted = errors.New("maximum retries exceeded for generating short code")

const (
	defaultMaxRetries   = 5
	defaultQueryTimeout = 3 * time.Second
	defaultClickTimeout = 2 * time.Second
)

type linkRepository interface {
	ExistsByCode(ctx context.Context, code string) (bool, error)
	Insert(ctx context.Context, code, targetURL string) (*entity.Link, error)
	SelectAll(ctx context.Context) ([]entity.Link, error)
	SelectByCode(ctx context.Context, code string) (*entity.Link, error)
	DeleteByCode(ctx context.Context, code string) error
	IncrementClicks(ctx context.Context, code string) error
	Ping(ctx context.Context) error
}

type linkCache interface {
	GetTarget(ctx context.Context, code string) (string, error)
	SetTarget(ctx context.Context, code, targetURL string) error
	Evict(ctx context.Context, code string) error
}

type codeGenerator interface {
	Generate() string
}

type LinkUseCase struct {
	repo         linkRepository
	cache        linkCache
	gen          codeGenerator
	logger       *slog.Logger
	validate     *validator.Validate
	maxRetries   int
	queryTimeout time.Duration
	clickTimeout time.Duration
}

type Option func(*LinkUseCase)

// WithCache puts a target cache in front of the store on the redirect path.
func WithCache(cache linkCache) Option {
	return func(uc *LinkUseCase) {
		uc.cache = cache
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(uc *LinkUseCase) {
		uc.logger = logger
	}
}

func WithMaxRetries(n int) Option {
	return func(uc *LinkUseCase) {
		uc.maxRetries = n
	}
}

// WithQueryTimeout bounds every store call other than the click increment.
func WithQueryTimeout(d time.Duration) Option {
	return func(uc *LinkUseCase) {
		uc.queryTimeout = d
	}
}

// WithClickTimeout bounds the best-effort click increment.
func WithClickTimeout(d time.Duration) Option {
	return func(uc *LinkUseCase) {
		uc.clickTimeout = d
	}
}

func New(repo linkRepository, gen codeGenerator, opts ...Option) *LinkUseCase {
	uc := &LinkUseCase{
		repo:         repo,
		gen:          gen,
		logger:       slog.Default(),
		validate:     validator.New(),
		maxRetries:   defaultMaxRetries,
		queryTimeout: defaultQueryTimeout,
		clickTimeout: defaultClickTimeout,
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}

// CreateLink stores a new link for targetURL. When requestedCode is empty a code
// is generated, retrying on collisions; otherwise the requested code is used as is
// and an existing code yields entity.ErrCodeConflict.
func (uc *LinkUseCase) CreateLink(ctx context.Context, targetURL, requestedCode string) (*entity.Link, error) {
	const op = "usecase.LinkUseCase.CreateLink"

	if err := uc.validateTargetURL(targetURL); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if requestedCode != "" {
		if !entity.IsValidCode(requestedCode) {
			return nil, fmt.Errorf("%s: malformed code %q: %w", op, requestedCode, entity.ErrInvalidInput)
		}

		link, err := uc.insertLink(ctx, requestedCode, targetURL)
		if err != nil {
			if errors.Is(err, entity.ErrDuplicateKey) {
				return nil, fmt.Errorf("%s: %w", op, entity.ErrCodeConflict)
			}

			return nil, fmt.Errorf("%s: failed to create link: %w", op, err)
		}

		return link, nil
	}

	for i := 0; i < uc.maxRetries; i++ {
		code := uc.gen.Generate()
		if entity.IsReservedCode(code) {
			continue
		}

		link, err := uc.insertLink(ctx, code, targetURL)
		if err != nil {
			if errors.Is(err, entity.ErrDuplicateKey) {
				uc.logger.Debug("generated code collided", slog.String("op", op), slog.String("code", code))
				continue
			}

			return nil, fmt.Errorf("%s: failed to create link: %w", op, err)
		}

		return link, nil
	}

	uc.logger.Error("short code space exhausted",
		slog.String("op", op),
		slog.Int("attempts", uc.maxRetries),
	)

	return nil, fmt.Errorf("%s: %w", op, ErrGenerationExhausted)
}

// insertLink checks for an existing code before inserting. The check only saves
// a round trip on obvious collisions: the store's uniqueness constraint decides.
func (uc *LinkUseCase) insertLink(ctx context.Context, code, targetURL string) (*entity.Link, error) {
	exists, err := uc.existsByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, entity.ErrDuplicateKey
	}

	ctx, cancel := context.WithTimeout(ctx, uc.queryTimeout)
	defer cancel()

	return uc.repo.Insert(ctx, code, targetURL)
}

func (uc *LinkUseCase) existsByCode(ctx context.Context, code string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, uc.queryTimeout)
	defer cancel()

	return uc.repo.ExistsByCode(ctx, code)
}

func (uc *LinkUseCase) validateTargetURL(targetURL string) error {
	if err := uc.validate.Var(targetURL, "required,http_url"); err != nil {
		return fmt.Errorf("malformed target url: %w", entity.ErrInvalidInput)
	}

	u, err := url.Parse(targetURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("malformed target url: %w", entity.ErrInvalidInput)
	}

	return nil
}

// ListLinks returns every link, newest first.
func (uc *LinkUseCase) ListLinks(ctx context.Context) ([]entity.Link, error) {
	const op = "usecase.LinkUseCase.ListLinks"

	ctx, cancel := context.WithTimeout(ctx, uc.queryTimeout)
	defer cancel()

	links, err := uc.repo.SelectAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to list links: %w", op, err)
	}

	if links == nil {
		links = []entity.Link{}
	}

	return links, nil
}

func (uc *LinkUseCase) GetLink(ctx context.Context, code string) (*entity.Link, error) {
	const op = "usecase.LinkUseCase.GetLink"

	ctx, cancel := context.WithTimeout(ctx, uc.queryTimeout)
	defer cancel()

	link, err := uc.repo.SelectByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get link: %w", op, err)
	}

	return link, nil
}

// DeleteLink removes the link if present. Deleting an unknown code is not an error.
func (uc *LinkUseCase) DeleteLink(ctx context.Context, code string) error {
	const op = "usecase.LinkUseCase.DeleteLink"

	dbCtx, cancel := context.WithTimeout(ctx, uc.queryTimeout)
	defer cancel()

	if err := uc.repo.DeleteByCode(dbCtx, code); err != nil {
		return fmt.Errorf("%s: failed to delete link: %w", op, err)
	}

	uc.evict(ctx, op, code)

	return nil
}

// evict drops the cached target for code, detached from the caller's cancellation.
func (uc *LinkUseCase) evict(ctx context.Context, op, code string) {
	if uc.cache == nil {
		return
	}

	if err := uc.cache.Evict(context.WithoutCancel(ctx), code); err != nil {
		uc.logger.Warn("failed to evict cached target",
			slog.String("op", op),
			slog.String("code", code),
			slog.Any("err", err),
		)
	}
}

// ResolveLink returns the target URL for code and records a click. A failed click
// update is logged and does not fail the call. When the update finds the link gone,
// the cached target is evicted; if the target was served from the cache it is
// stale and entity.ErrLinkNotFound is returned instead.
func (uc *LinkUseCase) ResolveLink(ctx context.Context, code string) (string, error) {
	const op = "usecase.LinkUseCase.ResolveLink"

	targetURL, cached, err := uc.lookupTarget(ctx, code)
	if err != nil {
		return "", fmt.Errorf("%s: failed to resolve code: %w", op, err)
	}

	clickCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.clickTimeout)
	defer cancel()

	if err := uc.repo.IncrementClicks(clickCtx, code); err != nil {
		if errors.Is(err, entity.ErrLinkNotFound) {
			uc.evict(ctx, op, code)
			if cached {
				return "", fmt.Errorf("%s: cached target is stale: %w", op, err)
			}
		}

		uc.logger.Warn("failed to record click",
			slog.String("op", op),
			slog.String("code", code),
			slog.Any("err", err),
		)
	}

	return targetURL, nil
}

// lookupTarget reports whether the target came from the cache.
func (uc *LinkUseCase) lookupTarget(ctx context.Context, code string) (string, bool, error) {
	if uc.cache != nil {
		targetURL, err := uc.cache.GetTarget(ctx, code)
		if err == nil {
			return targetURL, true, nil
		}

		uc.logger.Debug("target cache miss", slog.String("code", code), slog.Any("err", err))
	}

	dbCtx, cancel := context.WithTimeout(ctx, uc.queryTimeout)
	defer cancel()

	link, err := uc.repo.SelectByCode(dbCtx, code)
	if err != nil {
		return "", false, err
	}

	if uc.cache != nil {
		if err := uc.cache.SetTarget(ctx, code, link.TargetURL); err != nil {
			uc.logger.Warn("failed to cache target", slog.String("code", code), slog.Any("err", err))
		}
	}

	return link.TargetURL, false, nil
}

// Ping reports whether the store answers a trivial query.
func (uc *LinkUseCase) Ping(ctx context.Context) error {
	const op = "usecase.LinkUseCase.Ping"

	ctx, cancel := context.WithTimeout(ctx, uc.queryTimeout)
	defer cancel()

	if err := uc.repo.Ping(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
