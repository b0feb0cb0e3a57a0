// Package memory provides an in-process link store with the same semantics as
// the postgres repository. It backs tests and local runs without a database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vadimbarashkov/tinylink/internal/entity"
)

type LinkRepository struct {
	mu    sync.RWMutex
	links map[string]entity.Link
	now   func() time.Time
}

func NewLinkRepository() *LinkRepository {
	return &LinkRepository{
		links: make(map[string]entity.Link),
		now:   time.Now,
	}
}

func checkContext(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w: %w", op, entity.ErrUnavailable, err)
	}
	return nil
}

func (r *LinkRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	const op = "adapter.repository.memory.LinkRepository.ExistsByCode"

	if err := checkContext(ctx, op); err != nil {
		return false, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.links[code]
	return ok, nil
}

func (r *LinkRepository) Insert(ctx context.Context, code, targetURL string) (*entity.Link, error) {
	const op = "adapter.repository.memory.LinkRepository.Insert"

	if err := checkContext(ctx, op); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.links[code]; ok {
		return nil, fmt.Errorf("%s: %w", op, entity.ErrDuplicateKey)
	}

	link := entity.Link{
		Code:      code,
		TargetURL: targetURL,
		CreatedAt: r.now().UTC(),
	}
	r.links[code] = link

	return &link, nil
}

func (r *LinkRepository) SelectAll(ctx context.Context) ([]entity.Link, error) {
	const op = "adapter.repository.memory.LinkRepository.SelectAll"

	if err := checkContext(ctx, op); err != nil {
		return nil, err
	}

	r.mu.RLock()
	links := make([]entity.Link, 0, len(r.links))
	for _, link := range r.links {
		links = append(links, copyLink(link))
	}
	r.mu.RUnlock()

	sort.Slice(links, func(i, j int) bool {
		if links[i].CreatedAt.Equal(links[j].CreatedAt) {
			return links[i].Code < links[j].Code
		}
		return links[i].CreatedAt.After(links[j].CreatedAt)
	})

	return links, nil
}

func (r *LinkRepository) SelectByCode(ctx context.Context, code string) (*entity.Link, error) {
	const op = "adapter.repository.memory.LinkRepository.SelectByCode"

	if err := checkContext(ctx, op); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	link, ok := r.links[code]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, entity.ErrLinkNotFound)
	}

	link = copyLink(link)
	return &link, nil
}

func (r *LinkRepository) DeleteByCode(ctx context.Context, code string) error {
	const op = "adapter.repository.memory.LinkRepository.DeleteByCode"

	if err := checkContext(ctx, op); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.links, code)
	r.mu.Unlock()

	return nil
}

func (r *LinkRepository) IncrementClicks(ctx context.Context, code string) error {
	const op = "adapter.repository.memory.LinkRepository.IncrementClicks"

	if err := checkContext(ctx, op); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	link, ok := r.links[code]
	if !ok {
		return fmt.Errorf("%s: %w", op, entity.ErrLinkNotFound)
	}

	now := r.now().UTC()
	link.TotalClicks++
	link.LastClicked = &now
	r.links[code] = link

	return nil
}

func (r *LinkRepository) Ping(ctx context.Context) error {
	return checkContext(ctx, "adapter.repository.memory.LinkRepository.Ping")
}

func copyLink(link entity.Link) entity.Link {
	if link.LastClicked != nil {
		t := *link.LastClicked
		link.LastClicked = &t
	}
	return link
}
