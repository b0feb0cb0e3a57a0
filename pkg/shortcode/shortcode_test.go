package shortcode

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerator_Generate(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		g := New()

		code := g.Generate()

		assert.Len(t, code, DefaultLength)
		assert.Regexp(t, `^[A-Za-z0-9]+$`, code)
	})

	t.Run("custom length", func(t *testing.T) {
		g := New(WithLength(6))

		assert.Len(t, g.Generate(), 6)
		assert.Equal(t, 6, g.Length())
	})

	t.Run("hex alphabet", func(t *testing.T) {
		g := New(WithAlphabet("0123456789abcdef"))

		assert.Regexp(t, `^[0-9a-f]{8}$`, g.Generate())
	})

	t.Run("invalid alphabet panics", func(t *testing.T) {
		g := New(WithAlphabet(""))

		assert.Panics(t, func() { g.Generate() })
	})
}

func TestGenerator_Uniqueness(t *testing.T) {
	const n = 1000

	g := New()
	codes := make(map[string]struct{}, n)

	for i := 0; i < n; i++ {
		codes[g.Generate()] = struct{}{}
	}

	assert.Len(t, codes, n)
}

func TestGenerator_Concurrent(t *testing.T) {
	const workers = 16

	g := New()
	results := make(chan string, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- g.Generate()
		}()
	}
	wg.Wait()
	close(results)

	for code := range results {
		assert.Len(t, code, DefaultLength)
	}
}
