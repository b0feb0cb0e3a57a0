// Package shortcode generates random fixed-length short codes.
package shortcode

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	DefaultLength   = 8
	DefaultAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
)

// Generator produces codes drawn uniformly from its alphabet.
// It holds no mutable state and is safe for concurrent use.
type Generator struct {
	alphabet string
	length   int
}

type Option func(*Generator)

func WithLength(n int) Option {
	return func(g *Generator) {
		g.length = n
	}
}

func WithAlphabet(alphabet string) Option {
	return func(g *Generator) {
		g.alphabet = alphabet
	}
}

func New(opts ...Option) *Generator {
	g := &Generator{
		alphabet: DefaultAlphabet,
		length:   DefaultLength,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Generate returns a new random code. It panics if the system entropy
// source fails, which the process cannot recover from.
func (g *Generator) Generate() string {
	return gonanoid.MustGenerate(g.alphabet, g.length)
}

// Length returns the length of generated codes.
func (g *Generator) Length() int {
	return g.length
}
