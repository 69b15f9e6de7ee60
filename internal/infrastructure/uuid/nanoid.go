package uuid

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid"
)

// DefaultAlphabet lowercase alphanumerics, safe in URLs and case-insensitive collations
const DefaultAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// Generator ID generator for progress and interaction records
type Generator interface {
	Generate() (string, error)
}

// NanoIDGenerator Generator implementation using NanoID
type NanoIDGenerator struct {
	Length   int
	Alphabet string
}

var _ Generator = &NanoIDGenerator{}

// NewNanoIDGenerator create a generator of length characters drawn from DefaultAlphabet
func NewNanoIDGenerator(length int) *NanoIDGenerator {
	if length < 1 {
		panic("length must be larger than 1")
	}
	return &NanoIDGenerator{Length: length, Alphabet: DefaultAlphabet}
}

// Generate generate ID
func (ns *NanoIDGenerator) Generate() (string, error) {
	id, err := gonanoid.Generate(ns.Alphabet, ns.Length)
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return id, nil
}
