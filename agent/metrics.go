package agent

import "sync"

// TokenCounter tracks an approximate running total against a context
// budget, cheap enough to update every step without calling out to a real
// tokenizer. It backs the performance-metrics callback rather than exact
// provider-side accounting.
type TokenCounter struct {
	mu       sync.Mutex
	used     int
	capacity int
}

// NewTokenCounter creates a counter against capacity (0 disables the
// percentage calculation).
func NewTokenCounter(capacity int) *TokenCounter {
	return &TokenCounter{capacity: capacity}
}

// Reset zeroes the running total.
func (c *TokenCounter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.used = 0
}

// Add accumulates n tokens.
func (c *TokenCounter) Add(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.used += n
}

// AddText estimates and accumulates the token cost of text.
func (c *TokenCounter) AddText(text string) {
	c.Add(c.EstimateTextTokens(text))
}

// Used returns the running total.
func (c *TokenCounter) Used() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.used
}

// UsagePercent returns Used()/capacity as a percentage, or 0 if no
// capacity was configured.
func (c *TokenCounter) UsagePercent() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.capacity <= 0 {
		return 0
	}
	return float64(c.used) / float64(c.capacity) * 100
}

// EstimateTextTokens is a rough chars/4 heuristic, the common
// provider-agnostic approximation for English-like text.
func (c *TokenCounter) EstimateTextTokens(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}

// EstimateImageTokens approximates an inlined JPEG's token cost from its
// pixel dimensions, tiled the way most vision encoders bill (roughly one
// token unit per 512x512 tile, with a fixed base overhead per image).
func (c *TokenCounter) EstimateImageTokens(width, height int) int {
	if width <= 0 || height <= 0 {
		return 0
	}
	const tile = 512
	const perTile = 170
	const base = 85
	tilesX := (width + tile - 1) / tile
	tilesY := (height + tile - 1) / tile
	return base + tilesX*tilesY*perTile
}
