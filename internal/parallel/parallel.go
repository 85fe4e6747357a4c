// Package parallel splits row-independent batch work across goroutines.
package parallel

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinChunkSize int  // Minimum rows per goroutine to avoid overhead.
}

// DefaultConfig returns sensible defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 256,
	}
}

// Sequential returns a config that never spawns goroutines.
func Sequential() Config {
	return Config{Enabled: false, NumWorkers: 1, MinChunkSize: 1}
}

// Chunks partitions [0, n) into contiguous [start, end) ranges under cfg.
//
// The partition depends only on n and cfg, never on scheduling.
func Chunks(n int, cfg Config) [][2]int {
	if n <= 0 {
		return nil
	}
	if !cfg.Enabled || cfg.NumWorkers <= 1 || n < 2*max(cfg.MinChunkSize, 1) {
		return [][2]int{{0, n}}
	}

	chunkSize := max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinChunkSize, 1)
	chunks := make([][2]int, 0, (n+chunkSize-1)/chunkSize)
	for start := 0; start < n; start += chunkSize {
		chunks = append(chunks, [2]int{start, min(start+chunkSize, n)})
	}
	return chunks
}

// ForRange executes f over the chunks of [0, n) and returns the error of the
// lowest-indexed failing chunk, or nil.
func ForRange(n int, f func(start, end int) error, cfg Config) error {
	chunks := Chunks(n, cfg)
	if len(chunks) == 1 {
		return f(chunks[0][0], chunks[0][1])
	}

	errs := make([]error, len(chunks))
	var g errgroup.Group
	g.SetLimit(max(cfg.NumWorkers, 1))
	for i, c := range chunks {
		g.Go(func() error {
			errs[i] = f(c[0], c[1])
			return nil
		})
	}
	_ = g.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
