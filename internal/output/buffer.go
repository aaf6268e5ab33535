// Package output collects the lines a script prints. A buffer bound to a
// channel mirrors its lines into a shared cache in fixed-size chunks so that
// another client can poll them while the script is still running.
package output

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/deixis/scriptconsole/internal/cache"
)

// DefaultChunkSize is the number of lines stored per cache entry.
const DefaultChunkSize = 5

// Buffer is an append-only sequence of printed lines.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Errors: Append keeps the line locally even when mirroring it fails.
//   - Ownership: Lines returns a caller-owned copy.
type Buffer interface {
	Append(line string) error
	Clear() error
	Lines() []string
}

// Memory is an unbacked buffer used when a request names no channel.
type Memory struct {
	mu    sync.Mutex
	lines []string
}

// NewMemory returns an empty unbacked buffer.
func NewMemory() *Memory {
	return &Memory{}
}

func (b *Memory) Append(line string) error {
	b.mu.Lock()
	b.lines = append(b.lines, line)
	b.mu.Unlock()
	return nil
}

func (b *Memory) Clear() error {
	b.mu.Lock()
	b.lines = nil
	b.mu.Unlock()
	return nil
}

func (b *Memory) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.lines...)
}

// Chunked mirrors appended lines into a shared store under
// (channel, chunk index) keys. Only the last, incomplete chunk is ever
// rewritten; completed chunks are write-once.
type Chunked struct {
	ctx     context.Context
	store   cache.Store
	channel string
	size    int

	mu      sync.Mutex
	lines   []string
	written int // number of chunk keys this buffer has written
}

// NewChunked binds a buffer to channel. ctx bounds every store call the
// buffer makes; a size below 1 uses DefaultChunkSize.
func NewChunked(ctx context.Context, store cache.Store, channel string, size int) *Chunked {
	if size < 1 {
		size = DefaultChunkSize
	}
	return &Chunked{ctx: ctx, store: store, channel: channel, size: size}
}

// Channel returns the channel the buffer writes to.
func (b *Chunked) Channel() string {
	return b.channel
}

// Append adds line and rewrites the chunk it falls into.
func (b *Chunked) Append(line string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lines = append(b.lines, line)
	idx := (len(b.lines) - 1) / b.size
	start := idx * b.size
	chunk := append([]string(nil), b.lines[start:]...)
	if idx+1 > b.written {
		b.written = idx + 1
	}
	if err := cache.PutJSON(b.ctx, b.store, ChunkKey(b.channel, idx), chunk); err != nil {
		return fmt.Errorf("writing output chunk %d of %s: %w", idx, b.channel, err)
	}
	return nil
}

// Clear drops every line and removes all chunks of the channel from the
// store, including chunks left behind by an earlier writer.
func (b *Chunked) Clear() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lines = nil
	keys := make([]string, 0, b.written)
	for i := 0; i < b.written; i++ {
		keys = append(keys, ChunkKey(b.channel, i))
	}
	for i := b.written; ; i++ {
		_, err := b.store.Get(b.ctx, ChunkKey(b.channel, i))
		if errors.Is(err, cache.ErrNotFound) {
			break
		}
		if err != nil {
			return fmt.Errorf("probing output chunk %d of %s: %w", i, b.channel, err)
		}
		keys = append(keys, ChunkKey(b.channel, i))
	}
	b.written = 0
	if err := b.store.Remove(b.ctx, keys...); err != nil {
		return fmt.Errorf("clearing output of %s: %w", b.channel, err)
	}
	return nil
}

// Lines returns the lines appended since the last Clear, independent of
// what the store still holds.
func (b *Chunked) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.lines...)
}

// Snapshot returns what a poller currently sees for the channel.
func (b *Chunked) Snapshot() ([]string, error) {
	return Snapshot(b.ctx, b.store, b.channel, b.size)
}

// Snapshot reads chunks 0, 1, 2, ... of channel until the first missing
// index. An evicted chunk truncates the visible output at that point.
//
// A chunk holding fewer than size lines ends the read: it was still being
// filled when it was read, so any later chunk would leave a gap.
func Snapshot(ctx context.Context, store cache.Store, channel string, size int) ([]string, error) {
	if size < 1 {
		size = DefaultChunkSize
	}
	var lines []string
	for i := 0; ; i++ {
		var chunk []string
		err := cache.GetJSON(ctx, store, ChunkKey(channel, i), &chunk)
		if errors.Is(err, cache.ErrNotFound) {
			return lines, nil
		}
		if err != nil {
			return lines, err
		}
		lines = append(lines, chunk...)
		if len(chunk) < size {
			return lines, nil
		}
	}
}

// ChunkKey is the store key of chunk idx of channel.
func ChunkKey(channel string, idx int) string {
	return fmt.Sprintf("output:%s:%d", channel, idx)
}
