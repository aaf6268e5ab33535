// Package report publishes run outcomes for other connections and turns
// failures into the structured error payload returned to callers.
package report

import (
	"context"
	"errors"
	"fmt"

	"github.com/deixis/scriptconsole/internal/cache"
	"github.com/deixis/scriptconsole/internal/console"
)

// Entry is the value a channel holds: the last published result or a
// failure placeholder.
type Entry struct {
	Result *console.Result `json:"result"`
	Failed bool            `json:"failed,omitempty"`
}

// Channels maps caller-chosen channel ids to their last outcome. Entries
// are overwritten by later publishes and left to the store's eviction
// policy; reading one does not consume it.
type Channels struct {
	store cache.Store
}

// NewChannels returns Channels backed by store.
func NewChannels(store cache.Store) *Channels {
	return &Channels{store: store}
}

// ResultKey is the store key of channel's entry.
func ResultKey(channel string) string {
	return "result:" + channel
}

// Publish stores a copy of res, without transport-only fields.
func (c *Channels) Publish(ctx context.Context, channel string, res *console.Result) error {
	return c.put(ctx, channel, Entry{Result: res.Base()})
}

// PublishFailure stores the failure placeholder: an empty result marked
// as failed.
func (c *Channels) PublishFailure(ctx context.Context, channel string) error {
	return c.put(ctx, channel, Entry{Result: &console.Result{}, Failed: true})
}

func (c *Channels) put(ctx context.Context, channel string, e Entry) error {
	if err := cache.PutJSON(ctx, c.store, ResultKey(channel), e); err != nil {
		return fmt.Errorf("publishing result of %s: %w", channel, err)
	}
	return nil
}

// Take returns channel's entry without blocking. ok is false when nothing
// was published yet or the entry was evicted.
func (c *Channels) Take(ctx context.Context, channel string) (e Entry, ok bool, err error) {
	err = cache.GetJSON(ctx, c.store, ResultKey(channel), &e)
	if errors.Is(err, cache.ErrNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("reading result of %s: %w", channel, err)
	}
	return e, true, nil
}
