// Package dedupe implements the cache's single-flight read path: concurrent
// callers asking for the same key while a fill is in flight join the one
// call already running instead of each starting their own, per spec.md
// §4.3.
//
// It wraps golang.org/x/sync/singleflight, the same join-in-flight-calls
// primitive the teacher's own go.mod already pulls in, generalized to a
// typed result instead of singleflight's native any.
package dedupe

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// Group deduplicates concurrent fills of the same key, joining any caller
// that requests a key while another caller's fill for that key is already
// running.
type Group[V any] struct {
	g singleflight.Group
}

// New creates an empty Group.
func New[V any]() *Group[V] {
	return &Group[V]{}
}

// Do runs fn for key if no fill for key is already in flight, or joins the
// in-flight call otherwise. Every caller sharing a call receives the same
// value, error, and shared flag. shared reports whether the result was
// shared with at least one other caller (matching singleflight's own
// contract).
func (g *Group[V]) Do(key string, fn func() (V, error)) (value V, err error, shared bool) {
	v, err, shared := g.g.Do(key, func() (any, error) {
		return fn()
	})
	if v == nil {
		var zero V
		return zero, err, shared
	}
	return v.(V), err, shared
}

// DoContext behaves like Do, except a caller whose ctx is cancelled stops
// waiting immediately rather than blocking until the shared call
// completes. The underlying fn is not cancelled by this: if this caller
// was the one that started it, it runs to completion and populates
// whatever the caller intended (e.g. memory) regardless, per spec.md §5's
// cancellation rule.
func (g *Group[V]) DoContext(ctx context.Context, key string, fn func() (V, error)) (value V, err error, shared bool) {
	ch := g.g.DoChan(key, func() (any, error) {
		return fn()
	})
	select {
	case res := <-ch:
		if res.Val == nil {
			var zero V
			return zero, res.Err, res.Shared
		}
		return res.Val.(V), res.Err, res.Shared
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err(), false
	}
}

// Forget tells the Group to forget about key, so the next Do call for key
// starts a fresh fill rather than potentially joining a stale one still
// winding down.
func (g *Group[V]) Forget(key string) {
	g.g.Forget(key)
}
