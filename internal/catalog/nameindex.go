package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/zahid0/audio-app/internal/storage"
	"github.com/zahid0/audio-app/internal/telemetry"
)

// NameIndex maps file names to backend ids. It is derived from an unscoped
// ListFiles and never patched: a lookup miss rebuilds it in full and retries
// once. Readers always see a complete snapshot; rebuilds swap in a new map.
type NameIndex struct {
	gw    storage.Gateway
	snap  atomic.Pointer[map[string]string]
	group singleflight.Group

	// started counts rebuilds whose listing has begun.
	started atomic.Uint64
}

// NewNameIndex returns an empty index over gw. The first lookup builds it.
func NewNameIndex(gw storage.Gateway) *NameIndex {
	return &NameIndex{gw: gw}
}

// Len is the number of names in the current snapshot.
func (x *NameIndex) Len() int {
	if m := x.snap.Load(); m != nil {
		return len(*m)
	}
	return 0
}

func (x *NameIndex) get(name string) (string, bool) {
	m := x.snap.Load()
	if m == nil {
		return "", false
	}
	id, ok := (*m)[name]
	return id, ok
}

// Lookup resolves name to a file id, rebuilding the index on a miss. The rebuild
// that settles a miss always lists the backend after the miss was seen: joining
// a rebuild that was already listing is not enough, so such a caller waits for it
// and then starts one more. A miss after that is storage.ErrNotFound.
func (x *NameIndex) Lookup(ctx context.Context, name string) (string, error) {
	if id, ok := x.get(name); ok {
		return id, nil
	}
	missedAt := x.started.Load()
	gen, err := x.rebuildGen(ctx)
	if err != nil {
		return "", err
	}
	if id, ok := x.get(name); ok {
		return id, nil
	}
	if gen <= missedAt {
		if _, err := x.rebuildGen(ctx); err != nil {
			return "", err
		}
		if id, ok := x.get(name); ok {
			return id, nil
		}
	}
	return "", storage.NewError(x.gw.Name(), "name_index", name, storage.ErrNotFound,
		fmt.Errorf("no file named %q", name))
}

// Rebuild lists every file and swaps in a fresh index. Concurrent callers share
// one listing; the listing is detached from any single caller's cancellation so
// one caller giving up does not fail the others.
func (x *NameIndex) Rebuild(ctx context.Context) error {
	_, err := x.rebuildGen(ctx)
	return err
}

// rebuildGen is Rebuild reporting the generation of the listing it waited on.
func (x *NameIndex) rebuildGen(ctx context.Context) (uint64, error) {
	ch := x.group.DoChan("rebuild", func() (any, error) {
		gen := x.started.Add(1)
		return gen, x.rebuild(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case res := <-ch:
		gen, _ := res.Val.(uint64)
		return gen, res.Err
	}
}

func (x *NameIndex) rebuild(ctx context.Context) error {
	start := time.Now()
	files, err := x.gw.ListFiles(ctx, "")
	if err != nil {
		slog.Warn("name index rebuild failed", "backend", x.gw.Name(), "error", err)
		return err
	}

	// Duplicate names: the entry listed last wins.
	m := make(map[string]string, len(files))
	for _, f := range files {
		m[f.Name] = f.ID
	}
	x.snap.Store(&m)

	telemetry.NameIndexRebuildsTotal.Inc()
	telemetry.NameIndexEntries.Set(float64(len(m)))
	slog.Info("name index rebuilt", "backend", x.gw.Name(), "names", len(m), "duration", time.Since(start))
	return nil
}
