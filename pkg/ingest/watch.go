package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/papercomputeco/recall/pkg/record"
	"github.com/papercomputeco/recall/pkg/store"
)

// Watcher re-ingests patterns as their files change.
type Watcher struct {
	done chan struct{}
	err  error
}

// Wait blocks until the watcher stops and returns why. A cancelled context
// is a clean stop and yields nil.
func (w *Watcher) Wait() error {
	<-w.done
	return w.err
}

// Watch starts watching a project's memories directory. The watch is
// registered before Watch returns; it stops when ctx is done.
func (i *Ingestor) Watch(ctx context.Context, project string) (*Watcher, error) {
	if err := i.store.EnsureProject(project); err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating memories watcher: %w", err)
	}
	dir := record.KindDir(i.store.Root(), project, record.KindPattern)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}

	pool, err := NewPool(ctx, &i.pool, func(ctx context.Context, job Job) {
		_ = i.embed(ctx, job)
	})
	if err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{done: make(chan struct{})}
	go func() {
		defer close(w.done)
		defer pool.Close()
		defer fw.Close()
		w.err = i.watch(ctx, project, fw, pool)
	}()

	i.logger.Info("watching memories", "project", project, "dir", dir)
	return w, nil
}

func (i *Ingestor) watch(ctx context.Context, project string, fw *fsnotify.Watcher, pool *Pool) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(event.Name)
			if !record.IsRecordFile(record.KindPattern, name) {
				continue
			}
			id := record.IDFromFile(record.KindPattern, name)

			switch {
			case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
				i.changed(ctx, project, id, pool)
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				if err := i.driver.Delete(ctx, []string{record.PatternKey(project, id)}); err != nil {
					i.logger.Warn("failed to delete embedding", "pattern_id", id, "error", err)
				}
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("memories watcher error: %w", err)
		}
	}
}

func (i *Ingestor) changed(ctx context.Context, project, id string, pool *Pool) {
	p, err := i.store.GetPattern(project, id)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			i.logger.Warn("skipping changed pattern", "pattern_id", id, "error", err)
		}
		return
	}

	existing, err := i.existingHashes(ctx, []*record.Pattern{p})
	if err != nil {
		i.logger.Warn("reading existing document", "pattern_id", id, "error", err)
		return
	}
	hash := ContentHash(p)
	if existing[p.Key()] == hash {
		return
	}
	pool.Enqueue(Job{Pattern: p, Hash: hash})
}
