// Package audiocache prefetches the spoken-question audio referenced by a
// session's QA flow into local files, exactly once per key, in parallel.
package audiocache

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/mockmate/mockmate/internal/interview"
)

// Fetcher streams a remote audio resource. Implemented by the backend client.
type Fetcher interface {
	FetchAudio(ctx context.Context, remotePath string) (io.ReadCloser, error)
}

// Request pairs a cache key with the remote path it resolves to.
type Request struct {
	Key        string
	RemotePath string
}

// Cache is an append-only store of audio key -> local file path. A key, once
// loaded, is never re-fetched; concurrent loads of the same key collapse into
// one underlying fetch.
type Cache struct {
	fetcher Fetcher
	dir     string

	group singleflight.Group

	mu       sync.RWMutex
	loaded   map[string]string
	inflight map[string]struct{}
}

// New builds a cache writing fetched audio under dir.
func New(fetcher Fetcher, dir string) *Cache {
	if dir == "" {
		dir = filepath.Join("data", "audio-cache")
	}
	return &Cache{
		fetcher:  fetcher,
		dir:      dir,
		loaded:   make(map[string]string),
		inflight: make(map[string]struct{}),
	}
}

// LoadAll fetches every request whose key is neither loaded nor in flight,
// concurrently, and returns the key -> local path map for everything loaded
// so far. One key failing leaves the others untouched; the failing key simply
// stays unloaded.
func (c *Cache) LoadAll(ctx context.Context, reqs []Request) map[string]string {
	pending := make([]Request, 0, len(reqs))
	c.mu.Lock()
	for _, req := range reqs {
		if req.RemotePath == "" {
			continue
		}
		if _, ok := c.loaded[req.Key]; ok {
			continue
		}
		if _, ok := c.inflight[req.Key]; ok {
			continue
		}
		c.inflight[req.Key] = struct{}{}
		pending = append(pending, req)
	}
	c.mu.Unlock()

	var g errgroup.Group
	for _, req := range pending {
		req := req
		g.Go(func() error {
			path, err, _ := c.group.Do(req.Key, func() (any, error) {
				return c.fetch(ctx, req)
			})

			c.mu.Lock()
			delete(c.inflight, req.Key)
			if err == nil {
				c.loaded[req.Key] = path.(string)
			}
			c.mu.Unlock()

			if err != nil {
				log.Printf("audio cache: load %s: %v", req.Key, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return c.Snapshot()
}

// PrefetchSession loads every audio reference currently known to the session:
// each main question plus any follow-ups the backend has generated so far.
func (c *Cache) PrefetchSession(ctx context.Context, s *interview.Session) {
	if s == nil {
		return
	}
	reqs := make([]Request, 0, len(s.QAFlow))
	for q, entry := range s.QAFlow {
		reqs = append(reqs, Request{Key: interview.AudioKey(q, interview.MainQuestion), RemotePath: entry.AudioPath})
		for f, fu := range entry.FollowUps {
			reqs = append(reqs, Request{Key: interview.AudioKey(q, f), RemotePath: fu.AudioPath})
		}
	}
	c.LoadAll(ctx, reqs)
}

// PrefetchFollowUps loads the follow-up audio for one question, used after
// follow-up generation appends new entries mid-interview.
func (c *Cache) PrefetchFollowUps(ctx context.Context, s *interview.Session, question int) {
	entry := s.Entry(question)
	if entry == nil {
		return
	}
	reqs := make([]Request, 0, len(entry.FollowUps))
	for f, fu := range entry.FollowUps {
		reqs = append(reqs, Request{Key: interview.AudioKey(question, f), RemotePath: fu.AudioPath})
	}
	c.LoadAll(ctx, reqs)
}

// IsLoaded reports whether the key's audio has been fully fetched.
func (c *Cache) IsLoaded(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.loaded[key]
	return ok
}

// IsLoading reports whether a fetch for the key is currently in flight.
func (c *Cache) IsLoading(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.inflight[key]
	return ok
}

// QuestionFullyLoaded reports whether every audio reference the question
// currently carries (its own plus each follow-up's) is loaded. References
// that are absent, such as text-only questions, do not count against it.
func (c *Cache) QuestionFullyLoaded(s *interview.Session, question int) bool {
	entry := s.Entry(question)
	if entry == nil {
		return false
	}
	if entry.AudioPath != "" && !c.IsLoaded(interview.AudioKey(question, interview.MainQuestion)) {
		return false
	}
	for f, fu := range entry.FollowUps {
		if fu.AudioPath != "" && !c.IsLoaded(interview.AudioKey(question, f)) {
			return false
		}
	}
	return true
}

// Play returns the local path for a loaded key. Playback is best effort: an
// unloaded key logs and returns "" rather than blocking or failing.
func (c *Cache) Play(key string) string {
	c.mu.RLock()
	path, ok := c.loaded[key]
	c.mu.RUnlock()
	if !ok {
		log.Printf("audio cache: play %s: not loaded", key)
		return ""
	}
	return path
}

// Snapshot returns a copy of the loaded key -> path map.
func (c *Cache) Snapshot() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.loaded))
	for k, v := range c.loaded {
		out[k] = v
	}
	return out
}

func (c *Cache) fetch(ctx context.Context, req Request) (string, error) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", fmt.Errorf("create cache directory: %w", err)
	}

	body, err := c.fetcher.FetchAudio(ctx, req.RemotePath)
	if err != nil {
		return "", err
	}
	defer func() { _ = body.Close() }()

	path := filepath.Join(c.dir, req.Key+".audio")
	tmp := path + ".part"
	file, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("create cache file: %w", err)
	}

	if _, err := io.Copy(file, body); err != nil {
		_ = file.Close()
		_ = os.Remove(tmp)
		return "", fmt.Errorf("write cache file: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("close cache file: %w", err)
	}

	// Rename last so a key is only ever observable as fully written.
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("finalize cache file: %w", err)
	}
	return path, nil
}
