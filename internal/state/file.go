package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"annobot/pkg/logx"
)

// fileStore is the default, dependency-free persistence backend.
//
// Files:
//   - <prefix>.chats.json   (subscriber registry, ordered array)
//   - <prefix>.storage.json (watermark document)
//
// Every save rewrites the whole document via a temp file + rename, so a
// crash between mutation and persistence loses at most that one mutation and
// never corrupts the file.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	subsPath string
	wmPath   string
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	prefix := strings.TrimSpace(cfg.Path)
	if prefix == "" {
		return nil, errors.New("state.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(prefix), 0o755); err != nil {
		return nil, err
	}
	return &fileStore{
		log:      log,
		subsPath: prefix + ".chats.json",
		wmPath:   prefix + ".storage.json",
	}, nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) LoadSubscribers(ctx context.Context) ([]Subscriber, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	var subs []Subscriber
	if err := readJSON(s.subsPath, &subs); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("load subscribers: %w", err)
	}
	return subs, nil
}

func (s *fileStore) SaveSubscribers(ctx context.Context, subs []Subscriber) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	if subs == nil {
		subs = []Subscriber{}
	}
	if err := writeJSON(s.subsPath, subs); err != nil {
		return fmt.Errorf("save subscribers: %w", err)
	}
	return nil
}

func (s *fileStore) LoadWatermark(ctx context.Context) (Watermark, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	var wm Watermark
	if err := readJSON(s.wmPath, &wm); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Watermark{}, nil
		}
		return Watermark{}, fmt.Errorf("load watermark: %w", err)
	}
	return wm, nil
}

func (s *fileStore) SaveWatermark(ctx context.Context, wm Watermark) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeJSON(s.wmPath, wm); err != nil {
		return fmt.Errorf("save watermark: %w", err)
	}
	return nil
}

func readJSON(path string, out any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(b, '\n'), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
