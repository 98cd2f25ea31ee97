package inbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type fileStore struct {
	root string
}

// NewFileStore creates a Store backed by the filesystem. Each message is a
// JSON file at <root>/<escaped identity>/<id>.json.
func NewFileStore(root string) Store {
	return &fileStore{root: root}
}

func (s *fileStore) Save(_ context.Context, msgs ...Message) error {
	for _, m := range msgs {
		data, err := json.MarshalIndent(m, "", "  ")
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrSaveFailed, m.ID, err)
		}

		dir := filepath.Join(s.root, url.PathEscape(m.Identity))
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrSaveFailed, m.ID, err)
		}

		tmp, err := os.CreateTemp(dir, ".tmp-*")
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrSaveFailed, m.ID, err)
		}
		tmpName := tmp.Name()

		if _, err := tmp.Write(data); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return fmt.Errorf("%w: %s: %v", ErrSaveFailed, m.ID, err)
		}
		if err := tmp.Close(); err != nil {
			os.Remove(tmpName)
			return fmt.Errorf("%w: %s: %v", ErrSaveFailed, m.ID, err)
		}

		if err := os.Rename(tmpName, filepath.Join(dir, m.ID+".json")); err != nil {
			os.Remove(tmpName)
			return fmt.Errorf("%w: %s: %v", ErrSaveFailed, m.ID, err)
		}
	}

	return nil
}

func (s *fileStore) List(_ context.Context, identity string) ([]Message, error) {
	root := s.root
	if identity != "" {
		root = filepath.Join(s.root, url.PathEscape(identity))
	}

	var msgs []Message
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == root {
				return fs.SkipAll
			}
			return err
		}

		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}

		m, err := readMessage(path)
		if err != nil {
			return err
		}
		msgs = append(msgs, m)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}

	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].ReceivedAt.Before(msgs[j].ReceivedAt)
	})
	return msgs, nil
}

func (s *fileStore) Load(_ context.Context, id string) (Message, error) {
	path, err := s.find(id)
	if err != nil {
		return Message{}, err
	}
	m, err := readMessage(path)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %s: %v", ErrLoadFailed, id, err)
	}
	return m, nil
}

func (s *fileStore) Delete(_ context.Context, ids ...string) error {
	for _, id := range ids {
		path, err := s.find(id)
		if err != nil {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("delete failed: %s: %w", id, err)
		}
		os.Remove(filepath.Dir(path))
	}
	return nil
}

func (s *fileStore) Close() error {
	return nil
}

func (s *fileStore) find(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\*?[`) || strings.HasPrefix(id, ".") {
		return "", fmt.Errorf("%w: %q", ErrNotFound, id)
	}

	matches, err := filepath.Glob(filepath.Join(s.root, "*", id+".json"))
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrLoadFailed, id, err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return matches[0], nil
}

func readMessage(path string) (Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Message{}, err
	}
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return m, nil
}
