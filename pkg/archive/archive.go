package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// ErrNotFound is returned by Storage.Load for unknown documents.
var ErrNotFound = errors.New("archive document not found")

// Storage is a flat namespace of named blobs.
type Storage interface {
	Save(ctx context.Context, name string, data io.Reader) error
	Load(ctx context.Context, name string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, name string) error
}

// Envelope wraps an archived JSON document with its archive metadata.
type Envelope struct {
	Version    string          `json:"version"`
	Key        string          `json:"key"`
	ArchivedAt time.Time       `json:"archived_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Archiver writes versioned JSON envelopes to a Storage.
type Archiver struct {
	storage Storage
	version string
	now     func() time.Time
}

// NewArchiver creates an archiver. A nil clock means time.Now.
func NewArchiver(storage Storage, version string, now func() time.Time) *Archiver {
	if now == nil {
		now = time.Now
	}
	return &Archiver{storage: storage, version: version, now: now}
}

// Put stores payload under key and returns the document name. Names sort by archive time per key.
func (a *Archiver) Put(ctx context.Context, key string, payload interface{}) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal archive payload: %w", err)
	}

	env := Envelope{
		Version:    a.version,
		Key:        key,
		ArchivedAt: a.now().UTC(),
		Payload:    raw,
	}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal archive envelope: %w", err)
	}

	name := documentName(key, env.ArchivedAt)
	if err := a.storage.Save(ctx, name, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("failed to save archive document: %w", err)
	}
	return name, nil
}

// Get loads the named document and decodes its payload into out.
func (a *Archiver) Get(ctx context.Context, name string, out interface{}) (*Envelope, error) {
	rc, err := a.storage.Load(ctx, name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var env Envelope
	if err := json.NewDecoder(rc).Decode(&env); err != nil {
		return nil, fmt.Errorf("failed to decode archive envelope: %w", err)
	}
	if out != nil {
		if err := json.Unmarshal(env.Payload, out); err != nil {
			return nil, fmt.Errorf("failed to decode archive payload: %w", err)
		}
	}
	return &env, nil
}

// Latest returns the newest document name stored for key.
func (a *Archiver) Latest(ctx context.Context, key string) (string, error) {
	names, err := a.storage.List(ctx, keyPrefix(key))
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", ErrNotFound
	}
	latest := names[0]
	for _, n := range names[1:] {
		if n > latest {
			latest = n
		}
	}
	return latest, nil
}

// List returns the document names stored for key.
func (a *Archiver) List(ctx context.Context, key string) ([]string, error) {
	return a.storage.List(ctx, keyPrefix(key))
}

// Prune deletes documents for key archived before cutoff and returns how many were removed.
func (a *Archiver) Prune(ctx context.Context, key string, cutoff time.Time) (int, error) {
	names, err := a.storage.List(ctx, keyPrefix(key))
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, n := range names {
		ts, ok := documentTime(n)
		if !ok || !ts.Before(cutoff) {
			continue
		}
		if err := a.storage.Delete(ctx, n); err != nil {
			return removed, fmt.Errorf("failed to delete %s: %w", n, err)
		}
		removed++
	}
	return removed, nil
}

const timeLayout = "20060102T150405.000000000Z"

func keyPrefix(key string) string {
	return sanitize(key) + "--"
}

func documentName(key string, at time.Time) string {
	return keyPrefix(key) + at.Format(timeLayout) + ".json"
}

func documentTime(name string) (time.Time, bool) {
	i := strings.LastIndex(name, "--")
	if i < 0 || !strings.HasSuffix(name, ".json") {
		return time.Time{}, false
	}
	ts, err := time.Parse(timeLayout, strings.TrimSuffix(name[i+2:], ".json"))
	return ts, err == nil
}

func sanitize(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, key)
}
