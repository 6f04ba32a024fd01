package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"surveydesk/internal/storage/kv"
)

const (
	DefaultPrefix = "survey_app_"
	probeKey      = "__storage_test__"
)

// Envelope wraps every flat value. Times are Unix milliseconds.
type Envelope struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	Timestamp int64           `json:"timestamp"`
	ExpiresAt *int64          `json:"expiresAt,omitempty"`
}

// Namespace is a prefixed view over a kv backend storing enveloped values.
type Namespace struct {
	backend kv.Backend
	prefix  string
	Now     func() time.Time
}

func NewNamespace(backend kv.Backend, prefix string) *Namespace {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Namespace{backend: backend, prefix: prefix, Now: time.Now}
}

func (n *Namespace) Prefix() string { return n.prefix }

func (n *Namespace) now() time.Time {
	if n.Now != nil {
		return n.Now()
	}
	return time.Now()
}

func (n *Namespace) SetItem(ctx context.Context, key string, value any) error {
	return n.set(ctx, key, value, nil)
}

// SetItemTTL stores value so it expires expiresIn from now. A zero duration
// is an explicit TTL that expires immediately.
func (n *Namespace) SetItemTTL(ctx context.Context, key string, value any, expiresIn time.Duration) error {
	return n.set(ctx, key, value, &expiresIn)
}

func (n *Namespace) set(ctx context.Context, key string, value any, expiresIn *time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return n.setRaw(ctx, key, raw, expiresIn)
}

func (n *Namespace) setRaw(ctx context.Context, key string, raw json.RawMessage, expiresIn *time.Duration) error {
	now := n.now()
	env := Envelope{Key: key, Value: raw, Timestamp: now.UnixMilli()}
	var ttl time.Duration
	if expiresIn != nil {
		at := now.Add(*expiresIn).UnixMilli()
		env.ExpiresAt = &at
		ttl = *expiresIn
	}
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return n.backend.Set(ctx, n.prefix+key, string(b), ttl)
}

// GetRaw returns the stored value bytes. Expired entries are removed and
// reported as ErrNotFound.
func (n *Namespace) GetRaw(ctx context.Context, key string) (json.RawMessage, error) {
	s, ok, err := n.backend.Get(ctx, n.prefix+key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	var env Envelope
	if err := json.Unmarshal([]byte(s), &env); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	if env.ExpiresAt != nil && *env.ExpiresAt <= n.now().UnixMilli() {
		if err := n.backend.Delete(ctx, n.prefix+key); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return env.Value, nil
}

// GetItem decodes the value stored under key into out.
func (n *Namespace) GetItem(ctx context.Context, key string, out any) error {
	raw, err := n.GetRaw(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (n *Namespace) RemoveItem(ctx context.Context, key string) error {
	return n.backend.Delete(ctx, n.prefix+key)
}

// Keys lists the unprefixed keys that start with prefix.
func (n *Namespace) Keys(ctx context.Context, prefix string) ([]string, error) {
	full, err := n.backend.Keys(ctx, n.prefix+prefix)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(full))
	for _, k := range full {
		out = append(out, strings.TrimPrefix(k, n.prefix))
	}
	return out, nil
}

// Clear removes every key of this namespace and nothing else.
func (n *Namespace) Clear(ctx context.Context) error {
	keys, err := n.backend.Keys(ctx, n.prefix)
	if err != nil {
		return err
	}
	var errs []error
	for _, k := range keys {
		if err := n.backend.Delete(ctx, k); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Size is the total byte length of stored keys and envelopes.
func (n *Namespace) Size(ctx context.Context) (int64, error) {
	keys, err := n.backend.Keys(ctx, n.prefix)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, k := range keys {
		v, ok, err := n.backend.Get(ctx, k)
		if err != nil {
			return 0, err
		}
		if ok {
			total += int64(len(k) + len(v))
		}
	}
	return total, nil
}

// Probe writes and removes a marker key.
func (n *Namespace) Probe(ctx context.Context) error {
	if err := n.SetItem(ctx, probeKey, "test"); err != nil {
		return err
	}
	return n.RemoveItem(ctx, probeKey)
}
