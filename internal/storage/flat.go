package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// FlatStore keeps documents in a Namespace under "<kind>_<id>" keys.
// Field queries scan the kind's keys and compare the decoded JSON field.
type FlatStore struct {
	ns *Namespace
}

func NewFlatStore(ns *Namespace) *FlatStore {
	return &FlatStore{ns: ns}
}

func (f *FlatStore) Namespace() *Namespace { return f.ns }

func entityKey(kind Kind, id string) string {
	return string(kind) + "_" + id
}

func (f *FlatStore) State() State { return StateReady }

func (f *FlatStore) Put(ctx context.Context, kind Kind, id string, doc []byte) error {
	return f.ns.setRaw(ctx, entityKey(kind, id), json.RawMessage(doc), nil)
}

func (f *FlatStore) Get(ctx context.Context, kind Kind, id string) ([]byte, error) {
	return f.ns.GetRaw(ctx, entityKey(kind, id))
}

func (f *FlatStore) List(ctx context.Context, kind Kind) ([][]byte, error) {
	keys, err := f.ns.Keys(ctx, string(kind)+"_")
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(keys))
	for _, k := range keys {
		raw, err := f.ns.GetRaw(ctx, k)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}

func (f *FlatStore) FindBy(ctx context.Context, kind Kind, field string, value any) ([][]byte, error) {
	want, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode %s filter: %w", field, err)
	}
	docs, err := f.List(ctx, kind)
	if err != nil {
		return nil, err
	}
	var out [][]byte
	for _, d := range docs {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(d, &fields); err != nil {
			return nil, fmt.Errorf("decode %s: %w", kind, err)
		}
		got, ok := fields[field]
		if ok && bytes.Equal(compactJSON(got), want) {
			out = append(out, d)
		}
	}
	return out, nil
}

func compactJSON(raw json.RawMessage) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}

func (f *FlatStore) Delete(ctx context.Context, kind Kind, id string) error {
	return f.ns.RemoveItem(ctx, entityKey(kind, id))
}

// Clear removes every entity key; other namespace keys survive.
func (f *FlatStore) Clear(ctx context.Context) error {
	var errs []error
	for _, kind := range Kinds {
		keys, err := f.ns.Keys(ctx, string(kind)+"_")
		if err != nil {
			return err
		}
		for _, k := range keys {
			if err := f.ns.RemoveItem(ctx, k); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Count matches List: expired entries are not counted.
func (f *FlatStore) Count(ctx context.Context, kind Kind) (int, error) {
	docs, err := f.List(ctx, kind)
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

func (f *FlatStore) Probe(ctx context.Context) error {
	return f.ns.Probe(ctx)
}

// Size is the byte size of the whole namespace.
func (f *FlatStore) Size(ctx context.Context) (int64, error) {
	return f.ns.Size(ctx)
}

// idOf extracts the "id" field of a stored document.
func idOf(doc []byte) string {
	var head struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(doc, &head); err != nil {
		return ""
	}
	return strings.TrimSpace(head.ID)
}
