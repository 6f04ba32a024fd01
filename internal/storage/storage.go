// Package storage is the persistence gateway: a structured document store
// with a flat key/value fallback behind one set of entity operations.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnavailable is returned by a backend that is not ready to serve.
	ErrUnavailable = errors.New("storage unavailable")
	ErrNotFound    = errors.New("not found")
)

// Kind names one entity collection.
type Kind string

const (
	KindSurvey   Kind = "survey"
	KindResponse Kind = "response"
	KindTemplate Kind = "template"
)

var Kinds = []Kind{KindSurvey, KindResponse, KindTemplate}

// IndexFields lists the JSON fields each collection can be queried by.
var IndexFields = map[Kind][]string{
	KindSurvey:   {"title", "authorId", "isPublished"},
	KindResponse: {"surveyId", "respondentId"},
	KindTemplate: {"category", "isPublic"},
}

// Indexed reports whether field is queryable on kind.
func Indexed(kind Kind, field string) bool {
	for _, f := range IndexFields[kind] {
		if f == field {
			return true
		}
	}
	return false
}

type State string

const (
	StateUninitialized State = "uninitialized"
	StateOpening       State = "opening"
	StateReady         State = "ready"
	StateFailed        State = "failed"
)

// DocumentStore persists JSON documents per kind, keyed by primary key.
type DocumentStore interface {
	Put(ctx context.Context, kind Kind, id string, doc []byte) error
	Get(ctx context.Context, kind Kind, id string) ([]byte, error)
	List(ctx context.Context, kind Kind) ([][]byte, error)
	FindBy(ctx context.Context, kind Kind, field string, value any) ([][]byte, error)
	Delete(ctx context.Context, kind Kind, id string) error
	Clear(ctx context.Context) error
	Count(ctx context.Context, kind Kind) (int, error)
	// Probe performs a throwaway write/delete cycle.
	Probe(ctx context.Context) error
	State() State
}

// OperationError is returned when both backends failed an operation. Err is
// the structured store failure when there was one.
type OperationError struct {
	Op       string
	Kind     Kind
	ID       string
	Err      error
	Fallback error
}

func (e *OperationError) Error() string {
	target := string(e.Kind)
	if e.ID != "" {
		target += " " + e.ID
	}
	msg := fmt.Sprintf("storage %s %s: %v", e.Op, target, e.Err)
	if e.Fallback != nil && e.Fallback != e.Err {
		msg += fmt.Sprintf(" (fallback: %v)", e.Fallback)
	}
	return msg
}

func (e *OperationError) Unwrap() error { return e.Err }

// Entity is anything the gateway can persist.
type Entity interface {
	PrimaryKey() string
}

func decodeAll[T any](docs [][]byte) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		var v T
		if err := json.Unmarshal(d, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
