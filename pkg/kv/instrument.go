package kv

import (
	"context"
	"errors"
	"time"
)

// Observer receives one call per storage operation.
type Observer interface {
	ObserveStorageOp(backend, op string, duration time.Duration, err error)
}

type instrumented struct {
	next     Store
	backend  string
	observer Observer
}

// Instrument reports every operation on next to observer. A nil observer returns next unchanged.
func Instrument(next Store, backend string, observer Observer) Store {
	if observer == nil {
		return next
	}
	return &instrumented{next: next, backend: backend, observer: observer}
}

func (s *instrumented) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	value, err := s.next.Get(ctx, key)
	s.observe("get", start, err)
	return value, err
}

func (s *instrumented) Set(ctx context.Context, key string, value []byte) error {
	start := time.Now()
	err := s.next.Set(ctx, key, value)
	s.observe("set", start, err)
	return err
}

func (s *instrumented) List(ctx context.Context, prefix string) ([]string, error) {
	start := time.Now()
	keys, err := s.next.List(ctx, prefix)
	s.observe("list", start, err)
	return keys, err
}

func (s *instrumented) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := s.next.Delete(ctx, key)
	s.observe("delete", start, err)
	return err
}

func (s *instrumented) observe(op string, start time.Time, err error) {
	// An absent key is an answer, not a failure.
	if errors.Is(err, ErrNotFound) {
		err = nil
	}
	s.observer.ObserveStorageOp(s.backend, op, time.Since(start), err)
}
