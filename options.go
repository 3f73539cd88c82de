// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package grpccontext

import (
	"errors"

	"github.com/joeycumines/logiface"
)

// defaultArenaCapacity bounds the worker arena when no option overrides it.
const defaultArenaCapacity = 128

// contextOptions holds configuration for New.
type contextOptions struct {
	completionQueue       *CompletionQueue
	serverCompletionQueue *ServerCompletionQueue
	logger                *logiface.Logger[logiface.Event]
	arenaCapacity         int
}

// Option configures a Context instance.
type Option interface {
	applyContext(*contextOptions) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyContextFunc func(*contextOptions) error
}

func (o *optionImpl) applyContext(opts *contextOptions) error {
	return o.applyContextFunc(opts)
}

// WithCompletionQueue makes the Context drive q instead of creating its own
// queue. The Context takes ownership: Close shuts q down.
func WithCompletionQueue(q *CompletionQueue) Option {
	return &optionImpl{func(opts *contextOptions) error {
		opts.completionQueue = q
		return nil
	}}
}

// WithServerCompletionQueue makes the Context drive the given server
// completion queue. Mutually exclusive with WithCompletionQueue.
func WithServerCompletionQueue(q *ServerCompletionQueue) Option {
	return &optionImpl{func(opts *contextOptions) error {
		opts.serverCompletionQueue = q
		return nil
	}}
}

// WithLogger sets the structured logger. A nil logger (the default) disables
// logging entirely.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *contextOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithArenaCapacity bounds the number of operation records the worker arena
// may hold. Zero disables the arena, routing all allocation through the
// shared pool.
func WithArenaCapacity(n int) Option {
	return &optionImpl{func(opts *contextOptions) error {
		if n < 0 {
			return errors.New("grpccontext: arena capacity must be >= 0")
		}
		opts.arenaCapacity = n
		return nil
	}}
}

// resolveOptions applies Option instances to contextOptions.
func resolveOptions(opts []Option) (*contextOptions, error) {
	cfg := &contextOptions{
		arenaCapacity: defaultArenaCapacity,
	}
	for _, opt := range opts {
		if opt == nil {
			continue // Skip nil options gracefully
		}
		if err := opt.applyContext(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.completionQueue != nil && cfg.serverCompletionQueue != nil {
		return nil, errors.New("grpccontext: at most one completion queue option may be given")
	}
	return cfg, nil
}
