// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNoMatches is returned when a query matched zero torrents.
	ErrNoMatches = errors.New("Nothing found")

	// ErrNotEnoughSpace is returned when the move destination is short on disk space.
	ErrNotEnoughSpace = errors.New("Not enough space")
)

// ParseError reports malformed or incomplete torrent metadata.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("torrent error: %s: %v", e.Reason, e.Err)
	}
	return "torrent error: " + e.Reason
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// NothingToDoError signals an operator decision that left nothing to do.
// Callers treat it as a successful no-op.
type NothingToDoError struct {
	Reason string
}

func (e *NothingToDoError) Error() string {
	return e.Reason
}

// NothingToDo builds a NothingToDoError.
func NothingToDo(reason string) error {
	return &NothingToDoError{Reason: reason}
}

// IsNothingToDo reports whether err (or anything it wraps) is a NothingToDoError.
func IsNothingToDo(err error) bool {
	var target *NothingToDoError
	return errors.As(err, &target)
}

// MultipleError is the aggregate failure of a batch. Individual causes are logged
// where they happen, only the count is kept.
type MultipleError struct {
	Count int
}

func (e *MultipleError) Error() string {
	return fmt.Sprintf("Had %d errors", e.Count)
}

// TransportError wraps a failed daemon RPC call with the method it belongs to.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("rpc %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
