// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package baseline provides the reference arrays the wait-free vector is
// measured and cross-checked against: a plain single-threaded array and the
// same array behind a mutex.
package baseline

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfRange is returned for a position outside the valid range of
	// an operation.
	ErrOutOfRange = errors.New("baseline: position out of range")
	// ErrEmpty is returned when popping an empty array.
	ErrEmpty = errors.New("baseline: array is empty")
)

// Sequential is a growable array of *T. It grows to 2n+1 when full, the
// same schedule as the wait-free vector's storage generations.
//
// A Sequential is NOT goroutine-safe.
type Sequential[T any] struct {
	data []*T
	size int
}

// NewSequential returns an array with room for capacity elements.
func NewSequential[T any](capacity int) *Sequential[T] {
	return &Sequential[T]{data: make([]*T, max(capacity, 0))}
}

func (s *Sequential[T]) grow() {
	if s.size < len(s.data) {
		return
	}
	data := make([]*T, 2*len(s.data)+1)
	copy(data, s.data)
	s.data = data
}

// PushBack appends x.
func (s *Sequential[T]) PushBack(x *T) {
	s.grow()
	s.data[s.size] = x
	s.size++
}

// PopBack removes and returns the last element.
func (s *Sequential[T]) PopBack() (*T, error) {
	if s.size == 0 {
		return nil, ErrEmpty
	}
	s.size--
	x := s.data[s.size]
	s.data[s.size] = nil
	return x, nil
}

// At returns the element at pos.
func (s *Sequential[T]) At(pos int) (*T, error) {
	if pos < 0 || pos >= s.size {
		return nil, fmt.Errorf("%w: position %d is invalid for size %d", ErrOutOfRange, pos, s.size)
	}
	return s.data[pos], nil
}

// Insert places x at pos, shifting later elements right. pos may equal
// Len, which appends.
func (s *Sequential[T]) Insert(pos int, x *T) error {
	if pos < 0 || pos > s.size {
		return fmt.Errorf("%w: cannot insert at %d for size %d", ErrOutOfRange, pos, s.size)
	}
	s.grow()
	copy(s.data[pos+1:s.size+1], s.data[pos:s.size])
	s.data[pos] = x
	s.size++
	return nil
}

// Erase removes the element at pos, shifting later elements left.
func (s *Sequential[T]) Erase(pos int) error {
	if pos < 0 || pos >= s.size {
		return fmt.Errorf("%w: cannot erase at %d for size %d", ErrOutOfRange, pos, s.size)
	}
	copy(s.data[pos:s.size-1], s.data[pos+1:s.size])
	s.size--
	s.data[s.size] = nil
	return nil
}

// Clear removes every element, keeping the capacity.
func (s *Sequential[T]) Clear() {
	clear(s.data[:s.size])
	s.size = 0
}

// Len returns the number of elements.
func (s *Sequential[T]) Len() int {
	return s.size
}

// Capacity returns the number of elements the array holds before growing.
func (s *Sequential[T]) Capacity() int {
	return len(s.data)
}

// Slice returns a copy of the elements.
func (s *Sequential[T]) Slice() []*T {
	return append([]*T(nil), s.data[:s.size]...)
}
