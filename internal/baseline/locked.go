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

package baseline

import "sync"

// Locked is a Sequential behind a single mutex. Every operation, reads
// included, takes the lock.
type Locked[T any] struct {
	mu  sync.Mutex
	seq Sequential[T]
}

// NewLocked returns a locked array with room for capacity elements.
func NewLocked[T any](capacity int) *Locked[T] {
	return &Locked[T]{seq: *NewSequential[T](capacity)}
}

// PushBack appends x.
func (l *Locked[T]) PushBack(x *T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq.PushBack(x)
}

// PopBack removes and returns the last element.
func (l *Locked[T]) PopBack() (*T, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq.PopBack()
}

// At returns the element at pos.
func (l *Locked[T]) At(pos int) (*T, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq.At(pos)
}

// Insert places x at pos, shifting later elements right.
func (l *Locked[T]) Insert(pos int, x *T) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq.Insert(pos, x)
}

// Erase removes the element at pos, shifting later elements left.
func (l *Locked[T]) Erase(pos int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq.Erase(pos)
}

// Clear removes every element.
func (l *Locked[T]) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq.Clear()
}

// Len returns the number of elements.
func (l *Locked[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq.Len()
}

// Capacity returns the number of elements held before growing.
func (l *Locked[T]) Capacity() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq.Capacity()
}

// Slice returns a copy of the elements.
func (l *Locked[T]) Slice() []*T {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq.Slice()
}
