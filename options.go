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

package waitfree

// option provide an interface to do work on Vector while it is being
// created.
type option[T any] interface {
	apply(v *Vector[T])
}

type initialCapacityOption[T any] struct {
	capacity int
}

func (op initialCapacityOption[T]) apply(v *Vector[T]) {
	v.initialCapacity = max(op.capacity, 0)
}

// WithInitialCapacity is an option to specify the capacity of the first
// storage generation of a Vector[T]. Growth beyond it doubles the capacity
// (2n+1) one generation at a time.
func WithInitialCapacity[T any](capacity int) option[T] {
	return initialCapacityOption[T]{capacity}
}

type retryLimitOption[T any] struct {
	limit int
}

func (op retryLimitOption[T]) apply(v *Vector[T]) {
	v.limit = max(op.limit, 0)
}

// WithRetryLimit is an option to specify how many times an operation
// retries in place before it is announced to the other threads. Lower
// limits hand work to helpers sooner; the default is defaultRetryLimit.
func WithRetryLimit[T any](limit int) option[T] {
	return retryLimitOption[T]{limit}
}
