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

import "errors"

var (
	// ErrThreadID is the panic value (wrapped) when a thread id is outside
	// [0, NumThreads).
	ErrThreadID = errors.New("waitfree: thread id out of range")
	// ErrNilValue is the panic value (wrapped) when a nil element is
	// pushed or inserted. Nil is reserved for the empty slot.
	ErrNilValue = errors.New("waitfree: nil value")
	// ErrElementSize is the panic value (wrapped) when New is instantiated
	// with an element type narrower than minElementSize bytes.
	ErrElementSize = errors.New("waitfree: element type too small")
)
