// Copyright 2025 The Hyperdrive Authors
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

// Package events is a typed observer set replacing the string-keyed
// event emitter spec.md §9 calls out ("Event emitter -> typed observer
// set"): a small enum of event kinds (ready/error/update/appending/
// append) and a subscriber list per kind, each subscription addressable
// by a uuid so it can be individually cancelled.
package events

import (
	"sync"

	"github.com/google/uuid"
)

// Kind enumerates the events spec.md §6 says the drive emits.
type Kind int

const (
	Ready Kind = iota
	Error
	Update
	Appending
	Append
)

// Event is one notification delivered to subscribers. Name/Err/Opts are
// populated depending on Kind: Ready carries none of them; Error
// carries Err; Update carries the Name of the mutated path; Appending
// and Append carry Name and the caller's stream options as Opts.
type Event struct {
	Kind Kind
	Name string
	Err  error
	Opts any
}

// Bus is the drive's typed observer set: one subscriber list per Kind.
type Bus struct {
	mu   sync.RWMutex
	subs map[Kind]map[string]func(Event)
}

func NewBus() *Bus {
	return &Bus{subs: make(map[Kind]map[string]func(Event))}
}

// On registers fn for events of kind k, returning a cancel func that
// removes only this subscription.
func (b *Bus) On(k Kind, fn func(Event)) (cancel func()) {
	id := uuid.NewString()

	b.mu.Lock()
	if b.subs[k] == nil {
		b.subs[k] = make(map[string]func(Event))
	}
	b.subs[k][id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs[k], id)
		b.mu.Unlock()
	}
}

// Emit delivers ev to every subscriber of ev.Kind, synchronously and in
// no particular order -- matching the cooperative single-threaded
// scheduling model of spec.md §5: callers fire on later ticks of the
// same goroutine that drives the operation, never a new goroutine per
// subscriber.
func (b *Bus) Emit(ev Event) {
	b.mu.RLock()
	fns := make([]func(Event), 0, len(b.subs[ev.Kind]))
	for _, fn := range b.subs[ev.Kind] {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}
