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

package events_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/driveup/hyperdrive/internal/events"
)

func TestEmitDeliversOnlyToMatchingKind(t *testing.T) {
	bus := events.NewBus()

	var readyCount, errCount int
	bus.On(events.Ready, func(ev events.Event) { readyCount++ })
	bus.On(events.Error, func(ev events.Event) { errCount++ })

	bus.Emit(events.Event{Kind: events.Ready})
	require.Equal(t, 1, readyCount)
	require.Equal(t, 0, errCount)

	bus.Emit(events.Event{Kind: events.Error, Err: errors.New("boom")})
	require.Equal(t, 1, readyCount)
	require.Equal(t, 1, errCount)
}

func TestEmitDeliversToEverySubscriberOfAKind(t *testing.T) {
	bus := events.NewBus()

	var a, b int
	bus.On(events.Update, func(ev events.Event) { a++ })
	bus.On(events.Update, func(ev events.Event) { b++ })

	bus.Emit(events.Event{Kind: events.Update})
	require.Equal(t, 1, a)
	require.Equal(t, 1, b)
}

func TestCancelRemovesOnlyThatSubscription(t *testing.T) {
	bus := events.NewBus()

	var a, b int
	cancelA := bus.On(events.Append, func(ev events.Event) { a++ })
	bus.On(events.Append, func(ev events.Event) { b++ })

	cancelA()
	bus.Emit(events.Event{Kind: events.Append})

	require.Equal(t, 0, a)
	require.Equal(t, 1, b)
}

func TestEventCarriesErrForErrorKind(t *testing.T) {
	bus := events.NewBus()
	want := errors.New("replication failure")

	var got error
	bus.On(events.Error, func(ev events.Event) { got = ev.Err })
	bus.Emit(events.Event{Kind: events.Error, Err: want})

	require.Equal(t, want, got)
}
