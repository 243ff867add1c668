// Copyright (C) 2025 Horia73
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package eventbus

import (
	"context"
	"testing"
	"time"
)

// testContext returns a context cancelled at test cleanup, matching the
// semantics of testing.T.Context from newer Go releases.
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

func recv(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return nil
	}
}

func TestPublishSubscribe(t *testing.T) {
	b := New()
	defer b.Close()

	ch, unsub := b.Subscribe(testContext(t), "temps", false)
	defer unsub()

	b.Publish("temps", 21.5)
	if got := recv(t, ch); got != 21.5 {
		t.Fatalf("got %v", got)
	}
}

func TestSubscribeWithLast(t *testing.T) {
	b := New()
	defer b.Close()

	b.Publish("temps", 20.0)

	ch, unsub := b.Subscribe(testContext(t), "temps", true)
	defer unsub()

	if got := recv(t, ch); got != 20.0 {
		t.Fatalf("late subscriber should see the last event, got %v", got)
	}
}

func TestReplaceOldest(t *testing.T) {
	b := New()
	defer b.Close()

	ch, unsub := b.Subscribe(testContext(t), "temps", false)
	defer unsub()

	// slow subscriber: only the newest event survives
	b.Publish("temps", 1)
	b.Publish("temps", 2)
	b.Publish("temps", 3)

	if got := recv(t, ch); got != 3 {
		t.Fatalf("expected newest event, got %v", got)
	}
	select {
	case ev := <-ch:
		t.Fatalf("stale event delivered: %v", ev)
	default:
	}
}

func TestTopicsAreIndependent(t *testing.T) {
	b := New()
	defer b.Close()

	tempCh, unsubA := b.Subscribe(testContext(t), "temps", false)
	defer unsubA()
	_, unsubB := b.Subscribe(testContext(t), "weather", false)
	defer unsubB()

	b.Publish("weather", -2.0)
	b.Publish("temps", 21.0)

	if got := recv(t, tempCh); got != 21.0 {
		t.Fatalf("got event from the wrong topic: %v", got)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	defer b.Close()

	ch, unsub := b.Subscribe(testContext(t), "temps", false)
	unsub()

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel not closed after unsubscribe")
		}
	}
}

func TestGetLast(t *testing.T) {
	b := New()
	defer b.Close()

	if _, ok := b.GetLast("temps"); ok {
		t.Fatal("GetLast before any publish should report false")
	}
	b.Publish("temps", 19.0)
	if v, ok := b.GetLast("temps"); !ok || v != 19.0 {
		t.Fatalf("GetLast = %v, %v", v, ok)
	}
}

func TestClosedBus(t *testing.T) {
	b := New()
	b.Close()

	// publish is a no-op, subscribe yields a closed channel
	b.Publish("temps", 1)
	ch, unsub := b.Subscribe(testContext(t), "temps", false)
	defer unsub()
	if _, ok := <-ch; ok {
		t.Fatal("subscribe after close must return a closed channel")
	}
}
