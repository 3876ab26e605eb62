// Copyright 2019 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package util

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func startBroker(t *testing.T) *Broker {
	b := NewBroker()
	go b.Start()
	t.Cleanup(b.Stop)
	return b
}

// Returns once all earlier Subscribe and Unsubscribe calls were processed.
func settle(b *Broker) {
	b.Subscribe()
	b.Unsubscribe(make(chan interface{}))
}

func TestBrokerBroadcast(t *testing.T) {
	b := startBroker(t)
	subs := []chan interface{}{b.Subscribe(), b.Subscribe(), b.Subscribe()}
	settle(b)

	b.Publish(42)
	for _, s := range subs {
		select {
		case msg := <-s:
			assert.Equal(t, 42, msg)
		case <-time.After(5 * time.Second):
			t.Fatal("Timed out waiting for message")
		}
	}
}

func TestBrokerUnsubscribe(t *testing.T) {
	b := startBroker(t)
	gone := b.Subscribe()
	stays := b.Subscribe()
	b.Unsubscribe(gone)
	settle(b)
	b.Publish("x")

	assert.Equal(t, "x", <-stays)
	select {
	case msg := <-gone:
		t.Fatalf("Unsubscribed channel received %v", msg)
	default:
	}
}

func TestBrokerWait(t *testing.T) {
	b := startBroker(t)

	var wg sync.WaitGroup
	var got interface{}
	var ok bool
	wg.Add(1)
	go func() {
		defer wg.Done()
		got, ok = b.Wait(context.Background(), time.Minute)
	}()

	// Publish until the waiter has subscribed and returned.
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for {
		select {
		case <-done:
			assert.True(t, ok)
			assert.Equal(t, "changed", got)
			return
		case <-time.After(10 * time.Millisecond):
			b.Publish("changed")
		}
	}
}

func TestBrokerWaitTimesOut(t *testing.T) {
	b := startBroker(t)
	msg, ok := b.Wait(context.Background(), 10*time.Millisecond)
	assert.False(t, ok)
	assert.Nil(t, msg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok = b.Wait(ctx, time.Minute)
	assert.False(t, ok)
}

func TestBrokerStop(t *testing.T) {
	b := NewBroker()
	go b.Start()
	b.Stop()

	// None of these may block after Stop.
	b.Publish("late")
	msgCh := b.Subscribe()
	b.Unsubscribe(msgCh)
	_, ok := b.Wait(context.Background(), time.Minute)
	assert.False(t, ok)
}
