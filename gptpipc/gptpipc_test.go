/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package gptpipc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBusPublishDeliversToSubscriber(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe()
	defer cancel()

	bus.Publish(Notice{EventFlags: NoticeGmChange, DomainNumber: 0})

	select {
	case n := <-ch:
		require.Equal(t, NoticeGmChange, n.EventFlags)
	default:
		t.Fatal("expected notice to be delivered")
	}
}

func TestBusPublishSkipsCanceledSubscriber(t *testing.T) {
	bus := NewBus()
	_, cancel := bus.Subscribe()
	cancel()

	require.NotPanics(t, func() {
		bus.Publish(Notice{EventFlags: NoticeNetdevUp})
	})
}

func TestBusPublishFanOutToMultipleSubscribers(t *testing.T) {
	bus := NewBus()
	ch1, cancel1 := bus.Subscribe()
	defer cancel1()
	ch2, cancel2 := bus.Subscribe()
	defer cancel2()

	bus.Publish(Notice{EventFlags: NoticeAsCapableUp, PortIndex: 2})

	n1 := <-ch1
	n2 := <-ch2
	require.Equal(t, int32(2), n1.PortIndex)
	require.Equal(t, int32(2), n2.PortIndex)
}

func TestBusPublishDropsWhenSubscriberBufferFull(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe()
	defer cancel()

	for i := 0; i < 64; i++ {
		bus.Publish(Notice{PortIndex: int32(i)})
	}
	require.Len(t, ch, cap(ch))
}

func TestNoticeFlagsAreDistinctBits(t *testing.T) {
	flags := []NoticeFlags{
		NoticeNetdevDown, NoticeNetdevUp, NoticePhaseUpdate, NoticeFreqUpdate,
		NoticeGmSynced, NoticeGmUnsynced, NoticeGmChange,
		NoticeAsCapableDown, NoticeAsCapableUp, NoticeActiveDomainChange,
	}
	seen := NoticeFlags(0)
	for _, f := range flags {
		require.Zero(t, seen&f, "flag %d overlaps a previous bit", f)
		seen |= f
	}
}
