package server

import (
	"testing"
	"time"
)

func TestActivityHub_RegisterUnregister(t *testing.T) {
	h := NewActivityHub()
	go h.Run()
	defer h.Stop()

	client := &activityClient{send: make(chan []byte, 1)}
	h.register <- client
	h.drop(client)

	// The loop processed both sends; the client's channel was closed by
	// the unregister path.
	select {
	case _, ok := <-client.send:
		if ok {
			t.Fatal("expected closed send channel")
		}
	case <-time.After(time.Second):
		t.Fatal("unregister was not processed")
	}
}

func TestActivityHub_DropAfterStopDoesNotBlock(t *testing.T) {
	h := NewActivityHub()
	go h.Run()
	h.Stop()

	done := make(chan struct{})
	go func() {
		h.drop(&activityClient{send: make(chan []byte, 1)})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("drop blocked after hub stop")
	}
}

func TestActivityHub_PublishNeverBlocks(t *testing.T) {
	h := NewActivityHub()
	// No Run loop: fill the buffer past capacity and ensure Publish drops
	// instead of blocking the request path.
	for i := 0; i < 300; i++ {
		h.Publish(ActivityEvent{Kind: "search"})
	}
}
