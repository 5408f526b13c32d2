package dspclient

import (
	"context"
	"errors"
	"slices"
	"testing"
)

func newRegistryClient(t *testing.T) *Client {
	t.Helper()

	c, err := NewClient("ws://127.0.0.1:1/engine")
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return c
}

func isClosed(c *Client) bool {
	_, err := c.Send(context.Background(), "GetVersion", PriorityNormal)
	return errors.Is(err, ErrClientClosed)
}

func TestRegistrySetAndGet(t *testing.T) {
	r := NewRegistry()
	defer r.Clear()

	c := newRegistryClient(t)
	r.Set("main", c)

	got, ok := r.Get("main")
	if !ok || got != c {
		t.Fatal("expected the registered client")
	}
	if _, ok := r.Get("other"); ok {
		t.Error("expected no client for an unknown unit")
	}
	if r.Len() != 1 || !slices.Equal(r.Units(), []string{"main"}) {
		t.Errorf("unexpected units %v", r.Units())
	}
}

func TestRegistryReplaceClosesPrevious(t *testing.T) {
	r := NewRegistry()
	defer r.Clear()

	first := newRegistryClient(t)
	second := newRegistryClient(t)

	r.Set("main", first)
	r.Set("main", first)
	if isClosed(first) {
		t.Fatal("registering the same client again must not close it")
	}

	r.Set("main", second)
	if !isClosed(first) {
		t.Error("expected the replaced client to be closed")
	}
	if isClosed(second) {
		t.Error("expected the new client to stay open")
	}
}

func TestRegistryRemoveAndClear(t *testing.T) {
	r := NewRegistry()

	a := newRegistryClient(t)
	b := newRegistryClient(t)
	c := newRegistryClient(t)
	r.Set("a", a)
	r.Set("b", b)
	r.Set("c", c)

	if !r.Remove("a") {
		t.Fatal("expected a to be removed")
	}
	if r.Remove("a") {
		t.Error("expected a second removal to report nothing")
	}
	if !isClosed(a) {
		t.Error("expected the removed client to be closed")
	}

	r.Clear()
	if r.Len() != 0 {
		t.Errorf("expected an empty registry, got %d", r.Len())
	}
	if !isClosed(b) || !isClosed(c) {
		t.Error("expected every client to be closed")
	}
}
