package live

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubDeliversLatestSnapshot(t *testing.T) {
	h := NewHub[[]int]()
	defer h.Close()

	got := make(chan []int, 10)
	unsub := h.Subscribe("users/u1/expenses", func(s []int) { got <- s })
	defer unsub()

	h.Publish("users/u1/expenses", []int{1})

	select {
	case s := <-got:
		assert.Equal(t, []int{1}, s)
	case <-time.After(time.Second):
		t.Fatal("no delivery")
	}
}

func TestHubReplaysLastSnapshotOnSubscribe(t *testing.T) {
	h := NewHub[string]()
	defer h.Close()

	h.Publish("k", "v1")
	h.Publish("k", "v2")

	got := make(chan string, 1)
	unsub := h.Subscribe("k", func(s string) { got <- s })
	defer unsub()

	select {
	case s := <-got:
		assert.Equal(t, "v2", s)
	case <-time.After(time.Second):
		t.Fatal("no replay")
	}
}

func TestHubLastDeliveryWins(t *testing.T) {
	h := NewHub[int]()
	defer h.Close()

	release := make(chan struct{})
	var mu sync.Mutex
	var seen []int
	first := make(chan struct{})
	var once sync.Once

	unsub := h.Subscribe("k", func(v int) {
		once.Do(func() { close(first) })
		<-release
		mu.Lock()
		seen = append(seen, v)
		mu.Unlock()
	})
	defer unsub()

	h.Publish("k", 1)
	<-first
	// The callback is blocked on 1; 2..5 collapse into the single mailbox slot.
	for v := 2; v <= 5; v++ {
		h.Publish("k", v)
	}
	close(release)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 5}, seen)
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	h := NewHub[int]()
	defer h.Close()

	got := make(chan int, 10)
	unsub := h.Subscribe("k", func(v int) { got <- v })
	assert.Equal(t, 1, h.Subscribers("k"))

	unsub()
	unsub()
	assert.Equal(t, 0, h.Subscribers("k"))

	h.Publish("k", 7)
	select {
	case v := <-got:
		t.Fatalf("unexpected delivery %d", v)
	case <-time.After(50 * time.Millisecond):
	}

	latest, ok := h.Latest("k")
	assert.True(t, ok)
	assert.Equal(t, 7, latest)
	h.Forget("k")
	_, ok = h.Latest("k")
	assert.False(t, ok)
}

func TestHubKeysAreIsolated(t *testing.T) {
	h := NewHub[int]()
	defer h.Close()

	got := make(chan int, 10)
	unsub := h.Subscribe("users/a/expenses", func(v int) { got <- v })
	defer unsub()

	h.Publish("users/b/expenses", 99)
	select {
	case v := <-got:
		t.Fatalf("cross-user delivery %d", v)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubReloadsOfOneKeyDoNotOverlap(t *testing.T) {
	h := NewHub[string]()
	defer h.Close()

	aLoading := make(chan struct{})
	releaseA := make(chan struct{})
	aDone := make(chan error, 1)
	go func() {
		aDone <- h.Reload("k", func() (string, error) {
			close(aLoading)
			<-releaseA
			return "old", nil
		})
	}()
	<-aLoading

	bLoading := make(chan struct{})
	bDone := make(chan error, 1)
	go func() {
		bDone <- h.Reload("k", func() (string, error) {
			close(bLoading)
			return "new", nil
		})
	}()

	select {
	case <-bLoading:
		t.Fatal("second reload read while the first was still loading")
	case <-time.After(50 * time.Millisecond):
	}

	// Another key is not held up.
	require.NoError(t, h.Reload("other", func() (string, error) { return "x", nil }))

	close(releaseA)
	require.NoError(t, <-aDone)
	require.NoError(t, <-bDone)

	latest, ok := h.Latest("k")
	require.True(t, ok)
	assert.Equal(t, "new", latest)

	h.mu.Lock()
	assert.Empty(t, h.loads)
	h.mu.Unlock()
}

func TestHubReloadErrorKeepsPreviousSnapshot(t *testing.T) {
	h := NewHub[string]()
	defer h.Close()

	h.Publish("k", "v1")
	err := h.Reload("k", func() (string, error) { return "", assert.AnError })
	require.ErrorIs(t, err, assert.AnError)

	latest, _ := h.Latest("k")
	assert.Equal(t, "v1", latest)
}
