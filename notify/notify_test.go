package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubPublishAndSubscribe(t *testing.T) {
	h := NewHub("video")

	id, ch := h.Subscribe()
	defer h.Unsubscribe(id)

	snap := h.Publish(map[string]bool{"video": true, "livephoto": false})
	assert.Equal(t, uint64(1), snap.Version)
	assert.True(t, snap.Entitled("video"))
	assert.False(t, snap.Entitled("livephoto"))
	assert.True(t, snap.Default())

	got := <-ch
	assert.Equal(t, snap.Version, got.Version)
	assert.True(t, got.Entitled("video"))
}

func TestHubReplaysLatestToLateSubscriber(t *testing.T) {
	h := NewHub("video")
	h.Publish(map[string]bool{"video": true})

	id, ch := h.Subscribe()
	defer h.Unsubscribe(id)

	select {
	case got := <-ch:
		assert.Equal(t, uint64(1), got.Version)
		assert.True(t, got.Entitled("video"))
	default:
		t.Fatal("late subscriber should receive the latest snapshot immediately")
	}
}

func TestHubLatestWinsForSlowSubscriber(t *testing.T) {
	h := NewHub("video")
	id, ch := h.Subscribe()
	defer h.Unsubscribe(id)

	// Three publishes without a single receive: the subscriber must end on
	// the newest snapshot, not block the hub.
	h.Publish(map[string]bool{"video": false})
	h.Publish(map[string]bool{"video": true})
	h.Publish(map[string]bool{"video": true, "livephoto": true})

	got := <-ch
	assert.Equal(t, uint64(3), got.Version)
	assert.True(t, got.Entitled("livephoto"))
}

func TestHubPublishIfChanged(t *testing.T) {
	h := NewHub("video")

	snap, changed := h.PublishIfChanged(map[string]bool{"video": false})
	require.True(t, changed, "first publish always goes out")
	assert.Equal(t, uint64(1), snap.Version)

	snap, changed = h.PublishIfChanged(map[string]bool{"video": false})
	assert.False(t, changed, "identical status must not publish")
	assert.Equal(t, uint64(1), snap.Version)

	snap, changed = h.PublishIfChanged(map[string]bool{"video": true})
	assert.True(t, changed)
	assert.Equal(t, uint64(2), snap.Version)
}

func TestHubSnapshotImmutable(t *testing.T) {
	h := NewHub("video")
	input := map[string]bool{"video": true}
	snap := h.Publish(input)

	// Mutating the caller's map after publish must not leak into the
	// snapshot, and Groups() hands out copies.
	input["video"] = false
	assert.True(t, snap.Entitled("video"))

	out := snap.Groups()
	out["video"] = false
	assert.True(t, snap.Entitled("video"))
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	h := NewHub("video")
	id, ch := h.Subscribe()
	h.Unsubscribe(id)

	_, open := <-ch
	assert.False(t, open)

	// Unsubscribing twice is harmless.
	h.Unsubscribe(id)
	h.Publish(map[string]bool{"video": true})
}
