package progress

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/friedman-econ/friedman/internal/logging"
)

func recv(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestHub_TopicScoping(t *testing.T) {
	t.Parallel()

	h := NewHub(8)
	a, cancelA := h.Subscribe("job-a")
	defer cancelA()
	b, cancelB := h.Subscribe("job-b")
	defer cancelB()

	h.Publish("job-a", "line for a")
	h.Publish("job-b", "line for b")
	h.Done("job-a")

	ev := recv(t, a)
	assert.Equal(t, EventProgress, ev.Type)
	assert.Equal(t, "friedman://progress/job-a", ev.Topic)
	assert.Equal(t, "line for a", ev.Line)
	assert.Equal(t, EventDone, recv(t, a).Type)

	ev = recv(t, b)
	assert.Equal(t, "line for b", ev.Line)
	assert.Empty(t, b)
}

func TestHub_NoSubscriberIsFine(t *testing.T) {
	t.Parallel()

	h := NewHub(1)
	h.Publish("nobody", "dropped on the floor")
	h.Done("nobody")
	assert.Zero(t, h.Subscribers("nobody"))
	assert.Zero(t, h.Dropped())
}

func TestHub_FullBufferDropsInsteadOfBlocking(t *testing.T) {
	t.Parallel()

	h := NewHub(2)
	ch, cancel := h.Subscribe("job")
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			h.Publish("job", fmt.Sprintf("line %d", i))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	assert.Equal(t, "line 0", recv(t, ch).Line)
	assert.Equal(t, "line 1", recv(t, ch).Line)
	assert.Equal(t, int64(8), h.Dropped())
}

func TestHub_DoneSurvivesFullBuffer(t *testing.T) {
	t.Parallel()

	h := NewHub(4)
	ch, cancel := h.Subscribe("job")
	defer cancel()

	for i := 0; i < 10; i++ {
		h.Publish("job", fmt.Sprintf("line %d", i))
	}
	h.Done("job")

	var last Event
	for i := 0; i < 4; i++ {
		last = recv(t, ch)
	}
	assert.Equal(t, EventDone, last.Type)
	assert.Empty(t, ch)
	assert.Equal(t, int64(7), h.Dropped())
}

func TestHub_Unsubscribe(t *testing.T) {
	t.Parallel()

	h := NewHub(4)
	ch, cancel := h.Subscribe("job")
	assert.Equal(t, 1, h.Subscribers("job"))

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)
	assert.Zero(t, h.Subscribers("job"))

	h.Publish("job", "after unsubscribe")
}

func TestHub_ConcurrentPublishAndUnsubscribe(t *testing.T) {
	t.Parallel()

	h := NewHub(16)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			ch, cancel := h.Subscribe("job")
			go func() {
				for range ch {
				}
			}()
			time.Sleep(time.Millisecond)
			cancel()
		}()
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				h.Publish("job", fmt.Sprintf("%d/%d", i, j))
			}
		}(i)
	}
	wg.Wait()
	assert.Zero(t, h.Subscribers("job"))
}

func TestTee_LogSink(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logging.New(logging.Config{Output: &buf, Level: logging.LevelDebug, Component: "progress"})
	h := NewHub(4)
	ch, cancel := h.Subscribe("job-7")
	defer cancel()

	Tee{h, NewLogSink(log)}.Publish("job-7", "sampling chain 1")

	assert.Equal(t, "sampling chain 1", recv(t, ch).Line)
	res := log.Query(logging.Query{JobID: "job-7"})
	require.Len(t, res.Entries, 1)
	assert.Equal(t, "engine progress", res.Entries[0].Message)
	assert.Equal(t, "sampling chain 1", res.Entries[0].Fields["line"])
}

func TestTruncate_KeepsRunesWhole(t *testing.T) {
	t.Parallel()

	line := strings.Repeat("→", 10) // three bytes each
	got := truncate(line, 8)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "→...", got)
	assert.Equal(t, "short", truncate("short", 8))
}
