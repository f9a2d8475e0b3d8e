package messaging

import (
	"sync"

	"github.com/segmentio/kafka-go"
)

type partitionKey struct {
	topic     string
	partition int
}

type partitionOffsets struct {
	inflight []kafka.Message // fetch order
	done     map[int64]bool
}

// offsetTracker releases a partition's offset for commit only once every
// earlier offset fetched from that partition has been handled, so a crash
// never skips an unhandled message.
type offsetTracker struct {
	mu         sync.Mutex
	partitions map[partitionKey]*partitionOffsets
}

func newOffsetTracker() *offsetTracker {
	return &offsetTracker{partitions: make(map[partitionKey]*partitionOffsets)}
}

// track registers a fetched message. Must be called in fetch order.
func (t *offsetTracker) track(m kafka.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := partitionKey{topic: m.Topic, partition: m.Partition}
	p, ok := t.partitions[key]
	if !ok {
		p = &partitionOffsets{done: make(map[int64]bool)}
		t.partitions[key] = p
	}
	p.inflight = append(p.inflight, m)
}

// complete marks m handled and returns the highest contiguous handled
// message of its partition, if the contiguous prefix advanced.
func (t *offsetTracker) complete(m kafka.Message) (kafka.Message, bool) {
	key := partitionKey{topic: m.Topic, partition: m.Partition}
	p, ok := t.partitions[key]
	if !ok {
		return kafka.Message{}, false
	}
	p.done[m.Offset] = true

	var (
		last     kafka.Message
		advanced bool
	)
	for len(p.inflight) > 0 && p.done[p.inflight[0].Offset] {
		last = p.inflight[0]
		delete(p.done, last.Offset)
		p.inflight = p.inflight[1:]
		advanced = true
	}
	return last, advanced
}

// ack completes m and runs commit for the released offset. The lock is held
// across commit so released offsets reach the broker in increasing order.
func (t *offsetTracker) ack(m kafka.Message, commit func(kafka.Message) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	last, ok := t.complete(m)
	if !ok {
		return nil
	}
	return commit(last)
}
