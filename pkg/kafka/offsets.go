package kafka

import (
	"sync"

	"github.com/segmentio/kafka-go"
)

// offsetTracker orders commits per partition. Workers finish messages out of
// order, but a partition's committed offset only advances over a contiguous
// run of finished messages, so an unfinished message is always redelivered.
type offsetTracker struct {
	mu         sync.Mutex
	partitions map[int]*partitionOffsets
}

type partitionOffsets struct {
	// pending holds fetched messages not yet covered by a commit, in fetch
	// (and therefore offset) order.
	pending []kafka.Message
	done    map[int64]struct{}
}

func newOffsetTracker() *offsetTracker {
	return &offsetTracker{partitions: make(map[int]*partitionOffsets)}
}

// track registers msg as in flight. It must be called in fetch order.
func (t *offsetTracker) track(msg kafka.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.partitions[msg.Partition]
	if !ok {
		p = &partitionOffsets{done: make(map[int64]struct{})}
		t.partitions[msg.Partition] = p
	}
	p.pending = append(p.pending, msg)
}

// complete marks msg finished and returns the highest message that can now
// be committed for its partition, if the commit point moved.
func (t *offsetTracker) complete(msg kafka.Message) (kafka.Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.partitions[msg.Partition]
	if !ok {
		return kafka.Message{}, false
	}
	p.done[msg.Offset] = struct{}{}

	var last kafka.Message
	advanced := false
	for len(p.pending) > 0 {
		head := p.pending[0]
		if _, finished := p.done[head.Offset]; !finished {
			break
		}
		delete(p.done, head.Offset)
		p.pending = p.pending[1:]
		last, advanced = head, true
	}
	return last, advanced
}
