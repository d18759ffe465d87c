package events

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Envelope is the durable, replayable form of an emitted Event: its type,
// its flattened string attributes (if it exposes any), and the sequence
// number a subscriber's cursor resumes from.
type Envelope struct {
	Seq       uint64            `json:"seq"`
	Type      string            `json:"type"`
	Attrs     map[string]string `json:"attrs,omitempty"`
	Timestamp int64             `json:"timestamp"`
}

// attributer is implemented by events that expose a flattened string map
// (every event in native/treasury does); events that don't still stream,
// just without Attrs populated.
type attributer interface {
	Attributes() map[string]string
}

// Stream is an Emitter that appends every event to a durable LevelDB log
// and fans it out to live subscribers, the same append-log-plus-broadcast
// shape the reverse-proxy gateway's POS finality stream uses over its
// node's in-memory subscription, adapted to a persistent backing store so
// a subscriber can resume from any past sequence number after a restart.
type Stream struct {
	db *leveldb.DB

	mu    sync.Mutex
	seq   uint64
	subs  map[uint64]chan Envelope
	subID uint64
}

// NewStream opens (or creates) the durable event log at path.
func NewStream(path string) (*Stream, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	s := &Stream{db: db, subs: make(map[uint64]chan Envelope)}
	s.seq = s.lastSeq()
	return s, nil
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

func (s *Stream) lastSeq() uint64 {
	iter := s.db.NewIterator(nil, nil)
	defer iter.Release()
	if !iter.Last() {
		return 0
	}
	return binary.BigEndian.Uint64(iter.Key())
}

// Emit implements events.Emitter: it appends the event to the durable log
// under the next sequence number, then delivers it to every live
// subscriber on a best-effort basis (a slow subscriber drops envelopes
// rather than blocking the caller emitting them).
func (s *Stream) Emit(evt Event) {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	env := Envelope{Seq: seq, Type: evt.EventType(), Timestamp: time.Now().Unix()}
	if a, ok := evt.(attributer); ok {
		env.Attrs = a.Attributes()
	}
	data, err := json.Marshal(env)
	if err == nil {
		_ = s.db.Put(seqKey(seq), data, nil)
	}
	subs := make([]chan Envelope, 0, len(s.subs))
	for _, ch := range s.subs {
		subs = append(subs, ch)
	}
	s.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- env:
		default:
		}
	}
}

// Subscribe returns every envelope recorded after cursor (0 replays the
// whole log) as a backlog slice, then a channel of envelopes emitted from
// that point on. Calling cancel stops delivery and releases the
// subscription; it must be called once the caller is done.
func (s *Stream) Subscribe(ctx context.Context, cursor uint64) (updates <-chan Envelope, cancel func(), backlog []Envelope, err error) {
	rng := &util.Range{Start: seqKey(cursor + 1)}
	iter := s.db.NewIterator(rng, nil)
	for iter.Next() {
		var env Envelope
		if err := json.Unmarshal(iter.Value(), &env); err == nil {
			backlog = append(backlog, env)
		}
	}
	iter.Release()

	ch := make(chan Envelope, 64)
	s.mu.Lock()
	s.subID++
	id := s.subID
	s.subs[id] = ch
	s.mu.Unlock()

	cancel = func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return ch, cancel, backlog, nil
}

// Close releases the underlying database handle.
func (s *Stream) Close() error {
	return s.db.Close()
}

var _ Emitter = (*Stream)(nil)
