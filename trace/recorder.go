// ════════════════════════════════════════════════════════════════════════════════════════════════
// Trace Recorder
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: rsp.Tracer writing into a Store
//
// Flow:
//   consumer thread ──Trace──▶ Ring ──drain goroutine──▶ batch ──▶ Store.Insert
//
// Trace never blocks: a full ring drops the record and counts it. The drain
// goroutine polls like a pinned ring consumer, spinning while records arrive
// and sleeping for a short interval once the ring goes quiet.
// ════════════════════════════════════════════════════════════════════════════════════════════════

package trace

import (
	"sync"
	"sync/atomic"
	"time"

	"rspq/constants"
	"rspq/control"
	"rspq/debug"
	"rspq/rsp"
	"rspq/utils"
)

// idleSleep is how long the drain goroutine sleeps on an empty ring.
const idleSleep = 500 * time.Microsecond

// drainSpins is the number of empty polls before the drain goroutine sleeps.
const drainSpins = 64

// Recorder buffers executed commands and persists them in batches.
type Recorder struct {
	ring  *Ring
	store *Store
	epoch time.Time

	dropped atomic.Uint64
	written atomic.Uint64

	stop     atomic.Bool
	done     chan struct{}
	once     sync.Once
	closeErr error
	err      error // first Insert failure, owned by the drain goroutine
}

var _ rsp.Tracer = (*Recorder)(nil)

// NewRecorder starts a recorder with a ring of size slots (a power of two,
// 0 for constants.TraceRingSize) writing into store.
func NewRecorder(store *Store, size int) *Recorder {
	if size == 0 {
		size = constants.TraceRingSize
	}
	r := &Recorder{
		ring:  NewRing(size),
		store: store,
		epoch: time.Now(),
		done:  make(chan struct{}),
	}
	go r.drain()
	return r
}

// Trace implements rsp.Tracer.
func (r *Recorder) Trace(ev rsp.Event) {
	var buf [RecordSize]byte
	rec := fromEvent(ev, int64(time.Since(r.epoch)))
	rec.encode(&buf)
	if !r.ring.Push(&buf) {
		r.dropped.Add(1)
	}
}

// Dropped returns how many records were lost to a full ring.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// Written returns how many records reached the store.
func (r *Recorder) Written() uint64 { return r.written.Load() }

// Close drains what is left in the ring, stops the drain goroutine and
// returns the first store error. The store stays open. Trace must not be
// called during or after Close.
func (r *Recorder) Close() error {
	r.once.Do(func() {
		r.stop.Store(true)
		<-r.done
		r.closeErr = r.err
		debug.DropMessage("TRACE", "recorded "+utils.Itoa(int(r.Written()))+
			" commands, dropped "+utils.Itoa(int(r.Dropped())))
	})
	return r.closeErr
}

func (r *Recorder) drain() {
	defer close(r.done)

	batch := make([]Record, 0, constants.TraceBatch)
	var miss int
	for {
		// Loaded before Pop: once stop is seen, an empty ring stays empty.
		stopping := r.stop.Load()
		if p, ok := r.ring.Pop(); ok {
			batch = append(batch, decode(&p))
			miss = 0
			if len(batch) == cap(batch) {
				batch = r.flush(batch)
			}
			continue
		}

		// Ring empty: publish the partial batch before idling.
		batch = r.flush(batch)
		if stopping {
			return
		}
		if miss++; miss < drainSpins {
			control.Relax()
			continue
		}
		miss = 0
		time.Sleep(idleSleep)
	}
}

func (r *Recorder) flush(batch []Record) []Record {
	if len(batch) == 0 {
		return batch
	}
	if err := r.store.Insert(batch); err != nil {
		if r.err == nil {
			r.err = err
			debug.DropError("TRACE", err)
		}
	} else {
		r.written.Add(uint64(len(batch)))
	}
	return batch[:0]
}
