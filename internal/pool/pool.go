// Package pool implements the runtime's slab allocator: four fixed-size
// classes (64, 128, 256, 512 bytes) backed by lock-free intrusive
// freelists, with allocations larger than the largest class falling
// through to the system allocator. Ported from the Viper runtime's
// rt_pool.c: tagged 64-bit freelist heads pack a 48-bit pointer and a
// 16-bit version counter so a popped-then-repushed block can never fool
// a concurrent CAS (the ABA hazard).
//
// Go has no raw pointer CAS, so the "pointer" half of the tag is an
// index into a per-class slab-local block table rather than a machine
// address, and a head packs a 32-bit index with a 32-bit version
// counter; the version-counter discipline and batch-push-on-slab-growth
// behavior are unchanged from the C original.
package pool

import (
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Class identifies one of the four fixed-size allocation buckets.
type Class int

const (
	Class64 Class = iota
	Class128
	Class256
	Class512
	classCount
)

var classSizes = [classCount]int{64, 128, 256, 512}

// MaxSize is the largest request the pool services itself; anything
// larger falls through to the system allocator.
const MaxSize = 512

// blocksPerSlab is the number of blocks carved out of one slab
// allocation, matching rt_pool.c's BLOCKS_PER_SLAB.
const blocksPerSlab = 64

// Block is a handle to a pool-managed allocation. The zero Block is not
// valid; only values returned by Alloc should be passed to Free.
type Block struct {
	data  []byte
	class Class
	large bool
}

// Bytes exposes the zeroed backing storage of the block.
func (b *Block) Bytes() []byte { return b.data }

// sizeToClass maps a requested size to a size class, or classCount if
// the request must fall back to the system allocator.
func sizeToClass(size int) Class {
	switch {
	case size <= 64:
		return Class64
	case size <= 128:
		return Class128
	case size <= 256:
		return Class256
	case size <= 512:
		return Class512
	default:
		return classCount
	}
}

// node is one freelist cell: it owns its backing bytes and links to the
// next free cell by index within the class's slab table. index 0 is
// reserved as the "nil" sentinel (matching a null pointer in the C
// original), so valid node indices start at 1.
type node struct {
	next int32 // index+1 of next free node, 0 = end of list
	data []byte
}

// taggedHead packs a 1-based node index (lower 32 bits) and a version
// counter (upper 32 bits) into one atomically-CASable word, mirroring
// rt_pool.c's pack_tagged_ptr/unpack_ptr/unpack_version.
type taggedHead uint64

func packHead(index int32, version uint32) taggedHead {
	return taggedHead(uint64(version)<<32 | uint64(uint32(index)))
}

func (t taggedHead) index() int32    { return int32(uint32(t)) }
func (t taggedHead) version() uint32 { return uint32(t >> 32) }

// classState is the per-size-class pool state: the lock-free freelist
// head, the growable node table (append-only, protected by a slab-growth
// CAS loop rather than a mutex), and best-effort usage counters.
type classState struct {
	head      atomic.Uint64 // taggedHead
	nodes     atomic.Pointer[[]node]
	allocated atomic.Int64
	freeCount atomic.Int64
	growing   atomic.Bool
}

// Pool is a complete four-class slab allocator. Construct it with New,
// which sets up each class's node table; the zero value is not usable.
type Pool struct {
	classes [classCount]classState
	log     *zap.SugaredLogger
}

// New builds a Pool. log may be nil, in which case slab-growth events are
// not traced.
func New(log *zap.SugaredLogger) *Pool {
	p := &Pool{log: log}
	for i := range p.classes {
		empty := make([]node, 1) // index 0 reserved as sentinel
		p.classes[i].nodes.Store(&empty)
	}
	return p
}

// Alloc returns a zeroed block. Requests of MaxSize bytes or less are
// served from the matching size class; larger requests fall through to
// the system allocator (via make, Go's equivalent of malloc here) and
// are marked "large" so Free knows to simply drop the reference.
func (p *Pool) Alloc(size int) (*Block, error) {
	if size <= 0 {
		size = 1
	}
	class := sizeToClass(size)
	if class >= classCount {
		return &Block{data: make([]byte, size), large: true}, nil
	}

	cs := &p.classes[class]
	if idx := p.pop(cs); idx != 0 {
		nodes := *cs.nodes.Load()
		blk := nodes[idx].data
		for i := range blk {
			blk[i] = 0
		}
		cs.allocated.Add(1)
		return &Block{data: blk, class: class}, nil
	}

	if err := p.growSlab(cs, class); err != nil {
		return nil, errors.Wrapf(err, "pool: grow size class %d", classSizes[class])
	}
	idx := p.pop(cs)
	if idx == 0 {
		// Growth succeeded but the race left nothing for us: another
		// allocator drained the freshly pushed slab before we could pop.
		// Retry growth once; never return null without trying the fresh
		// slab at least once more (never partially initialize).
		if err := p.growSlab(cs, class); err != nil {
			return nil, errors.Wrapf(err, "pool: grow size class %d (retry)", classSizes[class])
		}
		idx = p.pop(cs)
		if idx == 0 {
			return nil, errors.Errorf("pool: size class %d exhausted after growth", classSizes[class])
		}
	}
	nodes := *cs.nodes.Load()
	blk := nodes[idx].data
	for i := range blk {
		blk[i] = 0
	}
	cs.allocated.Add(1)
	return &Block{data: blk, class: class}, nil
}

// Free returns a block to its size class freelist (clearing its contents
// for debuggability, matching rt_pool_free), or releases it to the
// system allocator if it was a large, non-pooled allocation.
func (p *Pool) Free(b *Block) {
	if b == nil {
		return
	}
	for i := range b.data {
		b.data[i] = 0
	}
	if b.large {
		return
	}
	cs := &p.classes[b.class]
	nodes := *cs.nodes.Load()
	idx := p.indexOf(nodes, b.data)
	if idx == 0 {
		return
	}
	p.push(cs, idx)
	cs.allocated.Add(-1)
}

func (p *Pool) indexOf(nodes []node, data []byte) int32 {
	// Slabs grow monotonically and blocks never move, so identity on the
	// backing array's first element pointer is stable for the block's
	// lifetime; a linear scan keeps this package free of unsafe pointer
	// arithmetic while preserving O(slab count) cost, which is bounded by
	// how many times this class has grown, not by live allocation count.
	for i := 1; i < len(nodes); i++ {
		if &nodes[i].data[0] == &data[0] {
			return int32(i)
		}
	}
	return 0
}

// pop removes one node from the freelist using the tagged-pointer CAS
// loop from rt_pool.c's pop_from_freelist. Returns 0 if the freelist is
// empty.
func (p *Pool) pop(cs *classState) int32 {
	for {
		old := taggedHead(cs.head.Load())
		idx := old.index()
		if idx == 0 {
			return 0
		}
		nodes := *cs.nodes.Load()
		next := nodes[idx].next
		newHead := packHead(next, old.version()+1)
		if cs.head.CompareAndSwap(uint64(old), uint64(newHead)) {
			cs.freeCount.Add(-1)
			return idx
		}
		// CAS failed: another thread mutated the head first; reread and retry.
	}
}

// push returns one node to the freelist, mirroring push_to_freelist.
func (p *Pool) push(cs *classState, idx int32) {
	for {
		old := taggedHead(cs.head.Load())
		nodes := *cs.nodes.Load()
		nodes[idx].next = old.index()
		newHead := packHead(idx, old.version()+1)
		if cs.head.CompareAndSwap(uint64(old), uint64(newHead)) {
			cs.freeCount.Add(1)
			return
		}
	}
}

// growSlab allocates blocksPerSlab new cells, appends them to the node
// table under a CAS retry loop (so a losing thread's slab is never
// orphaned — it simply retries against the winner's already-grown
// table), then batch-pushes every new cell onto the freelist.
func (p *Pool) growSlab(cs *classState, class Class) error {
	size := classSizes[class]
	fresh := make([]node, blocksPerSlab)
	for i := range fresh {
		fresh[i].data = make([]byte, size)
	}

	var base int32
	for {
		old := cs.nodes.Load()
		oldSlice := *old
		base = int32(len(oldSlice))
		grown := make([]node, len(oldSlice)+blocksPerSlab)
		copy(grown, oldSlice)
		copy(grown[base:], fresh)
		if cs.nodes.CompareAndSwap(old, &grown) {
			break
		}
		// Lost the race for this growth slot; another thread already grew
		// the table. Retry against the new table rather than orphaning our
		// freshly allocated cells — they get linked in on the next loop.
	}

	if p.log != nil {
		p.log.Debugw("pool slab grown", "class_bytes", size, "new_blocks", blocksPerSlab, "base_index", base)
	}

	// Batch-link the fresh range onto the freelist, chaining them to each
	// other first so the CAS only needs to splice one chain onto the head.
	nodes := *cs.nodes.Load()
	first := base
	last := base + blocksPerSlab - 1
	for i := first; i < last; i++ {
		nodes[i].next = i + 1
	}
	for {
		old := taggedHead(cs.head.Load())
		nodes[last].next = old.index()
		newHead := packHead(first, old.version()+1)
		if cs.head.CompareAndSwap(uint64(old), uint64(newHead)) {
			break
		}
	}
	cs.freeCount.Add(blocksPerSlab)
	return nil
}

// Stats reports (in_use, on_freelist) for a size class.
func (p *Pool) Stats(class Class) (inUse, onFreelist int64) {
	if class >= classCount {
		return 0, 0
	}
	cs := &p.classes[class]
	return cs.allocated.Load(), cs.freeCount.Load()
}

// Shutdown drops every slab. The caller must ensure no live allocations
// remain; this does not zero or validate in-use counts, matching
// rt_pool_shutdown's documented precondition.
func (p *Pool) Shutdown() {
	for i := range p.classes {
		empty := make([]node, 1)
		p.classes[i].nodes.Store(&empty)
		p.classes[i].head.Store(0)
		p.classes[i].allocated.Store(0)
		p.classes[i].freeCount.Store(0)
	}
}
