// Package sharedmem implements the versioned shared-memory registry: block
// allocation, single-writer/multi-reader access, replica-placement
// bookkeeping, and reference-counted release.
package sharedmem

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/CamiloWG/adhocfabric/internal/ids"
	"github.com/CamiloWG/adhocfabric/internal/logging"
)

var (
	ErrTableFull    = errors.New("sharedmem: block table at capacity")
	ErrNotFound     = errors.New("sharedmem: block not found")
	ErrOutOfBounds  = errors.New("sharedmem: offset+len exceeds block size")
	ErrReplicaLimit = errors.New("sharedmem: replica set at capacity")
)

// block is the table's internal entry; its own RWMutex is the per-block
// writer/reader lock, always acquired only after the table guard is
// released.
type block struct {
	rw sync.RWMutex

	blockID      ids.BlockID
	ownerNode    ids.NodeID
	data         []byte
	version      uint64
	refCount     int
	replicaNodes []ids.NodeID
	isReplicated bool
}

// MemoryBlock is a read-only snapshot of a block's metadata (no data buffer,
// to keep snapshots cheap; Read() is the data-bearing accessor).
type MemoryBlock struct {
	BlockID      ids.BlockID
	OwnerNode    ids.NodeID
	Size         int
	Version      uint64
	RefCount     int
	ReplicaNodes []ids.NodeID
	IsReplicated bool
}

// Registry is the guarded block table.
type Registry struct {
	mu           sync.Mutex
	blocks       map[ids.BlockID]*block
	counter      ids.Counter
	localID      ids.NodeID
	maxBlocks    int
	replicaLimit int
	log          *zap.SugaredLogger
}

// New constructs a block registry bound to the local node id, capped at
// maxBlocks entries with the given per-block replica-set capacity.
func New(localID ids.NodeID, maxBlocks, replicaLimit int) *Registry {
	return &Registry{
		blocks:       make(map[ids.BlockID]*block, maxBlocks),
		localID:      localID,
		maxBlocks:    maxBlocks,
		replicaLimit: replicaLimit,
		log:          logging.Named("sharedmem"),
	}
}

// Allocate mints a new block_id, zero-initializes a buffer of size bytes,
// and sets owner_node to local, version to 1, ref_count to 1.
func (r *Registry) Allocate(size int) (ids.BlockID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.blocks) >= r.maxBlocks {
		return 0, ErrTableFull
	}

	id := ids.BlockID(r.counter.Next())
	r.blocks[id] = &block{
		blockID:   id,
		ownerNode: r.localID,
		data:      make([]byte, size),
		version:   1,
		refCount:  1,
	}
	return id, nil
}

func (r *Registry) lookup(id ids.BlockID) (*block, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.blocks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return b, nil
}

// Write acquires the block's writer lock, bounds-checks, copies, and bumps
// version — all under the writer lock so readers never observe a torn write.
func (r *Registry) Write(id ids.BlockID, data []byte, offset int) error {
	b, err := r.lookup(id)
	if err != nil {
		return err
	}

	b.rw.Lock()
	defer b.rw.Unlock()

	if offset < 0 || offset+len(data) > len(b.data) {
		return ErrOutOfBounds
	}
	copy(b.data[offset:], data)
	b.version++
	return nil
}

// Read acquires the block's reader lock, bounds-checks, and copies into buf.
// Multiple concurrent readers are permitted; none proceed while a writer
// holds the block.
func (r *Registry) Read(id ids.BlockID, buf []byte, offset int) error {
	b, err := r.lookup(id)
	if err != nil {
		return err
	}

	b.rw.RLock()
	defer b.rw.RUnlock()

	if offset < 0 || offset+len(buf) > len(b.data) {
		return ErrOutOfBounds
	}
	copy(buf, b.data[offset:offset+len(buf)])
	return nil
}

// RecordReplica appends target to the block's replica set, idempotent by
// (block_id, target_node): a repeat call changes nothing.
func (r *Registry) RecordReplica(id ids.BlockID, target ids.NodeID) error {
	b, err := r.lookup(id)
	if err != nil {
		return err
	}

	b.rw.Lock()
	defer b.rw.Unlock()

	for _, existing := range b.replicaNodes {
		if existing == target {
			return nil
		}
	}
	if len(b.replicaNodes) >= r.replicaLimit {
		return ErrReplicaLimit
	}
	b.replicaNodes = append(b.replicaNodes, target)
	b.isReplicated = true
	return nil
}

// Release decrements ref_count; at zero the buffer is freed and the entry
// removed. Subsequent operations on the id return ErrNotFound.
func (r *Registry) Release(id ids.BlockID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.blocks[id]
	if !ok {
		return ErrNotFound
	}
	b.refCount--
	if b.refCount <= 0 {
		delete(r.blocks, id)
	}
	return nil
}

// Describe returns a metadata snapshot for one block.
func (r *Registry) Describe(id ids.BlockID) (MemoryBlock, error) {
	b, err := r.lookup(id)
	if err != nil {
		return MemoryBlock{}, err
	}
	b.rw.RLock()
	defer b.rw.RUnlock()
	return MemoryBlock{
		BlockID:      b.blockID,
		OwnerNode:    b.ownerNode,
		Size:         len(b.data),
		Version:      b.version,
		RefCount:     b.refCount,
		ReplicaNodes: append([]ids.NodeID(nil), b.replicaNodes...),
		IsReplicated: b.isReplicated,
	}, nil
}

// Stats reports table occupancy for the metrics surface.
type Stats struct {
	Size int
}

func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{Size: len(r.blocks)}
}
