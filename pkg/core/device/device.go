// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package device simulates the execution model of a GPU-like accelerator on the CPU.
//
// A launch runs a grid of blocks. Blocks are fully independent and are scheduled on a worker
// pool in any order, serially or concurrently. Each block runs BlockSize threads (goroutines)
// that share one value (the block "shared memory") and one barrier, see Thread.Sync.
// Thread registers are simply local variables of the kernel function.
package device

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/igemm/internal/workerspool"
	"github.com/gomlx/igemm/pkg/support/xsync"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Device runs kernel launches. It is safe for concurrent use: concurrent launches share the
// worker pool.
type Device struct {
	name string
	pool *workerspool.Pool

	numLaunches atomic.Int64
}

// New creates a Device that runs up to runtime.NumCPU() blocks in parallel.
func New() *Device {
	return NewWithParallelism(runtime.NumCPU())
}

// NewWithParallelism creates a Device that runs up to parallelism blocks at the same time.
// If parallelism is 0 blocks run one at a time, in order of block id, in the launching goroutine.
// If parallelism is negative, there is no limit.
func NewWithParallelism(parallelism int) *Device {
	return &Device{
		name: fmt.Sprintf("cpu(parallelism=%d)", parallelism),
		pool: workerspool.NewWithParallelism(parallelism),
	}
}

// String implements fmt.Stringer.
func (d *Device) String() string { return d.name }

// Parallelism returns the soft limit of blocks running in parallel.
func (d *Device) Parallelism() int { return d.pool.MaxParallelism() }

// Pool returns the worker pool used to schedule blocks. It can be used by host-side code
// (e.g.: reference implementations) to parallelize work on the same budget.
func (d *Device) Pool() *workerspool.Pool { return d.pool }

// NumLaunches returns the number of launches started on the device so far.
func (d *Device) NumLaunches() int64 { return d.numLaunches.Load() }

// Grid describes the shape of a launch.
type Grid struct {
	// NumBlocks is the number of blocks, identified by 0 <= blockID < NumBlocks.
	NumBlocks int

	// BlockSize is the number of threads per block, identified by 0 <= threadID < BlockSize.
	BlockSize int

	// SharedBytes is the size of the block's shared value, informative only (used for logging).
	SharedBytes int
}

// Validate checks the grid is well-formed.
func (g Grid) Validate() error {
	if g.NumBlocks <= 0 || g.BlockSize <= 0 {
		return errors.Errorf("invalid grid: NumBlocks=%d and BlockSize=%d must be > 0", g.NumBlocks, g.BlockSize)
	}
	return nil
}

// Thread is the handle a kernel function receives for one thread of one block.
type Thread struct {
	BlockID, ThreadID, BlockSize int
	barrier                      *xsync.Barrier
}

// errAborted is the panic value used to unwind a thread whose block barrier was broken
// by a failure in another thread.
var errAborted = errors.New("thread aborted: another thread of the block failed")

// Sync is the block-wide barrier: it returns when all threads of the block called it.
// Every write to the shared value issued before Sync is visible to every thread after it.
//
// If another thread of the block failed, Sync unwinds the calling thread with a panic that
// Launch recovers.
func (th *Thread) Sync() {
	if th.barrier.Wait() != nil {
		panic(errAborted)
	}
}

// KernelFn is the function run by every thread of every block. shared is the block's shared
// value, the same for every thread of the block.
type KernelFn[S any] func(th *Thread, shared S)

// Launch runs the kernel over the grid and returns when all dispatched blocks finished.
//
// newShared is called once per block, before its threads start, to allocate the block's
// shared value.
//
// A panic in any thread is converted to the returned error (the first one, if more than one
// block fails). If ctx is cancelled, blocks not yet started are skipped and ctx.Err() is
// returned; blocks already running finish normally.
func Launch[S any](ctx context.Context, dev *Device, grid Grid, newShared func(blockID int) S, kernel KernelFn[S]) error {
	if err := grid.Validate(); err != nil {
		return err
	}
	launchID := dev.numLaunches.Add(1)
	start := time.Now()
	if klog.V(1).Enabled() {
		klog.Infof("device %s: launch #%d: %d blocks x %d threads, %s shared per block",
			dev, launchID, grid.NumBlocks, grid.BlockSize, humanize.IBytes(uint64(grid.SharedBytes)))
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	setErr := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
		}
	}
	var dispatchErr error
	for blockID := range grid.NumBlocks {
		wg.Add(1)
		err := dev.pool.WaitToStart(ctx, func() {
			defer wg.Done()
			if err := runBlock(blockID, grid.BlockSize, newShared, kernel); err != nil {
				setErr(err)
			}
		})
		if err != nil {
			wg.Done()
			dispatchErr = err
			break
		}
	}
	wg.Wait()
	if firstErr != nil {
		return errors.WithMessagef(firstErr, "launch #%d failed", launchID)
	}
	if dispatchErr != nil {
		return dispatchErr
	}
	klog.V(1).Infof("device %s: launch #%d done in %s", dev, launchID, time.Since(start))
	return nil
}

// runBlock runs all the threads of one block and waits for them.
func runBlock[S any](blockID, blockSize int, newShared func(blockID int) S, kernel KernelFn[S]) error {
	var shared S
	if exception := exceptions.Try(func() { shared = newShared(blockID) }); exception != nil {
		return errors.Errorf("block %d: failed to allocate shared value: %v", blockID, exception)
	}
	barrier := xsync.NewBarrier(blockSize)
	threadErrs := make([]error, blockSize)
	var wg sync.WaitGroup
	for threadID := range blockSize {
		wg.Add(1)
		go func() {
			defer wg.Done()
			th := &Thread{BlockID: blockID, ThreadID: threadID, BlockSize: blockSize, barrier: barrier}
			exception := exceptions.Try(func() { kernel(th, shared) })
			if exception == nil {
				return
			}
			barrier.Break()
			if err, ok := exception.(error); ok {
				if errors.Is(err, errAborted) {
					return
				}
				threadErrs[threadID] = errors.WithMessagef(err, "block %d, thread %d", blockID, threadID)
				return
			}
			threadErrs[threadID] = errors.Errorf("block %d, thread %d: panic: %v", blockID, threadID, exception)
		}()
	}
	wg.Wait()
	for _, err := range threadErrs {
		if err != nil {
			return err
		}
	}
	return nil
}
