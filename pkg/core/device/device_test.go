// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package device

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLaunch(t *testing.T) {
	for _, parallelism := range []int{0, 1, 4, -1} {
		t.Run(fmt.Sprintf("parallelism=%d", parallelism), func(t *testing.T) {
			dev := NewWithParallelism(parallelism)
			grid := Grid{NumBlocks: 7, BlockSize: 16}
			out := make([]int, grid.NumBlocks*grid.BlockSize)

			// Every thread writes its slot of the shared buffer, syncs, and then reads its
			// neighbor's slot: only correct if Sync is a full block-wide barrier.
			err := Launch(context.Background(), dev, grid,
				func(blockID int) []int { return make([]int, grid.BlockSize) },
				func(th *Thread, shared []int) {
					for round := range 3 {
						shared[th.ThreadID] = th.BlockID*1000 + th.ThreadID*10 + round
						th.Sync()
						neighbor := (th.ThreadID + 1) % th.BlockSize
						out[th.BlockID*th.BlockSize+th.ThreadID] = shared[neighbor]
						th.Sync()
					}
				})
			require.NoError(t, err)
			for blockID := range grid.NumBlocks {
				for threadID := range grid.BlockSize {
					neighbor := (threadID + 1) % grid.BlockSize
					require.Equal(t, blockID*1000+neighbor*10+2, out[blockID*grid.BlockSize+threadID])
				}
			}
			assert.Equal(t, int64(1), dev.NumLaunches())
		})
	}
}

func TestLaunchSerialOrder(t *testing.T) {
	dev := NewWithParallelism(0)
	var mu sync.Mutex
	var order []int
	require.NoError(t, Launch(context.Background(), dev, Grid{NumBlocks: 5, BlockSize: 2},
		func(blockID int) struct{} { return struct{}{} },
		func(th *Thread, _ struct{}) {
			if th.ThreadID == 0 {
				mu.Lock()
				order = append(order, th.BlockID)
				mu.Unlock()
			}
		}))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestLaunchPanic(t *testing.T) {
	dev := NewWithParallelism(2)
	var completed atomic.Int32
	err := Launch(context.Background(), dev, Grid{NumBlocks: 3, BlockSize: 8},
		func(blockID int) struct{} { return struct{}{} },
		func(th *Thread, _ struct{}) {
			if th.BlockID == 1 && th.ThreadID == 5 {
				panic("boom")
			}
			// Other threads of block 1 would wait here forever if the barrier were not broken.
			th.Sync()
			completed.Add(1)
		})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "block 1, thread 5")
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, int32(2*8), completed.Load())
}

func TestLaunchCancelled(t *testing.T) {
	dev := NewWithParallelism(1)
	ctx, cancel := context.WithCancel(context.Background())
	var started atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- Launch(ctx, dev, Grid{NumBlocks: 100, BlockSize: 1},
			func(blockID int) struct{} { return struct{}{} },
			func(th *Thread, _ struct{}) {
				if started.Add(1) == 1 {
					cancel()
				}
				time.Sleep(time.Millisecond)
			})
	}()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("launch didn't stop after cancellation")
	}
	assert.Less(t, int(started.Load()), 100)
}

func TestGridValidate(t *testing.T) {
	require.Error(t, Grid{NumBlocks: 0, BlockSize: 1}.Validate())
	require.Error(t, Grid{NumBlocks: 1, BlockSize: 0}.Validate())
	require.NoError(t, Grid{NumBlocks: 1, BlockSize: 1}.Validate())
	err := Launch(context.Background(), New(), Grid{}, func(int) int { return 0 }, func(*Thread, int) {})
	require.Error(t, err)
}
