// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package gridwise implements the implicit-GEMM convolution kernel: the partition of the output
// in block tiles, and the per-thread control loop that stages input and weight tiles in shared
// memory, accumulates them with the blockwise GEMM, and writes the accumulators to the output.
//
// Tensors use the layouts: input [C, Hi, Wi, N], weights [C, Y, X, K] and output
// [K, Ho, Wo, N], with stride 1 and Ho = Hi + leftPad + rightPad - Y + 1 (same for Wo).
//
// Example:
//
//	cfg := must.M1(gridwise.Preset("default"))
//	cv, err := gridwise.NewConvolution[float32, float32](cfg, inDesc, weiDesc, outDesc, leftPads, rightPads)
//	if err != nil { ... }  // errors.Is(err, gridwise.ErrInapplicable) if cfg doesn't fit.
//	err = cv.Launch(ctx, device.New(), in, wei, out)
package gridwise

import (
	"context"

	"github.com/gomlx/igemm/pkg/core/blockwise"
	"github.com/gomlx/igemm/pkg/core/device"
	"github.com/gomlx/igemm/pkg/core/numeric"
	"github.com/gomlx/igemm/pkg/core/tensordesc"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// InputView is the view of the input tensor the tile copy reads from.
type InputView int

//go:generate go tool enumer -type InputView -trimprefix=InputView -output=gen_inputview_enumer.go kernel.go

const (
	// InputViewNative reads the input descriptor as is: used when there is no padding.
	InputViewNative InputView = iota

	// InputViewPadded reads the input through a Pad transform of the spatial dimensions.
	InputViewPadded
)

// Convolution is a convolution kernel specialized for one configuration, one problem shape
// and the element type T, accumulating in A.
//
// It is immutable after construction and can be launched concurrently.
type Convolution[T numeric.Element, A numeric.Accumulator] struct {
	cfg       Config
	dims      Dims
	inputView InputView

	// Global tensors: inView is the input as read by the tile copy, weiCK is the [C, K] weight
	// slice of one filter tap, positioned by weiTapOffsets[y*X+x].
	in, wei, out  tensordesc.Descriptor
	inView        tensordesc.Descriptor
	weiCK         tensordesc.Descriptor
	weiTapOffsets []int

	// Shared staging tiles and thread registers.
	inBlock, weiBlock tensordesc.Descriptor
	registers         tensordesc.Descriptor

	partitioner *Partitioner
	inCopy      *blockwise.TileCopy[T]
	weiCopy     *blockwise.TileCopy[T]
	gemm        *blockwise.BatchedGemm[T, A]
	writeback   *writeback[T, A]

	observer PhaseObserver
}

// NewConvolution builds every descriptor and helper of the kernel and validates every static
// precondition.
//
// in, wei and out must be native descriptors of the input [C, Hi, Wi, N], weights
// [C, Y, X, K] and output [K, Ho, Wo, N]. leftPads and rightPads are the zero padding of the
// input spatial dimensions (H, W).
//
// It returns an error wrapping ErrInapplicable if the configuration can't be used for the
// problem, or a plain error if the descriptors are inconsistent.
func NewConvolution[T numeric.Element, A numeric.Accumulator](cfg Config, in, wei, out tensordesc.Descriptor,
	leftPads, rightPads [2]int) (*Convolution[T, A], error) {
	for _, tensor := range []struct {
		name string
		desc tensordesc.Descriptor
	}{{"input", in}, {"weights", wei}, {"output", out}} {
		if tensor.desc.Rank() != 4 || !tensor.desc.IsNative() {
			return nil, errors.Errorf("gridwise.NewConvolution: %s must be a native rank-4 descriptor, got %s", tensor.name, tensor.desc)
		}
	}
	dims := Dims{
		N: in.Length(3), C: in.Length(0), Hi: in.Length(1), Wi: in.Length(2),
		K: wei.Length(3), Y: wei.Length(1), X: wei.Length(2),
		Ho: out.Length(1), Wo: out.Length(2),
	}
	for dim := range 2 {
		if leftPads[dim] < 0 || rightPads[dim] < 0 {
			return nil, errors.Errorf("gridwise.NewConvolution: pads must be >= 0, got left=%v, right=%v", leftPads, rightPads)
		}
	}
	if wei.Length(0) != dims.C || out.Length(0) != dims.K || out.Length(3) != dims.N ||
		dims.Ho != dims.Hi+leftPads[0]+rightPads[0]-dims.Y+1 || dims.Wo != dims.Wi+leftPads[1]+rightPads[1]-dims.X+1 {
		return nil, errors.Errorf("gridwise.NewConvolution: inconsistent shapes: input %v, weights %v, output %v, pads left=%v, right=%v",
			in.Lengths(), wei.Lengths(), out.Lengths(), leftPads, rightPads)
	}
	if err := cfg.Validate(dims); err != nil {
		return nil, err
	}

	cv := &Convolution[T, A]{
		cfg:  cfg,
		dims: dims,
		in:   in,
		wei:  wei,
		out:  out,
	}
	inapplicable := func(err error, what string) error {
		return errors.WithMessagef(ErrInapplicable, "%s: %v", what, err)
	}
	var err error

	// Input view: the padding is resolved here, once, not in the kernel.
	cv.inView = in
	if leftPads != [2]int{} || rightPads != [2]int{} {
		cv.inputView = InputViewPadded
		pad, err := tensordesc.NewPad([]int{dims.Hi, dims.Wi}, leftPads[:], rightPads[:])
		if err != nil {
			return nil, err
		}
		cv.inView, err = tensordesc.Transformed(in,
			tensordesc.Step{Transform: tensordesc.PassThrough{Length: dims.C}, LowerDims: []int{0}, UpperDims: []int{0}},
			tensordesc.Step{Transform: pad, LowerDims: []int{1, 2}, UpperDims: []int{1, 2}},
			tensordesc.Step{Transform: tensordesc.PassThrough{Length: dims.N}, LowerDims: []int{3}, UpperDims: []int{3}})
		if err != nil {
			return nil, err
		}
	}

	// Weights of one tap.
	cv.weiCK = wei.Extract(0, 3)
	cv.weiTapOffsets = make([]int, dims.Y*dims.X)
	for y := range dims.Y {
		for x := range dims.X {
			cv.weiTapOffsets[y*dims.X+x] = wei.Offset(0, y, x, 0)
		}
	}

	// Shared tiles and registers.
	align := cfg.SharedAlignment()
	cv.inBlock = tensordesc.MakeAligned(align, cfg.CPerBlock, cfg.HoPerBlock, cfg.WoPerBlock, cfg.NPerBlock)
	cv.weiBlock = tensordesc.MakeAligned(align, cfg.CPerBlock, cfg.KPerBlock)
	cv.registers = tensordesc.MakePacked(cfg.KPerThread, cfg.HoPerThread, cfg.WoPerThread, cfg.NPerThread)

	cv.partitioner, err = NewPartitioner(
		KHWN{K: dims.K, Ho: dims.Ho, Wo: dims.Wo, N: dims.N},
		KHWN{K: cfg.KPerBlock, Ho: cfg.HoPerBlock, Wo: cfg.WoPerBlock, N: cfg.NPerBlock})
	if err != nil {
		return nil, inapplicable(err, "partition")
	}
	cv.inCopy, err = blockwise.NewTileCopy[T](cfg.BlockSize, cv.inView, cv.inBlock,
		[]int{cfg.CPerBlock, cfg.HoPerBlock, cfg.WoPerBlock, cfg.NPerBlock},
		cfg.InBlockCopySubLengths[:], cfg.InBlockCopyClusterLengths[:], 3, cfg.InBlockCopyDataPerAccessN)
	if err != nil {
		return nil, inapplicable(err, "input tile copy")
	}
	cv.weiCopy, err = blockwise.NewTileCopy[T](cfg.BlockSize, cv.weiCK, cv.weiBlock,
		[]int{cfg.CPerBlock, cfg.KPerBlock},
		cfg.WeiBlockCopySubLengths[:], cfg.WeiBlockCopyClusterLengths[:], 1, cfg.WeiBlockCopyDataPerAccessK)
	if err != nil {
		return nil, inapplicable(err, "weight tile copy")
	}
	cv.gemm, err = blockwise.NewBatchedGemm[T, A](blockwise.GemmConfig{
		BlockSize:      cfg.BlockSize,
		K:              cfg.CPerBlock,
		M:              cfg.KPerBlock,
		N:              cfg.WoPerBlock * cfg.NPerBlock,
		RowStrideA:     cv.weiBlock.Stride(0),
		RowStrideB:     cv.inBlock.Stride(0),
		BatchStrideA:   0,
		BatchStrideB:   cv.inBlock.Stride(1),
		BatchSize:      cfg.HoPerBlock,
		BatchPerThread: cfg.HoPerThread,
		MPerThread:     cfg.KPerThread,
		NPerThread:     cfg.WoPerThread * cfg.NPerThread,
		RowStrideC:     cv.registers.Stride(0),
		BatchStrideC:   cv.registers.Stride(1),
		MPerThreadSubC: cfg.GemmMPerThreadSubC,
		NPerThreadSubC: cfg.GemmNPerThreadSubC,
		MLevel0Cluster: cfg.GemmMLevel0Cluster,
		NLevel0Cluster: cfg.GemmNLevel0Cluster,
		MLevel1Cluster: cfg.GemmMLevel1Cluster,
		NLevel1Cluster: cfg.GemmNLevel1Cluster,
		KPerThreadLoop: cfg.GemmKPerThreadLoop,
		DataPerReadA:   cfg.GemmDataPerReadA,
		DataPerReadB:   cfg.GemmDataPerReadB,
	})
	if err != nil {
		return nil, inapplicable(err, "blockwise GEMM")
	}
	cv.writeback, err = newWriteback[T, A](cfg, out, cv.registers)
	if err != nil {
		return nil, inapplicable(err, "writeback")
	}
	klog.V(2).Infof("gridwise.NewConvolution[%s, %s]: %s, input view %s, writeback %s, %d blocks of %d threads",
		numeric.DTypeOf[T](), numeric.DTypeOf[A](), dims, cv.inputView, cv.writeback.strategy,
		cv.partitioner.NumBlocks(), cfg.BlockSize)
	return cv, nil
}

// WithPhaseObserver sets a function called at every phase transition of every thread.
// It returns the Convolution itself, and it must be called before any launch.
func (cv *Convolution[T, A]) WithPhaseObserver(observer PhaseObserver) *Convolution[T, A] {
	cv.observer = observer
	return cv
}

// Config returns the configuration of the kernel.
func (cv *Convolution[T, A]) Config() Config { return cv.cfg }

// Dims returns the problem dimensions.
func (cv *Convolution[T, A]) Dims() Dims { return cv.dims }

// InputView returns the view of the input selected for the padding.
func (cv *Convolution[T, A]) InputView() InputView { return cv.inputView }

// ReshapeStrategy returns the writeback reshape strategy.
func (cv *Convolution[T, A]) ReshapeStrategy() ReshapeStrategy { return cv.writeback.strategy }

// Partitioner returns the partition of the output in block tiles.
func (cv *Convolution[T, A]) Partitioner() *Partitioner { return cv.partitioner }

// Grid returns the launch shape: one block per output tile.
func (cv *Convolution[T, A]) Grid() device.Grid {
	return device.Grid{
		NumBlocks:   cv.partitioner.NumBlocks(),
		BlockSize:   cv.cfg.BlockSize,
		SharedBytes: (cv.inBlock.ElementSpace() + cv.weiBlock.ElementSpace()) * int(numeric.DTypeOf[T]().Memory()),
	}
}

// sharedTiles is the shared memory of a block.
type sharedTiles[T numeric.Element] struct {
	in, wei []T
}

// Launch runs the convolution of in and wei into out on the device.
//
// in, wei and out must be large enough for the descriptors given to NewConvolution. Every
// element of the output is written once.
func (cv *Convolution[T, A]) Launch(ctx context.Context, dev *device.Device, in, wei, out []T) error {
	for _, tensor := range []struct {
		name   string
		length int
		desc   tensordesc.Descriptor
	}{{"input", len(in), cv.in}, {"weights", len(wei), cv.wei}, {"output", len(out), cv.out}} {
		if tensor.length < tensor.desc.ElementSpace() {
			return errors.Errorf("gridwise.Convolution.Launch: %s has %d elements, descriptor %s requires %d",
				tensor.name, tensor.length, tensor.desc, tensor.desc.ElementSpace())
		}
	}
	newShared := func(int) *sharedTiles[T] {
		return &sharedTiles[T]{
			in:  make([]T, cv.inBlock.ElementSpace()),
			wei: make([]T, cv.weiBlock.ElementSpace()),
		}
	}
	kernel := func(th *device.Thread, shared *sharedTiles[T]) {
		cv.runThread(th, shared, in, wei, out)
	}
	return device.Launch(ctx, dev, cv.Grid(), newShared, kernel)
}

// runThread is the control loop of one thread.
func (cv *Convolution[T, A]) runThread(th *device.Thread, shared *sharedTiles[T], in, wei, out []T) {
	cfg, dims := &cv.cfg, &cv.dims
	event := PhaseEvent{BlockID: th.BlockID, ThreadID: th.ThreadID, Phase: PhaseInit}
	cv.observe(event)
	origin := cv.partitioner.Origin(cv.partitioner.BlockWork(th.BlockID))
	inThread := cv.inCopy.NewThread(th.ThreadID)
	weiThread := cv.weiCopy.NewThread(th.ThreadID)
	gemmThread := cv.gemm.NewThread(th.ThreadID)
	accumulator := make([]A, cv.registers.ElementSpace())
	inOrigin := make([]int, 4)
	weiOrigin := []int{0, origin.K}

	step := func(y, x, c0 int) {
		event.Y, event.X, event.C = y, x, c0
		event.Phase = PhaseLoadTiles
		cv.observe(event)
		inOrigin[0], inOrigin[1], inOrigin[2], inOrigin[3] = c0, origin.Ho+y, origin.Wo+x, origin.N
		cv.inCopy.Run(inThread, in, 0, inOrigin, shared.in)
		weiOrigin[0] = c0
		cv.weiCopy.Run(weiThread, wei, cv.weiTapOffsets[y*dims.X+x], weiOrigin, shared.wei)

		event.Phase = PhaseBarrierA
		cv.observe(event)
		th.Sync()

		event.Phase = PhaseAccumulate
		cv.observe(event)
		cv.gemm.Run(gemmThread, shared.wei, shared.in, accumulator)

		event.Phase = PhaseBarrierB
		cv.observe(event)
		th.Sync()
	}
	switch cfg.LoopOrder {
	case LoopOrderChannelsOuter:
		for c0 := 0; c0 < dims.C; c0 += cfg.CPerBlock {
			for y := range dims.Y {
				for x := range dims.X {
					step(y, x, c0)
				}
			}
		}
	default:
		for y := range dims.Y {
			for x := range dims.X {
				for c0 := 0; c0 < dims.C; c0 += cfg.CPerBlock {
					step(y, x, c0)
				}
			}
		}
	}

	event = PhaseEvent{BlockID: th.BlockID, ThreadID: th.ThreadID, Phase: PhaseWriteback}
	cv.observe(event)
	begin := gemmThread.Begin()
	outBase := cv.out.Offset(
		origin.K+begin.Row,
		origin.Ho+begin.Batch,
		origin.Wo+begin.Col/cfg.NPerBlock,
		origin.N+begin.Col%cfg.NPerBlock)
	cv.writeback.run(cv.writeback.newState(), accumulator, out, outBase)
}

// ThreadOutputIndices returns the output coordinates [k, ho, wo, n] written by each register
// of the given thread of the given block, in register order. It mirrors the mapping used by
// the kernel's writeback.
func (cv *Convolution[T, A]) ThreadOutputIndices(blockID, threadID int) [][4]int {
	origin := cv.partitioner.Origin(cv.partitioner.BlockWork(blockID))
	begin := cv.gemm.ThreadMatrixCBegin(threadID)
	cfg := cv.cfg
	indices := make([][4]int, 0, cv.registers.ElementSize())
	for k := range cfg.KPerThread {
		for ho := range cfg.HoPerThread {
			for wo := range cfg.WoPerThread {
				for n := range cfg.NPerThread {
					col := begin.Col + cv.gemm.ThreadColumnToBlock(wo*cfg.NPerThread+n)
					indices = append(indices, [4]int{
						origin.K + begin.Row + cv.gemm.ThreadRowToBlock(k),
						origin.Ho + begin.Batch + ho,
						origin.Wo + col/cfg.NPerBlock,
						origin.N + col%cfg.NPerBlock,
					})
				}
			}
		}
	}
	return indices
}
