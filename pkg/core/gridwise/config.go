// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package gridwise

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/pkg/errors"
)

// ErrInapplicable is returned (wrapped with the reasons) when a Config can't be used for a
// given problem: the caller should select a different configuration.
var ErrInapplicable = errors.New("configuration inapplicable to the problem")

// LoopOrder of the two loops over the filter taps (y, x) and over the input channel blocks.
type LoopOrder int

//go:generate go tool enumer -type LoopOrder -trimprefix=LoopOrder -text -output=gen_looporder_enumer.go config.go

const (
	// LoopOrderTapsOuter iterates the filter taps (y, x) in row-major order in the outer loop
	// and the channel blocks in the inner loop.
	LoopOrderTapsOuter LoopOrder = iota

	// LoopOrderChannelsOuter iterates the channel blocks in the outer loop and the filter taps
	// in the inner loop.
	LoopOrderChannelsOuter
)

// Dims are the sizes of a convolution problem, with input [C, Hi, Wi, N], weights [C, Y, X, K]
// and output [K, Ho, Wo, N].
type Dims struct {
	N, C, Hi, Wi int
	K, Y, X      int
	Ho, Wo       int
}

// String implements fmt.Stringer.
func (d Dims) String() string {
	return fmt.Sprintf("N=%d, C=%d, Hi=%d, Wi=%d, K=%d, Y=%d, X=%d, Ho=%d, Wo=%d",
		d.N, d.C, d.Hi, d.Wi, d.K, d.Y, d.X, d.Ho, d.Wo)
}

// Config holds the tuning parameters of the convolution kernel.
//
// All of them are fixed before the launch and validated against the problem by Validate.
// The names follow the usual composable-kernel convention: the GEMM is M=K (output channels),
// N=Wo·N (output width and batch) and the reduction runs over the input channels C.
type Config struct {
	// BlockSize is the number of threads per block.
	BlockSize int

	// Block tile: the slice of the output (and of the input channels per iteration) handled by
	// one block.
	NPerBlock  int
	KPerBlock  int
	CPerBlock  int
	HoPerBlock int
	WoPerBlock int

	// Thread tile: the number of output values accumulated by one thread along each dimension.
	NPerThread  int
	KPerThread  int
	HoPerThread int
	WoPerThread int

	// GEMM thread sub-tile and the two-level thread cluster hierarchy.
	GemmMPerThreadSubC int
	GemmNPerThreadSubC int
	GemmMLevel0Cluster int
	GemmNLevel0Cluster int
	GemmMLevel1Cluster int
	GemmNLevel1Cluster int
	GemmKPerThreadLoop int
	GemmDataPerReadA   int
	GemmDataPerReadB   int

	// Input tile copy, over [C, Ho, Wo, N]: vectors run along N.
	InBlockCopySubLengths     [4]int
	InBlockCopyClusterLengths [4]int
	InBlockCopyDataPerAccessN int

	// Weight tile copy, over [C, K]: vectors run along K.
	WeiBlockCopySubLengths     [2]int
	WeiBlockCopyClusterLengths [2]int
	WeiBlockCopyDataPerAccessK int

	// OutThreadCopyDataPerAccessN is the vector width of the writes to the output.
	OutThreadCopyDataPerAccessN int

	LoopOrder LoopOrder
}

// ReshapeStrategy returns how the register tile is folded for the writeback: it only
// depends on GemmNPerThreadSubC and NPerBlock.
func (c Config) ReshapeStrategy() ReshapeStrategy {
	if c.GemmNPerThreadSubC <= c.NPerBlock {
		return ReshapeSubTileInsideN
	}
	return ReshapeSubTileAcrossWo
}

// SharedAlignment is the alignment, in elements, of the innermost rows of the shared staging
// tiles: the least common multiple of every vector width that accesses them.
func (c Config) SharedAlignment() int {
	return lcm(lcm(c.InBlockCopyDataPerAccessN, c.WeiBlockCopyDataPerAccessK),
		lcm(c.GemmDataPerReadA, c.GemmDataPerReadB))
}

// String returns the parameters in the "param=value;..." format accepted by the settings
// parser of the command-line tools.
func (c Config) String() string {
	var parts []string
	value := reflect.ValueOf(c)
	for i := range value.NumField() {
		field := value.Type().Field(i)
		fieldValue := value.Field(i)
		if fieldValue.Kind() == reflect.Array {
			values := make([]string, fieldValue.Len())
			for j := range values {
				values[j] = fmt.Sprint(fieldValue.Index(j).Interface())
			}
			parts = append(parts, fmt.Sprintf("%s=%s", field.Name, strings.Join(values, ",")))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%v", field.Name, fieldValue.Interface()))
	}
	return strings.Join(parts, ";")
}

// violations collects the reasons a configuration is inapplicable.
type violations []string

func (v *violations) check(ok bool, format string, args ...any) {
	if !ok {
		*v = append(*v, fmt.Sprintf(format, args...))
	}
}

// Validate checks every static precondition of the configuration against the problem
// dimensions. All violations are reported, joined, in an error wrapping ErrInapplicable.
func (c Config) Validate(dims Dims) error {
	var v violations

	// Positive values first: the remaining checks divide by them.
	value := reflect.ValueOf(c)
	for i := range value.NumField() {
		name := value.Type().Field(i).Name
		fieldValue := value.Field(i)
		switch {
		case name == "LoopOrder":
			v.check(c.LoopOrder.IsALoopOrder(), "LoopOrder: invalid value %d", c.LoopOrder)
		case fieldValue.Kind() == reflect.Array:
			for j := range fieldValue.Len() {
				v.check(fieldValue.Index(j).Int() > 0, "%s: values %v must be > 0", name, fieldValue.Interface())
			}
		default:
			v.check(fieldValue.Int() > 0, "%s=%d must be > 0", name, fieldValue.Int())
		}
	}
	for _, dim := range []struct {
		name  string
		value int
	}{{"N", dims.N}, {"C", dims.C}, {"Hi", dims.Hi}, {"Wi", dims.Wi}, {"K", dims.K}, {"Y", dims.Y}, {"X", dims.X},
		{"Ho", dims.Ho}, {"Wo", dims.Wo}} {
		v.check(dim.value > 0, "problem dimension %s=%d must be > 0", dim.name, dim.value)
	}
	if len(v) > 0 {
		return v.err()
	}

	// Block tiles evenly divide the problem.
	v.check(dims.N%c.NPerBlock == 0, "NPerBlock=%d must divide N=%d", c.NPerBlock, dims.N)
	v.check(dims.K%c.KPerBlock == 0, "KPerBlock=%d must divide K=%d", c.KPerBlock, dims.K)
	v.check(dims.C%c.CPerBlock == 0, "CPerBlock=%d must divide C=%d", c.CPerBlock, dims.C)
	v.check(dims.Ho%c.HoPerBlock == 0, "HoPerBlock=%d must divide Ho=%d", c.HoPerBlock, dims.Ho)
	v.check(dims.Wo%c.WoPerBlock == 0, "WoPerBlock=%d must divide Wo=%d", c.WoPerBlock, dims.Wo)

	// Thread tiles evenly divide the block tiles.
	v.check(c.NPerBlock%c.NPerThread == 0, "NPerThread=%d must divide NPerBlock=%d", c.NPerThread, c.NPerBlock)
	v.check(c.KPerBlock%c.KPerThread == 0, "KPerThread=%d must divide KPerBlock=%d", c.KPerThread, c.KPerBlock)
	v.check(c.HoPerBlock%c.HoPerThread == 0, "HoPerThread=%d must divide HoPerBlock=%d", c.HoPerThread, c.HoPerBlock)
	v.check(c.WoPerBlock%c.WoPerThread == 0, "WoPerThread=%d must divide WoPerBlock=%d", c.WoPerThread, c.WoPerBlock)

	// Blockwise GEMM: M=KPerBlock, N=WoPerBlock·NPerBlock, batch=HoPerBlock.
	clusters := c.GemmMLevel0Cluster * c.GemmNLevel0Cluster * c.GemmMLevel1Cluster * c.GemmNLevel1Cluster
	v.check(c.BlockSize == (c.HoPerBlock/c.HoPerThread)*clusters,
		"BlockSize=%d must be (HoPerBlock/HoPerThread)=%d x GemmMLevel0Cluster x GemmNLevel0Cluster x GemmMLevel1Cluster x GemmNLevel1Cluster=%d",
		c.BlockSize, c.HoPerBlock/c.HoPerThread, clusters)
	v.check(c.KPerThread%c.GemmMPerThreadSubC == 0, "GemmMPerThreadSubC=%d must divide KPerThread=%d",
		c.GemmMPerThreadSubC, c.KPerThread)
	v.check((c.WoPerThread*c.NPerThread)%c.GemmNPerThreadSubC == 0,
		"GemmNPerThreadSubC=%d must divide WoPerThread x NPerThread=%d", c.GemmNPerThreadSubC, c.WoPerThread*c.NPerThread)
	v.check(c.KPerBlock == c.KPerThread*c.GemmMLevel0Cluster*c.GemmMLevel1Cluster,
		"KPerBlock=%d must be KPerThread x GemmMLevel0Cluster x GemmMLevel1Cluster=%d",
		c.KPerBlock, c.KPerThread*c.GemmMLevel0Cluster*c.GemmMLevel1Cluster)
	v.check(c.WoPerBlock*c.NPerBlock == c.WoPerThread*c.NPerThread*c.GemmNLevel0Cluster*c.GemmNLevel1Cluster,
		"WoPerBlock x NPerBlock=%d must be WoPerThread x NPerThread x GemmNLevel0Cluster x GemmNLevel1Cluster=%d",
		c.WoPerBlock*c.NPerBlock, c.WoPerThread*c.NPerThread*c.GemmNLevel0Cluster*c.GemmNLevel1Cluster)
	v.check(c.CPerBlock%c.GemmKPerThreadLoop == 0, "GemmKPerThreadLoop=%d must divide CPerBlock=%d",
		c.GemmKPerThreadLoop, c.CPerBlock)
	v.check(c.GemmMPerThreadSubC%c.GemmDataPerReadA == 0, "GemmDataPerReadA=%d must divide GemmMPerThreadSubC=%d",
		c.GemmDataPerReadA, c.GemmMPerThreadSubC)
	v.check(c.GemmNPerThreadSubC%c.GemmDataPerReadB == 0, "GemmDataPerReadB=%d must divide GemmNPerThreadSubC=%d",
		c.GemmDataPerReadB, c.GemmNPerThreadSubC)

	// The GEMM reads rows of the input tile as contiguous [Wo, N] rows: the N rows can't be
	// padded for alignment unless there is a single Wo.
	align := c.SharedAlignment()
	v.check(c.WoPerBlock == 1 || c.NPerBlock%align == 0,
		"NPerBlock=%d must be a multiple of the shared alignment %d (lcm of the access widths) when WoPerBlock > 1",
		c.NPerBlock, align)

	// Writeback reshape.
	nSub, nClusters := c.GemmNPerThreadSubC, c.GemmNLevel0Cluster*c.GemmNLevel1Cluster
	switch c.ReshapeStrategy() {
	case ReshapeSubTileInsideN:
		if c.NPerBlock%nSub != 0 {
			v.check(false, "GemmNPerThreadSubC=%d must divide NPerBlock=%d", nSub, c.NPerBlock)
			break
		}
		v.check(c.NPerThread == nSub, "NPerThread=%d must equal GemmNPerThreadSubC=%d when GemmNPerThreadSubC <= NPerBlock",
			c.NPerThread, nSub)
		v.check(nClusters%(c.NPerBlock/nSub) == 0,
			"GemmNLevel0Cluster x GemmNLevel1Cluster=%d must be a multiple of NPerBlock/GemmNPerThreadSubC=%d",
			nClusters, c.NPerBlock/nSub)
		v.check(nSub%c.OutThreadCopyDataPerAccessN == 0, "OutThreadCopyDataPerAccessN=%d must divide GemmNPerThreadSubC=%d",
			c.OutThreadCopyDataPerAccessN, nSub)
	case ReshapeSubTileAcrossWo:
		v.check(c.NPerThread == c.NPerBlock, "NPerThread=%d must equal NPerBlock=%d when GemmNPerThreadSubC > NPerBlock",
			c.NPerThread, c.NPerBlock)
		if nSub%c.NPerBlock != 0 {
			v.check(false, "NPerBlock=%d must divide GemmNPerThreadSubC=%d", c.NPerBlock, nSub)
			break
		}
		v.check(c.WoPerThread%(nSub/c.NPerBlock) == 0, "GemmNPerThreadSubC/NPerBlock=%d must divide WoPerThread=%d",
			nSub/c.NPerBlock, c.WoPerThread)
		v.check(c.NPerBlock%c.OutThreadCopyDataPerAccessN == 0, "OutThreadCopyDataPerAccessN=%d must divide NPerBlock=%d",
			c.OutThreadCopyDataPerAccessN, c.NPerBlock)
	}
	v.check(dims.N%c.OutThreadCopyDataPerAccessN == 0, "OutThreadCopyDataPerAccessN=%d must divide N=%d",
		c.OutThreadCopyDataPerAccessN, dims.N)

	// Input tile copy.
	inTile := [4]int{c.CPerBlock, c.HoPerBlock, c.WoPerBlock, c.NPerBlock}
	v.check(product(c.InBlockCopyClusterLengths[:]) == c.BlockSize,
		"InBlockCopyClusterLengths=%v must have %d threads (BlockSize)", c.InBlockCopyClusterLengths, c.BlockSize)
	v.check(tileMatches(c.InBlockCopySubLengths[:], c.InBlockCopyClusterLengths[:], inTile[:]),
		"InBlockCopySubLengths=%v x InBlockCopyClusterLengths=%v must be the input tile [CPerBlock, HoPerBlock, WoPerBlock, NPerBlock]=%v",
		c.InBlockCopySubLengths, c.InBlockCopyClusterLengths, inTile)
	v.check(c.InBlockCopySubLengths[3]%c.InBlockCopyDataPerAccessN == 0,
		"InBlockCopyDataPerAccessN=%d must divide InBlockCopySubLengths[N]=%d", c.InBlockCopyDataPerAccessN, c.InBlockCopySubLengths[3])
	v.check(dims.N%c.InBlockCopyDataPerAccessN == 0, "InBlockCopyDataPerAccessN=%d must divide N=%d",
		c.InBlockCopyDataPerAccessN, dims.N)

	// Weight tile copy.
	weiTile := [2]int{c.CPerBlock, c.KPerBlock}
	v.check(product(c.WeiBlockCopyClusterLengths[:]) == c.BlockSize,
		"WeiBlockCopyClusterLengths=%v must have %d threads (BlockSize)", c.WeiBlockCopyClusterLengths, c.BlockSize)
	v.check(tileMatches(c.WeiBlockCopySubLengths[:], c.WeiBlockCopyClusterLengths[:], weiTile[:]),
		"WeiBlockCopySubLengths=%v x WeiBlockCopyClusterLengths=%v must be the weight tile [CPerBlock, KPerBlock]=%v",
		c.WeiBlockCopySubLengths, c.WeiBlockCopyClusterLengths, weiTile)
	v.check(c.WeiBlockCopySubLengths[1]%c.WeiBlockCopyDataPerAccessK == 0,
		"WeiBlockCopyDataPerAccessK=%d must divide WeiBlockCopySubLengths[K]=%d", c.WeiBlockCopyDataPerAccessK, c.WeiBlockCopySubLengths[1])
	v.check(dims.K%c.WeiBlockCopyDataPerAccessK == 0, "WeiBlockCopyDataPerAccessK=%d must divide K=%d",
		c.WeiBlockCopyDataPerAccessK, dims.K)

	if len(v) > 0 {
		return v.err()
	}
	return nil
}

func (v violations) err() error {
	return errors.WithMessage(ErrInapplicable, strings.Join(v, "; "))
}

// tileMatches returns whether sub[i]*cluster[i] == tile[i] for every dimension.
func tileMatches(sub, cluster, tile []int) bool {
	for dim := range tile {
		if sub[dim]*cluster[dim] != tile[dim] {
			return false
		}
	}
	return true
}

func product(values []int) int {
	p := 1
	for _, v := range values {
		p *= v
	}
	return p
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b int) int {
	if a <= 0 || b <= 0 {
		return max(a, b, 1)
	}
	return a / gcd(a, b) * b
}
