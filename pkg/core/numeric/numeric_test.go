// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package numeric

import (
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func TestConverters(t *testing.T) {
	t.Run("float32", func(t *testing.T) {
		load, store := Converters[float32, float32]()
		assert.Equal(t, float32(1.5), load(1.5))
		assert.Equal(t, float32(-3), store(-3))
	})
	t.Run("float64", func(t *testing.T) {
		load, store := Converters[float64, float64]()
		assert.Equal(t, 0.25, load(0.25))
		assert.Equal(t, 7.0, store(7))
	})
	t.Run("float16", func(t *testing.T) {
		load, store := Converters[float16.Float16, float32]()
		assert.Equal(t, float32(2.5), load(float16.Fromfloat32(2.5)))
		assert.Equal(t, float16.Fromfloat32(-0.5), store(-0.5))
	})
	t.Run("bfloat16", func(t *testing.T) {
		load, store := Converters[bfloat16.BFloat16, float32]()
		assert.Equal(t, float32(4), load(bfloat16.FromFloat32(4)))
		assert.Equal(t, bfloat16.FromFloat32(8), store(8))
	})
	t.Run("zero-is-additive-identity", func(t *testing.T) {
		var zeroF16 float16.Float16
		var zeroBF16 bfloat16.BFloat16
		assert.Equal(t, 0.0, ToFloat64(zeroF16))
		assert.Equal(t, 0.0, ToFloat64(zeroBF16))
	})
}

func TestParseDType(t *testing.T) {
	for name, want := range map[string]dtypes.DType{
		"float32": dtypes.Float32, "F64": dtypes.Float64, "f16": dtypes.Float16, "BFloat16": dtypes.BFloat16,
	} {
		got, err := ParseDType(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
	_, err := ParseDType("int8")
	require.Error(t, err)
	assert.Equal(t, dtypes.Float32, AccumulatorDType(dtypes.BFloat16))
	assert.Equal(t, dtypes.Float64, AccumulatorDType(dtypes.Float64))
}

func TestDTypeDispatcher(t *testing.T) {
	d := NewDTypeDispatcher("test")
	var got []any
	d.Register(dtypes.Float32, func(params ...any) error {
		got = params
		return nil
	})
	require.True(t, d.IsRegistered(dtypes.Float32))
	require.False(t, d.IsRegistered(dtypes.Float64))
	require.NoError(t, d.Dispatch(dtypes.Float32, 1, "x"))
	assert.Equal(t, []any{1, "x"}, got)

	err := exceptions.TryCatch[error](func() { _ = d.Dispatch(dtypes.Float64) })
	require.Error(t, err)
}
