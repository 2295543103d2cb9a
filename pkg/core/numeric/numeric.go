// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package numeric defines the element types the convolution kernels support, the accumulator
// types they use in registers, and converters between them.
//
// Float16 (github.com/x448/float16) and BFloat16 (github.com/gomlx/gopjrt/dtypes/bfloat16) are
// storage-only types: the kernels move them around as-is and accumulate them in float32.
package numeric

import (
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// Element is the set of types that can be stored in the input, weight and output tensors.
type Element interface {
	float32 | float64 | float16.Float16 | bfloat16.BFloat16
}

// Accumulator is the set of types used for the per-thread register accumulators.
type Accumulator interface {
	float32 | float64
}

// DTypeOf returns the dtypes.DType of the generic type T.
func DTypeOf[T Element]() dtypes.DType {
	return dtypes.FromGenericsType[T]()
}

// Converters returns the functions that load an element into the accumulator type and
// store an accumulator value back as an element.
//
// The zero value of every Element type is the additive identity, so padding can be written
// with `var zero T` without calling store.
func Converters[T Element, A Accumulator]() (load func(T) A, store func(A) T) {
	var t T
	switch any(t).(type) {
	case float32:
		load = func(v T) A { return A(any(v).(float32)) }
		store = func(v A) T { return any(float32(v)).(T) }
	case float64:
		load = func(v T) A { return A(any(v).(float64)) }
		store = func(v A) T { return any(float64(v)).(T) }
	case float16.Float16:
		load = func(v T) A { return A(any(v).(float16.Float16).Float32()) }
		store = func(v A) T { return any(float16.Fromfloat32(float32(v))).(T) }
	case bfloat16.BFloat16:
		load = func(v T) A { return A(any(v).(bfloat16.BFloat16).Float32()) }
		store = func(v A) T { return any(bfloat16.FromFloat32(float32(v))).(T) }
	default:
		exceptions.Panicf("numeric.Converters: unsupported element type %T", t)
	}
	return
}

// FromFloat64 converts a float64 to the element type T.
func FromFloat64[T Element](v float64) T {
	_, store := Converters[T, float64]()
	return store(v)
}

// ToFloat64 converts an element of type T to float64.
func ToFloat64[T Element](v T) float64 {
	load, _ := Converters[T, float64]()
	return load(v)
}

// AccumulatorDType returns the accumulator dtype used for the given element dtype.
func AccumulatorDType(dtype dtypes.DType) dtypes.DType {
	if dtype == dtypes.Float64 {
		return dtypes.Float64
	}
	return dtypes.Float32
}

var supportedNames = map[string]dtypes.DType{
	"float32":  dtypes.Float32,
	"f32":      dtypes.Float32,
	"float64":  dtypes.Float64,
	"f64":      dtypes.Float64,
	"float16":  dtypes.Float16,
	"f16":      dtypes.Float16,
	"bfloat16": dtypes.BFloat16,
	"bf16":     dtypes.BFloat16,
}

// ParseDType parses the name of one of the supported element dtypes (case-insensitive).
func ParseDType(name string) (dtypes.DType, error) {
	dtype, found := supportedNames[strings.ToLower(name)]
	if !found {
		return dtypes.InvalidDType, errors.Errorf("dtype %q not supported, use one of float32, float64, float16 or bfloat16", name)
	}
	return dtype, nil
}

// IsSupported returns whether the dtype can be used as an Element.
func IsSupported(dtype dtypes.DType) bool {
	switch dtype {
	case dtypes.Float32, dtypes.Float64, dtypes.Float16, dtypes.BFloat16:
		return true
	}
	return false
}
