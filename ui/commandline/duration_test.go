// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "1.23ms", FormatDuration(1234567*time.Nanosecond))
	assert.Equal(t, "2.00s", FormatDuration(2*time.Second))
	assert.Equal(t, "0.00s", FormatDuration(0))
}

func TestFormatRate(t *testing.T) {
	assert.Equal(t, "3 GFLOP/s", FormatRate(3e9, time.Second, "FLOP/s"))
	assert.Equal(t, "1.5 kFLOP/s", FormatRate(3000, 2*time.Second, "FLOP/s"))
	assert.Equal(t, "-", FormatRate(1, 0, "FLOP/s"))
}

func TestTable(t *testing.T) {
	table := NewTable()
	table.Headers("preset", "status")
	table.Row(false, "default", "ok")
	table.Row(true, "wide-n", "failed")
	s := table.String()
	assert.Contains(t, s, "default")
	assert.Contains(t, s, "wide-n")
	assert.True(t, table.reds[1])
	assert.False(t, table.reds[0])
}
