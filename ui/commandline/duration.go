// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
)

var durationRegexp = regexp.MustCompile(`(\d+\.?\d*)([µa-z]+)`)

// FormatDuration pretty prints duration without a long list of decimal points.
func FormatDuration(d time.Duration) string {
	s := d.String()
	matches := durationRegexp.FindStringSubmatch(s)
	if len(matches) != 3 {
		return s
	}
	num, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return s
	}
	return fmt.Sprintf("%.2f%s", num, matches[2])
}

// FormatRate pretty prints the rate of count units per second over the duration d, with SI
// prefixes: e.g. FormatRate(3e9, time.Second, "FLOP/s") = "3 GFLOP/s".
func FormatRate(count int64, d time.Duration, unit string) string {
	if d <= 0 {
		return "-"
	}
	return humanize.SIWithDigits(float64(count)/d.Seconds(), 2, unit)
}
