// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/muesli/termenv"
	"github.com/schollz/progressbar/v3"
)

// ExtraMetricFn is any function that will give extra values to display along the progress bar.
// It is called at each time the progress bar is updated, and it should return a name and the current value when it is called.
type ExtraMetricFn func() (name, value string)

// ProgressBar displays the progress of a benchmark loop: a bar with the number of iterations,
// and a table with the median iteration duration and any extra metrics.
//
// On a terminal the table is redrawn asynchronously in place. Otherwise (e.g.: output
// redirected to a file) only a plain bar is printed, with the metrics as a suffix.
type ProgressBar struct {
	numSteps     int
	stepsDone    int
	bar          *progressbar.ProgressBar
	suffix       string
	plain        bool
	output       io.Writer
	durations    []time.Duration
	lastReported time.Time

	// lipgloss-based rich and asynchronous display for the command-line.
	termenv          *termenv.Output
	statsStyle       lipgloss.Style
	statsTable       *lgtable.Table
	isFirstOutput    bool
	updates          chan progressBarUpdate
	asyncUpdatesDone sync.WaitGroup

	extraMetricFns []ExtraMetricFn
}

// ProgressbarStyle to use. Defaults to the ASCII version.
// Consider "progressbar.ThemeUnicode" for a prettier version.
// But it requires some of the graphical symbols to be supported.
var ProgressbarStyle = progressbar.ThemeASCII

// RefreshPeriod is the minimum time between updates of the display.
var RefreshPeriod = time.Millisecond * 200

var (
	normalStyle       = lipgloss.NewStyle().Padding(0, 1)
	rightAlignedStyle = lipgloss.NewStyle().Align(lipgloss.Right).Padding(0, 1)
	tableBorderColor  = "#705090"
)

type progressBarUpdate struct {
	amount int
	rows   [][2]string
}

// Write implements io.Writer, and appends the current suffix with metrics to each
// line. It is meant to be used as the default writer for the enclosed progressbar.ProgressBar,
// so that the progress bar and its suffix are written in the same write operation.
func (pBar *ProgressBar) Write(data []byte) (n int, err error) {
	n, err = pBar.output.Write(data)
	if err != nil {
		return n, err
	}
	_, err = pBar.output.Write([]byte(pBar.suffix))
	if err != nil {
		return 0, err
	}
	return
}

// NewProgressBar creates and displays a progress bar for numSteps iterations.
//
// Optionally, one can provide extraMetrics: functions that are called at every update of
// the progress bar and should return a name (title) and a value to be included in the
// updated print-out.
func NewProgressBar(description string, numSteps int, extraMetrics ...ExtraMetricFn) *ProgressBar {
	pBar := &ProgressBar{
		numSteps:       numSteps,
		output:         os.Stdout,
		extraMetricFns: extraMetrics,
	}
	pBar.termenv = termenv.NewOutput(os.Stdout)
	pBar.plain = pBar.termenv.Profile == termenv.Ascii
	pBar.bar = progressbar.NewOptions(numSteps,
		progressbar.OptionSetDescription(fmt.Sprintf("      [bold]%s[reset]", description)),
		progressbar.OptionUseANSICodes(!pBar.plain),
		progressbar.OptionEnableColorCodes(!pBar.plain),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("iterations"),
		progressbar.OptionSetTheme(ProgressbarStyle),
		progressbar.OptionSetWriter(pBar),
	)
	if pBar.plain {
		return pBar
	}

	pBar.isFirstOutput = true
	pBar.statsStyle = lipgloss.NewStyle().PaddingLeft(8)
	pBar.statsTable = lgtable.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color(tableBorderColor))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 {
				return rightAlignedStyle
			}
			return normalStyle
		})
	pBar.updates = make(chan progressBarUpdate, 100) // Large buffer so the benchmark is not blocked.
	pBar.asyncUpdatesDone.Add(1)
	go func() {
		defer pBar.asyncUpdatesDone.Done()
		// Asynchronously draw updates: the benchmark iterations may be faster than the terminal.
		for update := range pBar.updates {
			// Exhaust the updates in the buffer:
			amount := update.amount
		exhaust:
			for {
				select {
				case newUpdate, ok := <-pBar.updates:
					if !ok {
						break exhaust
					}
					amount += newUpdate.amount
					update = newUpdate
				default:
					break exhaust
				}
			}

			// Create the table to be printed.
			pBar.statsTable.Data(lgtable.NewStringData())
			for _, row := range update.rows {
				pBar.statsTable.Row(row[0], row[1])
			}

			// For command-line, we clear the previous lines that will be overwritten.
			pBar.termenv.HideCursor()
			if !pBar.isFirstOutput {
				numLinesToBackup := len(update.rows) + 2 + 2
				pBar.termenv.CursorPrevLine(numLinesToBackup)
			}
			pBar.isFirstOutput = false

			// Print update.
			fmt.Println(pBar.statsStyle.Render(pBar.statsTable.String()))
			_ = pBar.bar.Add(amount) // Prints progress bar line.
			fmt.Println()
			pBar.termenv.ShowCursor()
			time.Sleep(RefreshPeriod)
		}
	}()
	return pBar
}

// Step reports one finished iteration that took the given duration.
func (pBar *ProgressBar) Step(duration time.Duration) {
	if pBar.bar.IsFinished() {
		return
	}
	pBar.durations = append(pBar.durations, duration)
	amount := len(pBar.durations) - pBar.stepsDone
	if len(pBar.durations) < pBar.numSteps && time.Since(pBar.lastReported) < RefreshPeriod {
		return
	}
	pBar.lastReported = time.Now()
	pBar.stepsDone += amount

	rows := make([][2]string, 0, 2+len(pBar.extraMetricFns))
	rows = append(rows,
		[2]string{"Iterations", fmt.Sprintf("%s of %s", humanize.Comma(int64(pBar.stepsDone)), humanize.Comma(int64(pBar.numSteps)))},
		[2]string{"Median iteration duration", FormatDuration(pBar.Median())})
	for _, extraMetric := range pBar.extraMetricFns {
		name, value := extraMetric()
		rows = append(rows, [2]string{name, value})
	}

	if pBar.plain {
		parts := make([]string, 0, len(rows))
		for _, row := range rows[1:] {
			parts = append(parts, fmt.Sprintf(" [%s=%s]", row[0], row[1]))
		}
		pBar.suffix = strings.Join(parts, "")
		_ = pBar.bar.Add(amount) // Triggers print, see [ProgressBar.Write] method.
		return
	}
	pBar.updates <- progressBarUpdate{amount: amount, rows: rows}
}

// Median returns the median of the durations reported so far.
func (pBar *ProgressBar) Median() time.Duration {
	if len(pBar.durations) == 0 {
		return 0
	}
	sorted := slices.Clone(pBar.durations)
	slices.Sort(sorted)
	return sorted[len(sorted)/2]
}

// Done waits for the pending updates to be displayed and restores the cursor.
func (pBar *ProgressBar) Done() {
	if pBar.updates != nil {
		close(pBar.updates)
	}
	pBar.asyncUpdatesDone.Wait()
	if pBar.termenv != nil {
		pBar.termenv.ShowCursor()
	}
	fmt.Println()
}
