package app

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

const maxReasonWidth = 48

var (
	okColor      = color.New(color.FgGreen)
	skippedColor = color.New(color.FgYellow)
	failedColor  = color.New(color.FgRed, color.Bold)
)

func outcomeLabel(o Outcome) string {
	switch o {
	case OutcomeOK:
		return okColor.Sprint(string(o))
	case OutcomeSkipped:
		return skippedColor.Sprint(string(o))
	default:
		return failedColor.Sprint(string(o))
	}
}

// Tally counts target outcomes.
type Tally struct {
	OK      int
	Skipped int
	Failed  int
}

func tally(results []*TargetResult) Tally {
	var t Tally
	for _, r := range results {
		switch r.Outcome {
		case OutcomeOK:
			t.OK++
		case OutcomeSkipped:
			t.Skipped++
		default:
			t.Failed++
		}
	}
	return t
}

// printSummary writes one row per target and a closing tally line.
func printSummary(w io.Writer, runID string, results []*TargetResult) error {
	table := tablewriter.NewWriter(w)
	table.Header("#", "Star", "RA", "Dec", "g", "Fibers", "Outcome", "Valid", "S/N", "Reason")

	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	data := make([][]string, 0, len(results))
	for _, r := range results {
		row := []string{
			strconv.Itoa(r.Order),
			strconv.FormatInt(r.Target.StarID, 10),
			fmt.Sprintf("%.6f", r.Target.Coordinate.RA),
			fmt.Sprintf("%.6f", r.Target.Coordinate.Dec),
			fmt.Sprintf("%.2f", r.Target.Magnitude),
			humanize.Comma(int64(r.NumFibers)),
			outcomeLabel(r.Outcome),
			"-",
			"-",
			truncate(r.Reason, maxReasonWidth),
		}
		if r.Outcome == OutcomeOK {
			row[7] = fmt.Sprintf("%d/%d", r.Spectrum.NumValid(), r.Spectrum.Len())
			if snr := r.Spectrum.MedianSNR(); !math.IsNaN(snr) {
				row[8] = humanize.FtoaWithDigits(snr, 1)
			}
		}
		data = append(data, row)
	}

	if err := table.Bulk(data); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}

	t := tally(results)
	_, err := fmt.Fprintf(w, "run %s: %s targets, %s ok, %s skipped, %s failed\n",
		runID,
		humanize.Comma(int64(len(results))),
		okColor.Sprint(humanize.Comma(int64(t.OK))),
		skippedColor.Sprint(humanize.Comma(int64(t.Skipped))),
		failedColor.Sprint(humanize.Comma(int64(t.Failed))))
	return err
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
