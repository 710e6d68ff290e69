package evaluation

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
)

// Icon grades a score: ok from 0.8, warn from 0.6.
func Icon(score float64) string {
	switch {
	case score >= 0.8:
		return "✅"
	case score >= 0.6:
		return "⚠️"
	default:
		return "❌"
	}
}

func passIcon(ok bool) string {
	if ok {
		return "✅"
	}
	return "❌"
}

// WriteJSON writes v as indented JSON, creating parent directories.
func WriteJSON(path string, v any) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// WriteSummary prints per-suite rows and the score table.
func (r *GraphReport) WriteSummary(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "STRUCTURE\t%s\tnodes=%d\tmissing=%v\textra=%v\n",
		passIcon(r.Structure.AllOK), r.Structure.NodeCount, r.Structure.MissingNodes, r.Structure.ExtraNodes)
	for _, suite := range []SuiteReport{r.Classify, r.Retrieve, r.Grade, r.Routing} {
		fmt.Fprintf(tw, "\n%s\t%d/%d\n", suite.Name, suite.Passed, suite.Total)
		for _, row := range suite.Rows {
			fmt.Fprintf(tw, "  %s\t%s\tgot=%s\twant=%s\t%s\n",
				passIcon(row.Pass), preview(row.Input, 55), row.Actual, row.Expected, row.Detail)
		}
	}

	fmt.Fprintf(tw, "\nNODE\tACCURACY\t\n")
	for _, s := range r.Scores() {
		fmt.Fprintf(tw, "%s\t%.1f%%\t%s\n", s.Name, s.Score*100, Icon(s.Score))
	}
	fmt.Fprintf(tw, "GRAPH GLOBAL\t%.1f%%\t%s\n", r.GraphScore*100, passIcon(r.GraphScore >= 0.8))
	return tw.Flush()
}

// WriteSummary prints the per-dimension table and the verdict.
func (r *LashReport) WriteSummary(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "DIM\tWEIGHT\tSCORE\tTHRESHOLD\tPASS\n")
	for _, d := range r.Dimensions {
		fmt.Fprintf(tw, "%s\t%.2f\t%.3f\t≥ %.2f\t%s\n", d.Name, d.Weight, d.Score, d.Threshold, passIcon(d.Pass))
	}
	verdict := "❌ FAIL"
	if r.Pass {
		verdict = "✅ PASS"
	}
	fmt.Fprintf(tw, "LASH\t1.00\t%.3f\t≥ %.2f\t%s\n", r.Composite, r.CompositeThreshold, verdict)
	fmt.Fprintf(tw, "\nmean latency\t%.2fs\t\t\t\n", r.MeanLatency)
	return tw.Flush()
}
