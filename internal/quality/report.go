package quality

import (
	"fmt"
	"strings"
)

// Report - текстовый отчет по результату прогона гейтов
func Report(r RunResult) string {
	var sb strings.Builder

	status := "PASSED"
	if !r.Passed {
		status = "FAILED"
	}
	fmt.Fprintf(&sb, "Quality gates: %s (overall %.2f, disposition %s)\n", status, r.OverallScore, r.Disposition())

	for _, g := range r.Gates {
		mark := "✓"
		switch {
		case g.Err != nil:
			mark = "!"
		case !g.Passed:
			mark = "✗"
		}
		fmt.Fprintf(&sb, "  %s %-14s %.2f / %.2f  [%s]", mark, g.Name, g.Score, g.Threshold, g.Action)
		if g.Message != "" {
			sb.WriteString("  ")
			sb.WriteString(g.Message)
		}
		sb.WriteString("\n")
	}

	writeReasons(&sb, "Reject", r.Actions.RejectReasons)
	writeReasons(&sb, "Retry", r.Actions.RetryReasons)
	writeReasons(&sb, "Warn", r.Actions.WarnReasons)

	return strings.TrimRight(sb.String(), "\n")
}

func writeReasons(sb *strings.Builder, title string, reasons []string) {
	if len(reasons) == 0 {
		return
	}
	fmt.Fprintf(sb, "%s:\n", title)
	for _, r := range reasons {
		fmt.Fprintf(sb, "  - %s\n", r)
	}
}
