package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/tordrt/fedquery/internal/db"
	"github.com/tordrt/fedquery/internal/federation"
	"github.com/tordrt/fedquery/internal/orchestrator"
	"github.com/tordrt/fedquery/internal/selector"
)

var (
	promptColor = color.New(color.FgGreen, color.Bold)
	sqlColor    = color.New(color.FgCyan)
	warnColor   = color.New(color.FgYellow)
	errorColor  = color.New(color.FgRed)
)

// printResult shows failed attempts, the final SQL and the rows. A nil
// result prints nothing.
func printResult(w io.Writer, res *orchestrator.Result) {
	if res == nil {
		return
	}

	for _, a := range res.Attempts {
		if a.Error == "" {
			continue
		}
		warnColor.Fprintf(w, "Attempt %d failed: %s\n", a.Number, a.Error)
		fmt.Fprintf(w, "  %s\n", a.SQL)
	}

	if res.LastError != "" {
		errorColor.Fprintf(w, "Gave up after %d attempts\n", len(res.Attempts))
		return
	}

	sqlColor.Fprintf(w, "SQL: %s\n", res.SQL)
	printRows(w, res.Columns, res.Rows)
}

func printError(w io.Writer, err error) {
	errorColor.Fprintf(w, "Error: %v\n", err)
}

// printRows writes rows as aligned columns followed by a row count.
func printRows(w io.Writer, columns []string, rows []db.Row) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	if len(columns) > 0 {
		fmt.Fprintln(tw, strings.Join(columns, "\t"))
	}
	for _, row := range rows {
		cells := make([]string, len(row.Values))
		for i, v := range row.Values {
			cells[i] = formatValue(v)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	_ = tw.Flush()

	if len(rows) == 1 {
		fmt.Fprintln(w, "(1 row)")
	} else {
		fmt.Fprintf(w, "(%d rows)\n", len(rows))
	}
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(x)
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprint(v)
	}
}

func printPlan(w io.Writer, d *federation.RoutingDecision) {
	fmt.Fprintf(w, "Mode:    %s\n", d.Mode)
	fmt.Fprintf(w, "Aliases: %s\n", strings.Join(d.RequiredAliases, ", "))

	names := make([]string, 0, len(d.Tables))
	for name := range d.Tables {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w, "Tables:")
	for _, name := range names {
		vt := d.Tables[name]
		fmt.Fprintf(w, "  %s -> %s.%s\n", name, vt.Alias, vt.Physical)
	}
	sqlColor.Fprintf(w, "SQL: %s\n", d.SQL)
}

func printSelection(w io.Writer, sel *selector.Selection) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tTABLE\tALIAS\tSCORE")
	for i, m := range sel.Matches {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.4f\n", i+1, m.Table, m.Alias, m.Score)
	}
	_ = tw.Flush()

	fmt.Fprintf(w, "Advisory alias: %s\n", sel.TargetAlias)
}

// printEntries lists the selector index.
func printEntries(w io.Writer, entries []selector.Entry) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TABLE\tALIAS\tDIMS")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", e.Key, e.Alias, len(e.Embedding))
	}
	_ = tw.Flush()

	if len(entries) == 1 {
		fmt.Fprintln(w, "(1 table)")
	} else {
		fmt.Fprintf(w, "(%d tables)\n", len(entries))
	}
}
