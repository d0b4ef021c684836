package output

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"tripline/report"
)

// Text detail levels.
const (
	LevelSummary = iota
	LevelObjects
	LevelProperties
)

// WriteText renders rep for a terminal. LevelSummary prints the per rule
// counts, LevelObjects adds the object names and LevelProperties adds the
// expected and observed value of every changed property.
func WriteText(w io.Writer, rep *report.Report, level int) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	h := rep.Header
	fmt.Fprintf(tw, "Integrity check report\n")
	fmt.Fprintf(tw, "Report id:\t%s\n", h.ID)
	fmt.Fprintf(tw, "Database id:\t%s\n", h.DatabaseID)
	if h.SystemName != "" {
		host := h.SystemName
		if h.IPAddress != "" {
			host += " (" + h.IPAddress + ")"
		}
		fmt.Fprintf(tw, "Host:\t%s\n", host)
	}
	fmt.Fprintf(tw, "Created:\t%s\n", h.CreationTime.Local().Format(time.RFC1123))
	if h.PolicyFile != "" {
		fmt.Fprintf(tw, "Policy file:\t%s\n", h.PolicyFile)
	}
	if len(h.RuleNames) > 0 {
		fmt.Fprintf(tw, "Rules checked:\t%s\n", strings.Join(h.RuleNames, ", "))
	}
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "Rule\tSeverity\tAdded\tRemoved\tChanged")
	for _, gr := range rep.Genres {
		for _, s := range gr.Specs {
			marker := ""
			if s.Violations() > 0 {
				marker = "* "
			}
			fmt.Fprintf(tw, "%s%s\t%d\t%d\t%d\t%d\n", marker, s.Name, s.Severity, len(s.Added), len(s.Removed), len(s.Changed))
		}
	}
	sum := rep.Summary()
	fmt.Fprintln(tw)
	fmt.Fprintf(tw, "Objects scanned:\t%d\n", sum.ObjectsScanned)
	fmt.Fprintf(tw, "Violations:\t%d\n", sum.Violations())
	if sum.Violations() > 0 {
		fmt.Fprintf(tw, "Highest severity:\t%d\n", sum.MaxSeverity)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if level >= LevelObjects {
		for _, rec := range Records(rep) {
			if err := writeTextRecord(w, rec, level); err != nil {
				return err
			}
		}
	}
	if sum.Errors > 0 && level < LevelObjects {
		_, err := fmt.Fprintf(w, "\n%d error(s) occurred, raise the report level for details\n", sum.Errors)
		return err
	}
	return nil
}

func writeTextRecord(w io.Writer, rec Record, level int) error {
	switch p := rec.Payload.(type) {
	case ViolationPayload:
		if _, err := fmt.Fprintf(w, "%-8s %s  [%s]\n", p.Change+":", p.Path, p.Rule); err != nil {
			return err
		}
		if level < LevelProperties {
			return nil
		}
		for _, c := range p.Changed {
			if _, err := fmt.Fprintf(w, "    %-12s expected %s, observed %s\n", c.Property, c.Expected, c.Observed); err != nil {
				return err
			}
		}
	case ErrorPayload:
		msg := p.Message
		if p.Path != "" {
			msg = p.Path + ": " + msg
		}
		if _, err := fmt.Fprintf(w, "error:   %s (%s)\n", msg, p.Kind); err != nil {
			return err
		}
	}
	return nil
}
