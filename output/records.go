package output

import (
	"sort"
	"time"

	"tripline/errqueue"
	"tripline/fco"
	"tripline/policy"
	"tripline/report"
)

const SchemaVersion = "1.0"

// Record is one line of the exported report.
type Record struct {
	RecordType    string      `json:"record_type"`
	SchemaVersion string      `json:"schema_version"`
	Payload       interface{} `json:"payload"`
}

type HeaderPayload struct {
	ReportID     string   `json:"report_id"`
	DatabaseID   string   `json:"database_id"`
	Creator      string   `json:"creator,omitempty"`
	SystemName   string   `json:"system_name,omitempty"`
	IPAddress    string   `json:"ip_address,omitempty"`
	HostID       string   `json:"host_id,omitempty"`
	CreationTime string   `json:"creation_time"`
	PolicyFile   string   `json:"policy_file,omitempty"`
	DBFile       string   `json:"database_file,omitempty"`
	Version      string   `json:"version,omitempty"`
	MinSeverity  int      `json:"min_severity,omitempty"`
	RuleNames    []string `json:"rule_names,omitempty"`
}

// PropChange is a single property that differs between the database and the
// live object.
type PropChange struct {
	Property string `json:"property"`
	Expected string `json:"expected"`
	Observed string `json:"observed"`
}

type ViolationPayload struct {
	Genre      string            `json:"genre"`
	Rule       string            `json:"rule"`
	Severity   int               `json:"severity"`
	Level      string            `json:"severity_level"`
	Change     string            `json:"change"`
	Path       string            `json:"path"`
	Properties map[string]string `json:"properties,omitempty"`
	Changed    []PropChange      `json:"changed,omitempty"`
}

type ErrorPayload struct {
	Kind    string `json:"kind"`
	Genre   string `json:"genre,omitempty"`
	Rule    string `json:"rule,omitempty"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

type SummaryPayload struct {
	Added          int      `json:"added"`
	Removed        int      `json:"removed"`
	Changed        int      `json:"changed"`
	Violations     int      `json:"violations"`
	Errors         int      `json:"errors"`
	ObjectsScanned int      `json:"objects_scanned"`
	MaxSeverity    int      `json:"max_severity"`
	Violated       []string `json:"violated_rules,omitempty"`
}

const (
	ChangeAdded   = "added"
	ChangeRemoved = "removed"
	ChangeChanged = "changed"
)

// Records flattens rep into the order it is exported: the header, then per
// genre and rule the added, removed and changed objects followed by the
// rule's errors, then the genre errors, then the summary.
func Records(rep *report.Report) []Record {
	out := []Record{newRecord("report", headerPayload(rep.Header))}
	for _, gr := range rep.Genres {
		for _, s := range gr.Specs {
			for _, o := range s.Added {
				out = append(out, newRecord("violation", objectPayload(gr, s, ChangeAdded, o, s.Props)))
			}
			for _, o := range s.Removed {
				out = append(out, newRecord("violation", objectPayload(gr, s, ChangeRemoved, o, s.Props)))
			}
			for _, c := range s.Changed {
				out = append(out, newRecord("violation", changePayload(gr, s, c)))
			}
			for _, item := range s.Errors {
				out = append(out, newRecord("error", errorPayload(item)))
			}
		}
		for _, item := range gr.Errors {
			out = append(out, newRecord("error", errorPayload(item)))
		}
	}
	out = append(out, newRecord("summary", summaryPayload(rep.Summary())))
	return out
}

func newRecord(recordType string, payload interface{}) Record {
	return Record{RecordType: recordType, SchemaVersion: SchemaVersion, Payload: payload}
}

func headerPayload(h report.Header) HeaderPayload {
	return HeaderPayload{
		ReportID:     h.ID,
		DatabaseID:   h.DatabaseID,
		Creator:      h.Creator,
		SystemName:   h.SystemName,
		IPAddress:    h.IPAddress,
		HostID:       h.HostID,
		CreationTime: h.CreationTime.UTC().Format(time.RFC3339),
		PolicyFile:   h.PolicyFile,
		DBFile:       h.DBFile,
		Version:      h.Version,
		MinSeverity:  h.MinSeverity,
		RuleNames:    h.RuleNames,
	}
}

func objectPayload(gr *report.GenreReport, s *report.SpecReport, change string, o *fco.Object, mask fco.Vector) ViolationPayload {
	p := violationBase(gr, s, change, o.Name)
	props := map[string]string{}
	for _, prop := range o.Props.Valid().Intersect(mask).Props() {
		v, _ := o.Props.Get(prop)
		props[prop.String()] = gr.Displayer.Format(prop, v)
	}
	if len(props) > 0 {
		p.Properties = props
	}
	return p
}

func changePayload(gr *report.GenreReport, s *report.SpecReport, c report.Change) ViolationPayload {
	p := violationBase(gr, s, ChangeChanged, c.New.Name)
	for _, prop := range c.Diff.Props() {
		var old, cur fco.Value
		if c.Old != nil {
			old, _ = c.Old.Props.Get(prop)
		}
		cur, _ = c.New.Props.Get(prop)
		p.Changed = append(p.Changed, PropChange{
			Property: prop.String(),
			Expected: gr.Displayer.Format(prop, old),
			Observed: gr.Displayer.Format(prop, cur),
		})
	}
	return p
}

func violationBase(gr *report.GenreReport, s *report.SpecReport, change string, name fco.Name) ViolationPayload {
	return ViolationPayload{
		Genre:    gr.Genre.String(),
		Rule:     s.Name,
		Severity: s.Severity,
		Level:    policy.SeverityName(s.Severity),
		Change:   change,
		Path:     name.String(),
	}
}

func errorPayload(item *errqueue.Item) ErrorPayload {
	p := ErrorPayload{Kind: item.Kind.String(), Rule: item.Spec, Path: item.Path, Message: item.Message}
	if item.Genre != 0 {
		p.Genre = item.Genre.String()
	}
	if p.Message == "" && item.Err != nil {
		p.Message = item.Err.Error()
	}
	return p
}

func summaryPayload(sum report.Summary) SummaryPayload {
	return SummaryPayload{
		Added:          sum.Added,
		Removed:        sum.Removed,
		Changed:        sum.Changed,
		Violations:     sum.Violations(),
		Errors:         sum.Errors,
		ObjectsScanned: sum.ObjectsScanned,
		MaxSeverity:    sum.MaxSeverity,
		Violated:       sum.Violated,
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
