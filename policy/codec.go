package policy

import (
	"fmt"

	"tripline/archive"
	"tripline/fco"
)

// EncodeSpecList writes l as stored in databases and reports.
func EncodeSpecList(w *archive.Writer, l *SpecList) {
	w.PutUint64(uint64(l.genre))
	w.PutUint64(uint64(len(l.specs)))
	for _, s := range l.specs {
		EncodeSpec(w, s)
	}
}

func EncodeSpec(w *archive.Writer, s *Spec) {
	w.PutString(s.Name)
	w.PutUint64(uint64(s.Genre))
	fco.EncodeName(w, s.StartPoint)
	w.PutUint64(uint64(s.Props))
	w.PutInt(s.Severity)
	w.PutInt(s.Recurse)
	w.PutUint64(uint64(len(s.StopPoints)))
	for _, stop := range s.StopPoints {
		fco.EncodeName(w, stop)
	}
	w.PutStrings(s.Exclude)
	w.PutStrings(s.EmailTo)
}

func DecodeSpec(r *archive.Reader) *Spec {
	s := &Spec{
		Name:       r.GetString(),
		Genre:      fco.Genre(r.GetUint64()),
		StartPoint: fco.DecodeName(r),
		Props:      fco.Vector(r.GetUint64()),
		Severity:   r.GetInt(),
		Recurse:    r.GetInt(),
	}
	n := r.GetLen()
	for i := 0; i < n && r.Err() == nil; i++ {
		s.StopPoints = append(s.StopPoints, fco.DecodeName(r))
	}
	s.Exclude = r.GetStrings()
	s.EmailTo = r.GetStrings()
	return s
}

// DecodeSpecList reads a list written by EncodeSpecList.
func DecodeSpecList(r *archive.Reader) *SpecList {
	l := NewSpecList(fco.Genre(r.GetUint64()))
	n := r.GetLen()
	for i := 0; i < n && r.Err() == nil; i++ {
		s := DecodeSpec(r)
		if r.Err() != nil {
			break
		}
		if err := l.Add(s); err != nil {
			r.SetErr(fmt.Errorf("%w: %v", archive.ErrCorrupt, err))
		}
	}
	return l
}
