package report

import (
	"bytes"
	"fmt"

	"tripline/archive"
	"tripline/errqueue"
	"tripline/fco"
)

func encodeHeader(w *archive.Writer, h *Header) {
	w.PutString(h.ID)
	w.PutString(h.DatabaseID)
	w.PutString(h.Creator)
	w.PutString(h.SystemName)
	w.PutString(h.IPAddress)
	w.PutString(h.HostID)
	w.PutTime(h.CreationTime)
	w.PutString(h.PolicyFile)
	w.PutString(h.ConfigFile)
	w.PutString(h.DBFile)
	w.PutString(h.Version)
	w.PutInt(h.MinSeverity)
	w.PutStrings(h.RuleNames)
}

func decodeHeader(r *archive.Reader) Header {
	return Header{
		ID:           r.GetString(),
		DatabaseID:   r.GetString(),
		Creator:      r.GetString(),
		SystemName:   r.GetString(),
		IPAddress:    r.GetString(),
		HostID:       r.GetString(),
		CreationTime: r.GetTime(),
		PolicyFile:   r.GetString(),
		ConfigFile:   r.GetString(),
		DBFile:       r.GetString(),
		Version:      r.GetString(),
		MinSeverity:  r.GetInt(),
		RuleNames:    r.GetStrings(),
	}
}

// Errors keep their text only; the wrapped cause does not survive a round
// trip.
func encodeErrors(w *archive.Writer, items []*errqueue.Item) {
	w.PutUint64(uint64(len(items)))
	for _, it := range items {
		msg := it.Message
		if msg == "" && it.Err != nil {
			msg = it.Err.Error()
		}
		w.PutUint8(uint8(it.Kind))
		w.PutUint64(uint64(it.Genre))
		w.PutString(it.Spec)
		w.PutString(it.Path)
		w.PutString(msg)
	}
}

func decodeErrors(r *archive.Reader) []*errqueue.Item {
	n := r.GetLen()
	var out []*errqueue.Item
	for i := 0; i < n && r.Err() == nil; i++ {
		out = append(out, &errqueue.Item{
			Kind:    errqueue.Kind(r.GetUint8()),
			Genre:   fco.Genre(r.GetUint64()),
			Spec:    r.GetString(),
			Path:    r.GetString(),
			Message: r.GetString(),
		})
	}
	return out
}

func encodeObjects(w *archive.Writer, objs []*fco.Object) {
	w.PutUint64(uint64(len(objs)))
	for _, o := range objs {
		o.Encode(w)
	}
}

func decodeObjects(r *archive.Reader) []*fco.Object {
	n := r.GetLen()
	var out []*fco.Object
	for i := 0; i < n && r.Err() == nil; i++ {
		out = append(out, fco.DecodeObject(r))
	}
	return out
}

func encodeSpec(w *archive.Writer, s *SpecReport) {
	w.PutString(s.Name)
	fco.EncodeName(w, s.StartPoint)
	w.PutInt(s.Severity)
	w.PutStrings(s.EmailTo)
	w.PutUint64(uint64(s.Props))
	w.PutInt(s.ObjectsScanned)
	encodeObjects(w, s.Added)
	encodeObjects(w, s.Removed)
	w.PutUint64(uint64(len(s.Changed)))
	for _, c := range s.Changed {
		w.PutUint64(uint64(c.Diff))
		c.Old.Encode(w)
		c.New.EncodeProps(w)
	}
	encodeErrors(w, s.Errors)
}

func decodeSpec(r *archive.Reader) *SpecReport {
	s := &SpecReport{
		Name:           r.GetString(),
		StartPoint:     fco.DecodeName(r),
		Severity:       r.GetInt(),
		EmailTo:        r.GetStrings(),
		Props:          fco.Vector(r.GetUint64()),
		ObjectsScanned: r.GetInt(),
	}
	s.Added = decodeObjects(r)
	s.Removed = decodeObjects(r)
	n := r.GetLen()
	for i := 0; i < n && r.Err() == nil; i++ {
		c := Change{Diff: fco.Vector(r.GetUint64())}
		c.Old = fco.DecodeObject(r)
		c.New = fco.NewObject(c.Old.Name)
		fco.DecodeProps(r, c.New)
		s.Changed = append(s.Changed, c)
	}
	s.Errors = decodeErrors(r)
	return s
}

// Encode writes the report in section order.
func (rep *Report) Encode(w *archive.Writer) {
	encodeHeader(w, &rep.Header)
	w.PutUint64(uint64(len(rep.Genres)))
	for _, g := range rep.Genres {
		w.PutUint64(uint64(g.Genre))
		w.PutInt(g.ObjectsScanned)
		g.Displayer.Encode(w)
		encodeErrors(w, g.Errors)
		w.PutUint64(uint64(len(g.Specs)))
		for _, s := range g.Specs {
			encodeSpec(w, s)
		}
	}
}

// Decode reads a report written by Encode.
func Decode(r *archive.Reader) (*Report, error) {
	rep := &Report{Header: decodeHeader(r)}
	n := r.GetLen()
	for i := 0; i < n && r.Err() == nil; i++ {
		g := &GenreReport{
			Genre:          fco.Genre(r.GetUint64()),
			ObjectsScanned: r.GetInt(),
		}
		g.Displayer = fco.DecodePropDisplayer(r)
		g.Errors = decodeErrors(r)
		specs := r.GetLen()
		for j := 0; j < specs && r.Err() == nil; j++ {
			g.Specs = append(g.Specs, decodeSpec(r))
		}
		if rep.Genre(g.Genre) != nil {
			r.SetErr(fmt.Errorf("%w: genre %s reported twice", archive.ErrCorrupt, g.Genre))
		}
		rep.Genres = append(rep.Genres, g)
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return rep, nil
}

func (rep *Report) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	w := archive.NewWriter(&buf)
	rep.Encode(w)
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func Unmarshal(p []byte) (*Report, error) {
	return Decode(archive.NewReader(bytes.NewReader(p)))
}

// Save writes rep to path.
func Save(path string, rep *Report, opts archive.SealOptions) error {
	p, err := rep.Marshal()
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := archive.WriteFile(path, archive.KindReport, p, opts); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	return nil
}

// Load reads a report from path.
func Load(path string, opts archive.OpenOptions) (*Report, error) {
	p, _, err := archive.ReadFile(path, archive.KindReport, opts)
	if err != nil {
		return nil, fmt.Errorf("read report %s: %w", path, err)
	}
	rep, err := Unmarshal(p)
	if err != nil {
		return nil, fmt.Errorf("decode report %s: %w", path, err)
	}
	return rep, nil
}
