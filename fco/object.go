package fco

// PropertySet is the property bag of an object. Only properties in Valid()
// carry a value.
type PropertySet struct {
	valid  Vector
	values [NumProps]Value
}

func (s *PropertySet) Set(p Prop, v Value) {
	if !p.valid() || v == nil {
		return
	}
	s.values[p] = v
	s.valid = s.valid.Add(p)
}

func (s *PropertySet) Get(p Prop) (Value, bool) {
	if !s.valid.Has(p) {
		return nil, false
	}
	return s.values[p], true
}

func (s *PropertySet) Clear(p Prop) {
	if !p.valid() {
		return
	}
	s.values[p] = nil
	s.valid = s.valid.Remove(p)
}

func (s *PropertySet) Valid() Vector { return s.valid }

// Object is one inspectable entity of a genre. An object is owned by exactly
// one container at a time; use Clone to hand a copy to another.
type Object struct {
	Name  Name
	Props PropertySet
}

func NewObject(name Name) *Object {
	return &Object{Name: name}
}

// IsStub reports whether no property could be captured.
func (o *Object) IsStub() bool { return o.Props.valid.IsEmpty() }

func (o *Object) Clone() *Object {
	c := &Object{Name: o.Name}
	c.Props.valid = o.Props.valid
	for i, v := range o.Props.values {
		if b, ok := v.(BytesValue); ok {
			v = append(BytesValue(nil), b...)
		}
		c.Props.values[i] = v
	}
	return c
}

// Type returns the object's file type, or TypeUnknown if it was not captured.
func (o *Object) Type() FileType {
	if v, ok := o.Props.Get(PropFileType); ok {
		return FileType(v.(FileTypeValue))
	}
	return TypeUnknown
}

func (o *Object) IsDir() bool { return o.Type() == TypeDirectory }

// CopyProps overwrites the properties in v with the values from src. A
// property in v that src lacks is cleared.
func (o *Object) CopyProps(src *Object, v Vector) {
	for _, p := range v.Props() {
		if val, ok := src.Props.Get(p); ok {
			if b, isBytes := val.(BytesValue); isBytes {
				val = append(BytesValue(nil), b...)
			}
			o.Props.Set(p, val)
		} else {
			o.Props.Clear(p)
		}
	}
}

// Trim drops every property outside v.
func (o *Object) Trim(v Vector) {
	for _, p := range o.Props.valid.Minus(v).Props() {
		o.Props.Clear(p)
	}
}

// Equal compares name and every property value.
func (o *Object) Equal(other *Object) bool {
	if o == nil || other == nil {
		return o == other
	}
	if !o.Name.Equal(other.Name) || o.Props.valid != other.Props.valid {
		return false
	}
	for _, p := range o.Props.valid.Props() {
		if !o.Props.values[p].Equal(other.Props.values[p]) {
			return false
		}
	}
	return true
}
