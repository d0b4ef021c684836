package fco

// DirectoryVolatile are the properties a directory changes whenever an entry
// is added to or removed from it.
var DirectoryVolatile = NewVector(PropSize, PropNLink, PropBlocks, PropATime, PropMTime, PropCTime).Union(DigestProps)

// Compare returns the properties of mask that differ between old and new.
// Properties missing on either side are not compared.
func Compare(old, new *Object, mask Vector) Vector {
	var diff Vector
	common := mask.Intersect(old.Props.Valid()).Intersect(new.Props.Valid())
	for _, p := range common.Props() {
		ov, _ := old.Props.Get(p)
		nv, _ := new.Props.Get(p)
		if !propEqual(p, ov, nv) {
			diff = diff.Add(p)
		}
	}
	return diff
}

func propEqual(p Prop, old, new Value) bool {
	if p == PropGrowing {
		o, ok1 := old.(IntValue)
		n, ok2 := new.(IntValue)
		if ok1 && ok2 {
			return n >= o
		}
	}
	return old.Equal(new)
}
