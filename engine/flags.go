package engine

// Each engine has its own flag set. They overlap in meaning but not in
// type, so a flag meant for one engine cannot be passed to another.

type GenFlags uint32

const (
	// GenEraseFootprints restores access times after reading objects.
	GenEraseFootprints GenFlags = 1 << iota
	// GenDirectIO hashes with unbuffered reads.
	GenDirectIO
)

func (f GenFlags) has(b GenFlags) bool { return f&b != 0 }

type CheckFlags uint32

const (
	// CheckLooseDir ignores directory changes caused only by entries being
	// added or removed.
	CheckLooseDir CheckFlags = 1 << iota
	CheckEraseFootprints
	CheckDirectIO
)

func (f CheckFlags) has(b CheckFlags) bool { return f&b != 0 }

type UpdateFlags uint32

const (
	// UpdateReplaceAll stores the whole new property set of a changed
	// object instead of only the changed properties.
	UpdateReplaceAll UpdateFlags = 1 << iota
	// UpdateSecureMode aborts without changes when any conflict is found.
	UpdateSecureMode
	UpdateEraseFootprints
	UpdateDirectIO
)

func (f UpdateFlags) has(b UpdateFlags) bool { return f&b != 0 }

type PolicyFlags uint32

const (
	// PolicySecureMode aborts without changes on any violation or object
	// error.
	PolicySecureMode PolicyFlags = 1 << iota
	PolicyEraseFootprints
	PolicyDirectIO
)

func (f PolicyFlags) has(b PolicyFlags) bool { return f&b != 0 }
