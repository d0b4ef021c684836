package scanner

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
)

// xattrDigest folds a set of extended attributes into one comparable value.
// No attributes digest to the empty string.
func xattrDigest(xattrs map[string][]byte) string {
	if len(xattrs) == 0 {
		return ""
	}
	names := make([]string, 0, len(xattrs))
	for name := range xattrs {
		names = append(names, name)
	}
	sort.Strings(names)
	h := sha256.New()
	for _, name := range names {
		h.Write([]byte(name))
		h.Write([]byte{0})
		h.Write(xattrs[name])
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
