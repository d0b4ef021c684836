//go:build windows

package scanner

func getXattrs(string, int) (map[string][]byte, error) {
	return nil, errNotSupported
}
