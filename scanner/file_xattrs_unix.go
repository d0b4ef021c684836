//go:build !windows

package scanner

import (
	"errors"

	"golang.org/x/sys/unix"
)

// getXattrs lists the extended attributes of path without following a
// final symlink. maxValueSize < 0 reads whole values.
func getXattrs(path string, maxValueSize int) (map[string][]byte, error) {
	size, err := unix.Llistxattr(path, nil)
	if err != nil {
		if errors.Is(err, unix.ENOTSUP) || errors.Is(err, unix.EOPNOTSUPP) {
			return nil, errNotSupported
		}
		return nil, err
	}
	if size <= 0 {
		return nil, nil
	}
	buf := make([]byte, size)
	n, err := unix.Llistxattr(path, buf)
	if err != nil {
		return nil, err
	}
	buf = buf[:n]
	result := make(map[string][]byte)
	for len(buf) > 0 {
		i := 0
		for i < len(buf) && buf[i] != 0 {
			i++
		}
		name := string(buf[:i])
		if name != "" {
			val, err := readXattrValue(path, name, maxValueSize)
			if err != nil {
				return nil, err
			}
			result[name] = val
		}
		if i+1 >= len(buf) {
			break
		}
		buf = buf[i+1:]
	}
	return result, nil
}

func readXattrValue(path, name string, maxValueSize int) ([]byte, error) {
	if maxValueSize == 0 {
		return nil, nil
	}
	size, err := unix.Lgetxattr(path, name, nil)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, nil
	}
	if maxValueSize > 0 && size > maxValueSize {
		size = maxValueSize
	}
	buf := make([]byte, size)
	n, err := unix.Lgetxattr(path, name, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}
