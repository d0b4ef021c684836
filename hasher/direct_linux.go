//go:build linux

package hasher

import (
	"errors"
	"io"
	"io/fs"
	"os"

	"golang.org/x/sys/unix"
)

const directBufferSize = 1 << 20

// digestDirect reads with O_DIRECT so large baselines do not evict the page
// cache. The buffer comes from an anonymous mapping, which is page aligned.
func digestDirect(path string, w io.Writer) error {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_DIRECT|unix.O_CLOEXEC, 0)
	if err != nil {
		if errors.Is(err, unix.EINVAL) {
			return errDirectUnsupported
		}
		return &fs.PathError{Op: "open", Path: path, Err: err}
	}
	file := os.NewFile(uintptr(fd), path)
	defer file.Close()

	buf, err := unix.Mmap(-1, 0, directBufferSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return errDirectUnsupported
	}
	defer unix.Munmap(buf)

	for {
		n, readErr := file.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return err
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return nil
			}
			if errors.Is(readErr, unix.EINVAL) {
				return errDirectUnsupported
			}
			return readErr
		}
	}
}
