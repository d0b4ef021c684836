//go:build windows

package scanner

import (
	"io/fs"

	"golang.org/x/sys/windows"

	"tripline/fco"
)

func fileInformation(path string) (*windows.ByHandleFileInformation, error) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return nil, err
	}
	handle, err := windows.CreateFile(
		p,
		0,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE|windows.FILE_SHARE_DELETE,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_FLAG_BACKUP_SEMANTICS|windows.FILE_FLAG_OPEN_REPARSE_POINT,
		0,
	)
	if err != nil {
		return nil, err
	}
	defer windows.CloseHandle(handle)

	var data windows.ByHandleFileInformation
	if err := windows.GetFileInformationByHandle(handle, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// fillSysProps maps the volume serial to the device and the file index to
// the inode.
func fillSysProps(path string, info fs.FileInfo, obj *fco.Object) {
	data, err := fileInformation(path)
	if err != nil {
		return
	}
	obj.Props.Set(fco.PropDevice, fco.IntValue(int64(data.VolumeSerialNumber)))
	obj.Props.Set(fco.PropInode, fco.IntValue(int64(uint64(data.FileIndexHigh)<<32|uint64(data.FileIndexLow))))
	obj.Props.Set(fco.PropNLink, fco.IntValue(int64(data.NumberOfLinks)))
}

func deviceOf(info fs.FileInfo) uint64 {
	return 0
}
