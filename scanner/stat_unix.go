//go:build !windows

package scanner

import (
	"io/fs"
	"syscall"

	"tripline/fco"
)

func fillSysProps(path string, info fs.FileInfo, obj *fco.Object) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok || stat == nil {
		return
	}
	obj.Props.Set(fco.PropDevice, fco.IntValue(int64(stat.Dev)))
	obj.Props.Set(fco.PropRDevice, fco.IntValue(int64(stat.Rdev)))
	obj.Props.Set(fco.PropInode, fco.IntValue(int64(stat.Ino)))
	obj.Props.Set(fco.PropNLink, fco.IntValue(int64(stat.Nlink)))
	obj.Props.Set(fco.PropUID, fco.IntValue(int64(stat.Uid)))
	obj.Props.Set(fco.PropGID, fco.IntValue(int64(stat.Gid)))
	obj.Props.Set(fco.PropBlocks, fco.IntValue(int64(stat.Blocks)))
}

func deviceOf(info fs.FileInfo) uint64 {
	if stat, ok := info.Sys().(*syscall.Stat_t); ok && stat != nil {
		return uint64(stat.Dev)
	}
	return 0
}
