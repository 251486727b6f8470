//go:build linux

package spool

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Superblock magics from statfs(2). Local types are named so doctor output
// reads "tmpfs" rather than a hex number.
var linuxFilesystems = map[uint64]string{
	0x6969:     "nfs",
	0xFF534D42: "cifs",
	0x517B:     "smbfs",
	0xFE534D42: "smb2",
	0x01021994: "tmpfs",
	0xEF53:     "ext4",
	0x58465342: "xfs",
	0x9123683E: "btrfs",
	0x2FC12FC1: "zfs",
	0x794C7630: "overlayfs",
}

// detectFilesystemType reports the filesystem backing a spool directory.
func detectFilesystemType(path string) (string, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return "", fmt.Errorf("statfs spool location %q: %w", path, err)
	}

	magic := uint64(stat.Type) & 0xFFFFFFFF
	if name, ok := linuxFilesystems[magic]; ok {
		return name, nil
	}
	return fmt.Sprintf("0x%x", magic), nil
}
