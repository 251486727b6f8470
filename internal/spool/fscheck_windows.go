//go:build windows

package spool

import (
	"fmt"
	"path/filepath"

	"golang.org/x/sys/windows"
)

// detectFilesystemType maps mapped network drives and UNC paths to "smb2".
func detectFilesystemType(path string) (string, error) {
	root := filepath.VolumeName(path) + `\`
	p, err := windows.UTF16PtrFromString(root)
	if err != nil {
		return "", err
	}
	switch windows.GetDriveType(p) {
	case windows.DRIVE_REMOTE:
		return "smb2", nil
	case windows.DRIVE_NO_ROOT_DIR:
		return "", fmt.Errorf("no volume for %q", path)
	default:
		return "local", nil
	}
}
