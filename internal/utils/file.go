package utils

import (
	"io"
	"os"
)

// CopyFile copies the contents of src into dst, creating or truncating dst.
// The caller owns the parent directory of dst.
func CopyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		dstFile.Close()
		return err
	}

	// a failed close can mean a failed write on some filesystems
	return dstFile.Close()
}

// FileSize returns the size of path without following symlinks, or 0.
func FileSize(path string) int64 {
	info, err := os.Lstat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
