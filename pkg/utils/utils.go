// Package utils carries the small filesystem and messaging helpers
// shared by the farm roles.
package utils

import "os"

// EnsureDir creates the entire path (wrapping os.MkdirAll) if it does
// not exist yet. An existing path is not an error.
func EnsureDir(path string) error {
	exists, err := PathExists(path)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return os.MkdirAll(path, os.ModeDir|os.ModePerm)
}

// PathExists returns whether the given file or directory exists.
func PathExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return true, err
}
