// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package osutil

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
)

func IsWriteGroup(mode os.FileMode) bool {
	return mode&0o20 != 0
}

func IsWriteOther(mode os.FileMode) bool {
	return mode&0o02 != 0
}

// CheckDataFilePermissions reports an error when an existing data file can
// be written by its group or by others. A missing file is not an error.
func CheckDataFilePermissions(path string) error {
	if path == "" {
		return errors.New("could not verify permissions for path. No path provided")
	}

	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("error stating %q: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("path %q is not a regular file", path)
	}
	if IsWriteOther(info.Mode()) || IsWriteGroup(info.Mode()) {
		return fmt.Errorf("path %q has insecure permissions %o; no write permissions for group or others are expected", path, info.Mode().Perm())
	}
	return nil
}

// FileSha256Sum calculates the Sha256 hash of a file
func FileSha256Sum(path string) (result string, err error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() {
		err = errors.Join(err, file.Close())
	}()

	hasher := sha256.New()
	_, err = io.Copy(hasher, file)
	if err != nil {
		return "", err
	}

	result = hex.EncodeToString(hasher.Sum(nil))
	return result, err
}
