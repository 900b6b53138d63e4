//go:build !linux && !darwin

package storage

import "errors"

func diskUsage(string) (total, free uint64, err error) {
	return 0, 0, errors.ErrUnsupported
}
