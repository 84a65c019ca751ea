//go:build !linux && !darwin

package service

import "errors"

func diskAvailable(string) (int64, error) {
	return 0, errors.New("disk usage is not supported on this platform")
}
