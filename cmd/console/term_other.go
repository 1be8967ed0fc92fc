//go:build !linux

package main

import "github.com/pkg/errors"

func setRawIO() (func(), error) {
	return nil, errors.New("raw terminal mode is only supported on linux")
}
