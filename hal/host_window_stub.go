//go:build !tinygo && !cgo

package hal

import "errors"

var errNoWindow = errors.New("window: the ebiten backend needs cgo; use -headless or CGO_ENABLED=1")

func RunWindow(HostConfig, func(HAL) func() error) error {
	return errNoWindow
}
