//go:build !windows

package main

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/pkg/term"
	"k8s.io/klog/v2"
)

// waitKey puts the controlling terminal in cbreak mode and reports whether
// a key was pressed before ctx ended. Without a terminal it waits for ctx.
func waitKey(ctx context.Context) bool {
	t, err := term.Open("/dev/tty", term.CBreakMode)
	if err != nil {
		klog.V(1).Infof("keys: %v", err)
		<-ctx.Done()
		return false
	}
	defer t.Close()
	defer t.Restore()
	if err := t.SetReadTimeout(100 * time.Millisecond); err != nil {
		klog.V(1).Infof("keys: %v", err)
	}

	b := make([]byte, 1)
	for ctx.Err() == nil {
		n, err := t.Read(b)
		if n > 0 {
			return true
		}
		if err != nil && !errors.Is(err, io.EOF) {
			klog.V(1).Infof("keys: %v", err)
			<-ctx.Done()
			return false
		}
	}
	return false
}
