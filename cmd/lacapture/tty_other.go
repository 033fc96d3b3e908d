//go:build windows

package main

import "context"

func waitKey(ctx context.Context) bool {
	<-ctx.Done()
	return false
}
