// Command lacapture drives the logic analyzer capture engine on simulated
// hardware: one-shot captures, follow-along captures around bus operations
// and the SUMP metadata descriptor.
package main

import (
	"os"

	"k8s.io/klog/v2"
)

func main() {
	err := rootCmd.Execute()
	klog.Flush()
	if err != nil {
		os.Exit(1)
	}
}
