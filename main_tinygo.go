//go:build tinygo

package main

import (
	"buspirate/app"
	"buspirate/hal"
)

func main() {
	app.Run(hal.New())
}
