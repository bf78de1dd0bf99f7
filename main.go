package main

import (
	"runtime"

	"github.com/andresmejia3/dwell/cmd"
)

func init() {
	// The preview window must be driven from the main thread.
	runtime.LockOSThread()
}

func main() {
	cmd.Execute()
}
