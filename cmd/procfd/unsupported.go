//go:build !linux

package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Fprintln(
		os.Stderr,
		"procfd is only supported on Linux.\n\nIt reads open file descriptors from /proc, which other platforms do not provide.",
	)
	os.Exit(2)
}
