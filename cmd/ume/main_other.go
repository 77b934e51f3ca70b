//go:build !(linux && riscv64)

package main

import (
	"fmt"
	"os"

	"github.com/tinyrange/ume/internal/status"
)

// Native execution requires that the guest's code is the host's code.
func main() {
	fmt.Fprintln(os.Stderr, "ume: native execution requires linux/riscv64")
	os.Exit(status.NotSupported)
}
