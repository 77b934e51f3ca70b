package runner

import (
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/term"

	"github.com/tinyrange/ume/internal/trap"
)

// ANSI color codes, emitted only when writing to a terminal.
const (
	colorReset = "\033[0m"
	colorRed   = "\033[31m"
	colorGreen = "\033[32m"
)

func useColor() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func color(c, s string) string {
	if !useColor() {
		return s
	}
	return c + s + colorReset
}

// dumpNames orders the register dump: pc first, then the ABI names of
// x1..x31, two columns of sixteen.
var dumpNames = [32]string{
	" pc", " ra", " sp", " gp", " tp", " t0", " t1", " t2",
	" fp", " s1", " a0", " a1", " a2", " a3", " a4", " a5",
	" a6", " a7", " s2", " s3", " s4", " s5", " s6", " s7",
	" s8", " s9", "s10", "s11", " t3", " t4", " t5", " t6",
}

// WriteDump formats the register file the way the harness has always
// reported it: sixteen rows of two name=value columns with pc leading.
func WriteDump(w io.Writer, regs trap.RegisterFile) {
	var vals [32]uint64
	vals[0] = regs.PC
	copy(vals[1:], regs.X[1:])

	for i := 0; i < 16; i++ {
		fmt.Fprintf(w, "%s=%.16x  %s=%.16x\n",
			dumpNames[i], vals[i], dumpNames[i+16], vals[i+16])
	}
}

// FormatElapsed renders a duration in the largest unit (ns, µs, ms or s)
// in which the value is at least one.
func FormatElapsed(d time.Duration) string {
	ns := d.Nanoseconds()
	switch {
	case d < time.Microsecond:
		return fmt.Sprintf("%d ns", ns)
	case d < time.Millisecond:
		return fmt.Sprintf("%.3f µs", float64(ns)/1e3)
	case d < time.Second:
		return fmt.Sprintf("%.3f ms", float64(ns)/1e6)
	default:
		return fmt.Sprintf("%.3f s", float64(ns)/1e9)
	}
}
