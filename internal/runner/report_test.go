package runner

import (
	"strings"
	"testing"
	"time"

	"github.com/tinyrange/ume/internal/trap"
)

func TestFormatElapsed(t *testing.T) {
	for _, tt := range []struct {
		d    time.Duration
		want string
	}{
		{d: 123 * time.Nanosecond, want: "123 ns"},
		{d: 1500 * time.Nanosecond, want: "1.500 µs"},
		{d: 2500 * time.Microsecond, want: "2.500 ms"},
		{d: 3 * time.Second, want: "3.000 s"},
	} {
		if got := FormatElapsed(tt.d); got != tt.want {
			t.Errorf("FormatElapsed(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestWriteDump(t *testing.T) {
	var regs trap.RegisterFile
	regs.PC = 0x10000
	regs.X[1] = 0xdeadbeef  // ra
	regs.X[10] = 0x42       // a0
	regs.X[31] = 0xffffffff // t6

	var sb strings.Builder
	WriteDump(&sb, regs)
	out := sb.String()

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 16 {
		t.Fatalf("dump has %d lines, want 16", len(lines))
	}

	for _, want := range []string{
		" pc=0000000000010000",
		" ra=00000000deadbeef",
		" a0=0000000000000042",
		" t6=00000000ffffffff",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("dump missing %q:\n%s", want, out)
		}
	}
}
