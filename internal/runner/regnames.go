// Package runner parses test configurations, executes guest binaries
// through the trap harness and reports register state and pass/fail
// outcomes.
package runner

import (
	"fmt"
	"strconv"
	"strings"
)

// InitSpec is one register initialiser or assertion. Register 0 entries
// are legal inputs but ignored; guest x0 is hardwired.
type InitSpec struct {
	Reg uint8
	Val uint64
}

// regNames maps every accepted symbolic register name to its number.
var regNames = map[string]uint8{
	"zero": 0,
	"ra":   1,
	"sp":   2,
	"gp":   3,
	"tp":   4,
	"t0":   5,
	"t1":   6,
	"t2":   7,
	"s0":   8,
	"fp":   8,
	"s1":   9,
	"a0":   10,
	"a1":   11,
	"a2":   12,
	"a3":   13,
	"a4":   14,
	"a5":   15,
	"a6":   16,
	"a7":   17,
	"s2":   18,
	"s3":   19,
	"s4":   20,
	"s5":   21,
	"s6":   22,
	"s7":   23,
	"s8":   24,
	"s9":   25,
	"s10":  26,
	"s11":  27,
	"t3":   28,
	"t4":   29,
	"t5":   30,
	"t6":   31,
}

func init() {
	for i := 0; i < 32; i++ {
		regNames[fmt.Sprintf("x%d", i)] = uint8(i)
	}
}

// ParseInit parses an initialiser of the form "rN=V", "RN=V" or
// "symbolic=V". V takes base auto-detection: leading 0x is hex, a
// leading 0 is octal, anything else decimal.
func ParseInit(s string) (InitSpec, error) {
	name, val, ok := strings.Cut(s, "=")
	if !ok {
		return InitSpec{}, fmt.Errorf("runner: invalid register initialiser %q", s)
	}

	num, err := parseRegName(name)
	if err != nil {
		return InitSpec{}, err
	}

	v, err := strconv.ParseUint(val, 0, 64)
	if err != nil {
		return InitSpec{}, fmt.Errorf("runner: invalid value in %q: %w", s, err)
	}

	return InitSpec{Reg: num, Val: v}, nil
}

func parseRegName(name string) (uint8, error) {
	if len(name) > 1 && (name[0] == 'r' || name[0] == 'R') {
		if n, err := strconv.Atoi(name[1:]); err == nil {
			if n < 0 || n > 31 {
				return 0, fmt.Errorf("runner: register %d out of range", n)
			}
			return uint8(n), nil
		}
	}
	if n, ok := regNames[name]; ok {
		return n, nil
	}
	return 0, fmt.Errorf("runner: unknown register name %q", name)
}
