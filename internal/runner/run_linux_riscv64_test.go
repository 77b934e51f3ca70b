//go:build linux && riscv64

package runner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tinyrange/ume/internal/asm"
	"github.com/tinyrange/ume/internal/status"
	"github.com/tinyrange/ume/internal/trap"
)

const guestVaddr = 0x10000

func buildGuest(t *testing.T, emit func(p *asm.Program) error) string {
	t.Helper()
	var p asm.Program
	if err := emit(&p); err != nil {
		t.Fatal(err)
	}
	img, err := asm.BuildExec(p.Bytes(), guestVaddr)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "guest.bin")
	if err := os.WriteFile(path, img, 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func captureSerial(t *testing.T) (*os.File, Options) {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		r.Close()
		w.Close()
	})
	return r, Options{serialFD: int(w.Fd())}
}

func TestHelloSerial(t *testing.T) {
	bin := buildGuest(t, func(p *asm.Program) error {
		if err := p.Li(asm.X10, 'A'); err != nil {
			return err
		}
		if err := p.Store(1, asm.X10, asm.X0, 0x200); err != nil {
			return err
		}
		return p.Store(4, asm.X0, asm.X0, 0x278)
	})

	r, opts := captureSerial(t)
	res, code, err := execute(bin, nil, opts)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if code != status.Success {
		t.Fatalf("code = %d, want Success", code)
	}
	if res.exit != trap.ExitByStatus {
		t.Errorf("exit = %v, want ExitByStatus", res.exit)
	}

	buf := make([]byte, 1)
	if _, err := r.Read(buf); err != nil {
		t.Fatal(err)
	}
	if buf[0] != 'A' {
		t.Errorf("serial output = %q, want 'A'", buf[0])
	}
}

func TestRegisterPassthrough(t *testing.T) {
	bin := buildGuest(t, func(p *asm.Program) error {
		p.Marker()
		return nil
	})

	pre := []InitSpec{{Reg: 10, Val: 0xdeadbeef}}
	res, _, err := execute(bin, pre, Options{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if res.exit != trap.ExitByMarker {
		t.Errorf("exit = %v, want ExitByMarker", res.exit)
	}
	if res.regs.X[10] != 0xdeadbeef {
		t.Errorf("a0 = %#x, want 0xdeadbeef", res.regs.X[10])
	}
}

func TestZeroRegisterStaysZero(t *testing.T) {
	bin := buildGuest(t, func(p *asm.Program) error {
		p.Marker()
		return nil
	})

	// Pre-inits for x0 are legal inputs but ignored.
	pre := []InitSpec{{Reg: 0, Val: 5}}
	res, _, err := execute(bin, pre, Options{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.regs.X[0] != 0 {
		t.Errorf("x0 = %#x, want 0", res.regs.X[0])
	}
}

func addiGuest(t *testing.T) string {
	return buildGuest(t, func(p *asm.Program) error {
		p.Add(asm.X3, asm.X1, asm.X2)
		return p.Store(1, asm.X0, asm.X0, 0x278)
	})
}

func TestConfAddi(t *testing.T) {
	bin := addiGuest(t)
	conf := bin[:len(bin)-len("bin")] + "conf"
	content := "[pre]\nr1=0x10\nr2=0x20\n[post]\nr3=0x30\n"
	if err := os.WriteFile(conf, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	code, err := RunConf(conf, Options{})
	if err != nil {
		t.Fatalf("RunConf: %v", err)
	}
	if code != status.Success {
		t.Errorf("code = %d, want Success", code)
	}
}

func TestConfAddiMismatch(t *testing.T) {
	bin := addiGuest(t)
	conf := bin[:len(bin)-len("bin")] + "conf"
	content := "[pre]\nr1=0x10\nr2=0x20\n[post]\nr3=0x31\n"
	if err := os.WriteFile(conf, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	code, err := RunConf(conf, Options{})
	if err != nil {
		t.Fatalf("RunConf: %v", err)
	}
	if code != status.UnitTestFailed {
		t.Errorf("code = %d, want UnitTestFailed", code)
	}
}

func TestRunTwiceIsIdempotent(t *testing.T) {
	bin := buildGuest(t, func(p *asm.Program) error {
		if err := p.Li(asm.X5, 0x1234); err != nil {
			return err
		}
		p.Marker()
		return nil
	})

	pre := []InitSpec{{Reg: 1, Val: 7}}

	first, _, err := execute(bin, pre, Options{})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, _, err := execute(bin, pre, Options{})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if first.regs != second.regs {
		t.Error("register state differs between identical runs")
	}
	if first.regs.X[5] != 0x1234 {
		t.Errorf("t0 = %#x, want 0x1234", first.regs.X[5])
	}
}

func TestSentinelMatchesStatusExit(t *testing.T) {
	// The sentinel and a store to the exit address must deliver the
	// same snapshot; they differ only in the exit type.
	markerBin := buildGuest(t, func(p *asm.Program) error {
		if err := p.Li(asm.X6, 99); err != nil {
			return err
		}
		p.Marker()
		return nil
	})
	statusBin := buildGuest(t, func(p *asm.Program) error {
		if err := p.Li(asm.X6, 99); err != nil {
			return err
		}
		return p.Store(4, asm.X0, asm.X0, 0x278)
	})

	m, _, err := execute(markerBin, nil, Options{})
	if err != nil {
		t.Fatal(err)
	}
	s, _, err := execute(statusBin, nil, Options{})
	if err != nil {
		t.Fatal(err)
	}

	if m.exit != trap.ExitByMarker || s.exit != trap.ExitByStatus {
		t.Errorf("exit types = %v/%v", m.exit, s.exit)
	}
	if m.regs.X[6] != 99 || s.regs.X[6] != 99 {
		t.Errorf("t1 = %#x/%#x, want 99", m.regs.X[6], s.regs.X[6])
	}
}

func TestBadELF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.bin")
	if err := os.WriteFile(path, []byte("\x7fEL?not an elf"), 0o755); err != nil {
		t.Fatal(err)
	}

	_, code, err := execute(path, nil, Options{})
	if err == nil {
		t.Fatal("expected an error for a corrupt image")
	}
	if code != status.InitializationError {
		t.Errorf("code = %d, want InitializationError", code)
	}
}
