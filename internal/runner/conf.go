package runner

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Config is a parsed .conf unit test: register preconditions, register
// postconditions and the companion binary.
type Config struct {
	Pre    []InitSpec
	Post   []InitSpec
	Binary string
}

// ParseConf reads a sectioned .conf file. A [pre] section must come
// first; [post] is optional. Blank lines are skipped and any content
// before [pre] is a configuration error. The companion binary is the
// .conf path with its extension replaced by .bin.
func ParseConf(path string) (*Config, error) {
	if !strings.HasSuffix(path, ".conf") {
		return nil, fmt.Errorf("runner: %s is not a .conf file", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("runner: open %s: %w", path, err)
	}
	defer f.Close()

	cfg := &Config{Binary: path[:len(path)-len("conf")] + "bin"}

	const (
		sectNone = iota
		sectPre
		sectPost
	)
	sect := sectNone

	sc := bufio.NewScanner(f)
	lineno := 0
	for sc.Scan() {
		lineno++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		switch line {
		case "[pre]":
			sect = sectPre
			continue
		case "[post]":
			if sect == sectNone {
				return nil, fmt.Errorf("runner: %s:%d: [post] before [pre] section", path, lineno)
			}
			sect = sectPost
			continue
		}

		spec, err := ParseInit(line)
		if err != nil {
			return nil, fmt.Errorf("runner: %s:%d: %w", path, lineno, err)
		}

		switch sect {
		case sectPre:
			cfg.Pre = append(cfg.Pre, spec)
		case sectPost:
			cfg.Post = append(cfg.Post, spec)
		default:
			return nil, fmt.Errorf("runner: %s:%d: initialiser before [pre] section", path, lineno)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("runner: read %s: %w", path, err)
	}

	if sect == sectNone {
		return nil, fmt.Errorf("runner: %s: missing [pre] section", path)
	}

	return cfg, nil
}
