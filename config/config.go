// Package config is the typed key-value store shared between the worker
// and user operators (spec §4.7), plus the CLI flag parsing that builds
// one for cmd/timely (spec §6). It uses the standard library's flag
// package: no argument-parsing library appears anywhere in the example
// corpus to ground a third-party choice on (see DESIGN.md).
package config

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joeycumines/timely/timelyerr"
)

// Config is the process-wide, read-mostly settings map every worker and
// operator in the process shares.
type Config struct {
	// Workers is the number of worker threads in this process (-w).
	Workers int
	// Processes is the total number of cooperating processes (-n).
	Processes int
	// ProcessIndex is this process' zero-based index among Processes (-p).
	ProcessIndex int
	// Hosts is the ordered list of "host:port" addresses, one per process,
	// parsed from the hostfile (-h). Empty for single-process runs.
	Hosts []string

	extra map[string]string
}

// Get returns an additional, untyped configuration value set via Set, and
// whether it was present.
func (c *Config) Get(key string) (string, bool) {
	v, ok := c.extra[key]
	return v, ok
}

// Set stores an additional, untyped configuration value.
func (c *Config) Set(key, value string) {
	if c.extra == nil {
		c.extra = make(map[string]string)
	}
	c.extra[key] = value
}

// FromFlags parses spec §6's CLI surface (-w, -n, -p, -h) from args (pass
// os.Args[1:]) and validates the result, returning a
// *timelyerr.ConfigurationError for anything malformed or inconsistent —
// no dataflow is built when this fails.
func FromFlags(name string, args []string) (*Config, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	workers := fs.Int("w", 1, "worker threads in this process")
	processes := fs.Int("n", 1, "total cooperating process count")
	processIndex := fs.Int("p", 0, "this process' index among -n processes")
	hostfile := fs.String("h", "", "hostfile of host:port lines, one per process")

	if err := fs.Parse(args); err != nil {
		return nil, &timelyerr.ConfigurationError{Option: "flags", Cause: err, Message: "failed to parse command-line flags"}
	}

	cfg := &Config{Workers: *workers, Processes: *processes, ProcessIndex: *processIndex}

	if cfg.Workers < 1 {
		return nil, &timelyerr.ConfigurationError{Option: "-w", Message: fmt.Sprintf("worker count must be >= 1, got %d", cfg.Workers)}
	}
	if cfg.Processes < 1 {
		return nil, &timelyerr.ConfigurationError{Option: "-n", Message: fmt.Sprintf("process count must be >= 1, got %d", cfg.Processes)}
	}
	if cfg.ProcessIndex < 0 || cfg.ProcessIndex >= cfg.Processes {
		return nil, &timelyerr.ConfigurationError{Option: "-p", Message: fmt.Sprintf("process index %d out of range [0,%d)", cfg.ProcessIndex, cfg.Processes)}
	}

	if *hostfile != "" {
		contents, err := os.ReadFile(*hostfile)
		if err != nil {
			return nil, &timelyerr.ConfigurationError{Option: "-h", Cause: err, Message: "failed to read hostfile"}
		}
		hosts, err := parseHostfile(string(contents))
		if err != nil {
			return nil, &timelyerr.ConfigurationError{Option: "-h", Cause: err, Message: "malformed hostfile"}
		}
		if len(hosts) != cfg.Processes {
			return nil, &timelyerr.ConfigurationError{Option: "-h", Message: fmt.Sprintf("hostfile has %d entries but -n specified %d processes", len(hosts), cfg.Processes)}
		}
		cfg.Hosts = hosts
	} else if cfg.Processes > 1 {
		return nil, &timelyerr.ConfigurationError{Option: "-h", Message: "a hostfile (-h) is required when -n > 1"}
	}

	return cfg, nil
}

func parseHostfile(contents string) ([]string, error) {
	var hosts []string
	for _, line := range strings.Split(contents, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !strings.Contains(line, ":") {
			return nil, fmt.Errorf("malformed hostfile line %q: expected host:port", line)
		}
		hosts = append(hosts, line)
	}
	return hosts, nil
}
