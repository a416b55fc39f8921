package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pathcanon/pathcanon/internal/normalize"
)

type ValidationError struct {
	Problems []string
}

func (v *ValidationError) Add(format string, args ...any) {
	v.Problems = append(v.Problems, fmt.Sprintf(format, args...))
}

func (v *ValidationError) Error() string {
	return fmt.Sprintf("%d validation error(s)", len(v.Problems))
}

func (c *Config) Validate() error {
	v := &ValidationError{}

	if c.ConfigVersion != 1 {
		v.Add("configVersion must be 1")
	}

	if _, err := normalize.ParseGrammar(c.Grammar); err != nil {
		v.Add("grammar invalid: %v", err)
	}

	if err := validateListen(c.Server.Listen); err != nil {
		v.Add("server.listen invalid: %v", err)
	}
	if c.Server.Timeout <= 0 {
		v.Add("server.timeout must be > 0")
	}
	if c.Server.MaxFragments <= 0 {
		v.Add("server.maxFragments must be > 0")
	}
	if c.Server.RateLimit.Enabled {
		if c.Server.RateLimit.RPS <= 0 {
			v.Add("server.rateLimit.rps must be > 0")
		}
		if c.Server.RateLimit.Burst <= 0 {
			v.Add("server.rateLimit.burst must be > 0")
		}
	}

	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		v.Add("logging.level invalid: %v", err)
	}
	switch c.Logging.Format {
	case FormatText, FormatJSON:
	default:
		v.Add("logging.format must be text|json")
	}
	if c.Logging.TraceLog != "" {
		if err := ensureWritable(c.resolvePath(c.Logging.TraceLog)); err != nil {
			v.Add("logging.traceLog invalid: %v", err)
		}
	}

	if c.Metrics.Enabled {
		if err := validateListen(c.Metrics.Listen); err != nil {
			v.Add("metrics.listen invalid: %v", err)
		} else if c.Metrics.Listen == c.Server.Listen {
			v.Add("metrics.listen must differ from server.listen")
		}
	}

	if len(v.Problems) > 0 {
		sort.Strings(v.Problems)
		return v
	}
	return nil
}

func validateListen(addr string) error {
	if strings.TrimSpace(addr) == "" {
		return errors.New("address is required")
	}
	if _, err := net.ResolveTCPAddr("tcp", addr); err != nil {
		return err
	}
	return nil
}

// ensureWritable checks that a file can be created next to path. The trace
// log is opened in append mode later, so path itself may already exist.
func ensureWritable(path string) error {
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	file, err := os.CreateTemp(dir, "pathcanon-validate-*")
	if err != nil {
		return err
	}
	name := file.Name()
	if err := file.Close(); err != nil {
		return err
	}
	return os.Remove(name)
}
