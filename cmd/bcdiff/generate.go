package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"bcdiff/internal/delta"
	"bcdiff/internal/jar"
)

const (
	ansiReset = "\x1b[0m"
	ansiBold  = "\x1b[1m"
	ansiRed   = "\x1b[31m"
	ansiGreen = "\x1b[32m"
	ansiCyan  = "\x1b[36m"
)

func cmdGenerate(args []string) error {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	cfgPath := fs.String("config", "", "configuration file")
	color := fs.String("color", "", "colorize output: auto, always or never")
	workers := fs.Int("workers", 0, "parallel workers (0 = config default)")
	verbosity := fs.Int("verbosity", -1, "diagnostic verbosity")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 3 || fs.NArg() > 4 {
		return fmt.Errorf("usage: generate <original> <revised> <contextLines|-> [prefix,prefix...]")
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	setupLogging(*verbosity, cfg)

	context, err := contextLines(fs.Arg(2), cfg.Generate.Context)
	if err != nil {
		return err
	}
	opts := delta.GenerateOptions{
		Context:  context,
		Prefixes: cfg.Generate.Prefixes,
		Workers:  cfg.Generate.Workers,
	}
	if fs.NArg() == 4 {
		opts.Prefixes = splitList(fs.Arg(3), ",")
	}
	if *workers > 0 {
		opts.Workers = *workers
	}

	jopts := jar.Options{NativeSuffixes: cfg.Apply.NativeSuffixes}
	orig, err := jar.Open(fs.Arg(0), jopts)
	if err != nil {
		return fmt.Errorf("open original: %w", err)
	}
	rev, err := jar.Open(fs.Arg(1), jopts)
	if err != nil {
		return fmt.Errorf("open revised: %w", err)
	}

	lines, err := delta.Generate(orig, rev, opts)
	if err != nil {
		return err
	}

	mode := cfg.Generate.Color
	if *color != "" {
		mode = *color
	}
	colorize, err := useColor(mode)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(os.Stdout)
	for _, line := range lines {
		if colorize {
			line = colorLine(line)
		}
		w.WriteString(line)
		w.WriteByte('\n')
	}
	return w.Flush()
}

// contextLines parses the context line count argument. "-" takes the
// [generate] context value from the configuration.
func contextLines(arg string, fallback int) (int, error) {
	if arg == "-" {
		return fallback, nil
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid context line count %q", arg)
	}
	return n, nil
}

func useColor(mode string) (bool, error) {
	switch mode {
	case "", "auto":
		return term.IsTerminal(int(os.Stdout.Fd())), nil
	case "always":
		return true, nil
	case "never":
		return false, nil
	}
	return false, fmt.Errorf("invalid color mode %q", mode)
}

func colorLine(line string) string {
	switch {
	case strings.HasPrefix(line, "--- "), strings.HasPrefix(line, "+++ "):
		return ansiBold + line + ansiReset
	case strings.HasPrefix(line, "@@"):
		return ansiCyan + line + ansiReset
	case strings.HasPrefix(line, "+"):
		return ansiGreen + line + ansiReset
	case strings.HasPrefix(line, "-"):
		return ansiRed + line + ansiReset
	}
	return line
}

// splitList splits s on sep, dropping empty items.
func splitList(s, sep string) []string {
	var out []string
	for _, p := range strings.Split(s, sep) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
