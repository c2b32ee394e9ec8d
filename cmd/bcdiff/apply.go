package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"bcdiff/internal/config"
	"bcdiff/internal/delta"
	"bcdiff/internal/hierarchy"
	"bcdiff/internal/jar"
)

func cmdApply(args []string) error {
	fs := flag.NewFlagSet("apply", flag.ExitOnError)
	cfgPath := fs.String("config", "", "configuration file")
	strict := fs.Bool("strict", false, "fail on types that cannot be resolved")
	classpath := fs.String("classpath", "", "platform archives or directories, "+string(filepath.ListSeparator)+"-separated")
	index := fs.String("index", "", "platform type index written by the index command")
	workers := fs.Int("workers", 0, "parallel workers (0 = config default)")
	verbosity := fs.Int("verbosity", -1, "diagnostic verbosity")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 3 {
		return fmt.Errorf("usage: apply <original> <patchFile> <outputArchive>")
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	setupLogging(*verbosity, cfg)

	if *strict {
		cfg.Hierarchy.Strict = true
	}
	if *classpath != "" {
		cfg.Hierarchy.Classpath = filepath.SplitList(*classpath)
	}
	if *index != "" {
		cfg.Hierarchy.Index = *index
	}
	if *workers > 0 {
		cfg.Apply.Workers = *workers
	}

	provider, err := platformProvider(cfg)
	if err != nil {
		return err
	}

	orig, err := jar.Open(fs.Arg(0), jar.Options{NativeSuffixes: cfg.Apply.NativeSuffixes})
	if err != nil {
		return fmt.Errorf("open original: %w", err)
	}
	patch, err := readPatch(fs.Arg(1))
	if err != nil {
		return err
	}

	out, stats, err := delta.Apply(orig, patch, delta.ApplyOptions{
		Provider: provider,
		Strict:   cfg.Hierarchy.Strict,
		Workers:  cfg.Apply.Workers,
	})
	if err != nil {
		return err
	}

	outPath := fs.Arg(2)
	if err := out.WriteFile(outPath); err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}
	fmt.Fprintf(os.Stderr, "wrote %s (%d entries, %d classes patched, %d deleted)\n",
		outPath, stats.Entries, stats.Patched(), stats.Deleted)
	return nil
}

func platformProvider(cfg *config.Config) (*hierarchy.PlatformProvider, error) {
	p := &hierarchy.PlatformProvider{
		Classpath: cfg.Hierarchy.Classpath,
		Workers:   cfg.Apply.Workers,
	}
	if cfg.Hierarchy.Index != "" {
		ix, err := hierarchy.LoadIndex(cfg.Hierarchy.Index)
		if err != nil {
			return nil, fmt.Errorf("load index: %w", err)
		}
		p.Index = ix
	}
	return p, nil
}

// readPatch reads a patch file as lines. "-" reads standard input.
func readPatch(path string) ([]string, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read patch: %w", err)
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n"), nil
}
