package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"bcdiff/internal/asm"
	"bcdiff/internal/classfile"
	"bcdiff/internal/hierarchy"
)

func cmdAssemble(args []string) error {
	fs := flag.NewFlagSet("assemble", flag.ExitOnError)
	in := fs.String("in", "", "IR document")
	out := fs.String("out", "", "class file to write")
	cfgPath := fs.String("config", "", "configuration file")
	strict := fs.Bool("strict", false, "fail on types that cannot be resolved")
	classpath := fs.String("classpath", "", "platform archives or directories, "+string(filepath.ListSeparator)+"-separated")
	verbosity := fs.Int("verbosity", -1, "diagnostic verbosity")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" || *out == "" {
		return fmt.Errorf("--in and --out are required")
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

	data, err := os.ReadFile(*in)
	if err != nil {
		return err
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	c, err := asm.Assemble(strings.Split(text, "\n"))
	if err != nil {
		return fmt.Errorf("%s: %w", *in, err)
	}

	platform, err := platformProvider(cfg)
	if err != nil {
		return err
	}
	computer := hierarchy.NewComputer(hierarchy.Chain(hierarchy.NewMapProvider(c), platform), cfg.Hierarchy.Strict)
	bin, err := classfile.Write(c, computer.CommonAncestor)
	if err != nil {
		return fmt.Errorf("%s: %w", c.Name, err)
	}
	if err := os.WriteFile(*out, bin, 0644); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "assembled %s (%d bytes)\n", c.Name, len(bin))
	return nil
}
