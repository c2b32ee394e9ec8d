package main

import (
	"bufio"
	"bytes"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"bcdiff/internal/classfile"
	"bcdiff/internal/disasm"
	"bcdiff/internal/jar"
	"bcdiff/internal/output"
)

// classInput is one class file to process.
type classInput struct {
	entry string
	data  []byte
}

func cmdDisasm(args []string) error {
	fs := flag.NewFlagSet("disasm", flag.ExitOnError)
	in := fs.String("in", "", "archive or class file")
	outDir := fs.String("out", "", "output directory (default: IR to stdout)")
	prefix := fs.String("class", "", "only classes whose name starts with this prefix")
	debug := fs.Bool("debug", false, "keep source, line and local variable debug info")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return fmt.Errorf("--in is required")
	}

	inputs, err := readClassInputs(*in)
	if err != nil {
		return err
	}

	var stdout *bufio.Writer
	if *outDir == "" {
		stdout = bufio.NewWriter(os.Stdout)
	} else if err := os.MkdirAll(*outDir, 0755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	var summary []output.ClassEntry
	for _, ci := range inputs {
		c, err := classfile.Parse(ci.data, classfile.ReadOptions{SkipDebug: !*debug})
		if err != nil {
			return fmt.Errorf("%s: %w", ci.entry, err)
		}
		if !strings.HasPrefix(c.Name, *prefix) {
			continue
		}
		lines, err := disasm.Render(c)
		if err != nil {
			return fmt.Errorf("%s: %w", ci.entry, err)
		}

		if stdout != nil {
			fmt.Fprintf(stdout, "// %s\n", ci.entry)
			for _, l := range lines {
				stdout.WriteString(l)
				stdout.WriteByte('\n')
			}
			continue
		}
		if err := output.WriteIR(*outDir, c.Name, lines); err != nil {
			return err
		}
		summary = append(summary, output.ClassEntry{
			Name:    c.Name,
			Entry:   ci.entry,
			Super:   c.SuperName,
			Version: int(c.Version & 0xFFFF),
			Methods: len(c.Methods),
			Fields:  len(c.Fields),
		})
	}

	if stdout != nil {
		return stdout.Flush()
	}
	if err := output.WriteClassesJSON(*outDir, summary); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "disasm: %d classes -> %s\n", len(summary), *outDir)
	return nil
}

// readClassInputs returns the classes of an archive in name order, or the
// single class when path is a class file.
func readClassInputs(path string) ([]classInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if classfile.IsClassFile(data) {
		return []classInput{{entry: path, data: data}}, nil
	}

	a, err := jar.Read(bytes.NewReader(data), int64(len(data)), jar.Options{})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	var inputs []classInput
	for name, e := range a.Classes() {
		inputs = append(inputs, classInput{entry: name, data: e.Data})
	}
	sort.Slice(inputs, func(i, j int) bool { return inputs[i].entry < inputs[j].entry })
	return inputs, nil
}
