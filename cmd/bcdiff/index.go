package main

import (
	"flag"
	"fmt"
	"os"

	"bcdiff/internal/hierarchy"
)

func cmdIndex(args []string) error {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	out := fs.String("out", "", "index file to write")
	workers := fs.Int("workers", 0, "parallel workers (0 = unlimited)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" || fs.NArg() == 0 {
		return fmt.Errorf("usage: index --out <file.cbor> <jmod|jar|dir>...")
	}

	ix, err := hierarchy.BuildIndex(fs.Args(), *workers)
	if err != nil {
		return err
	}
	if err := ix.Save(*out); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "indexed %d types -> %s\n", len(ix.Types), *out)
	return nil
}
