// Package output writes bcdiff disassembly and graph results to files.
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ClassEntry summarizes one disassembled class.
type ClassEntry struct {
	Name    string `json:"name"`
	Entry   string `json:"entry"`
	Super   string `json:"super,omitempty"`
	Version int    `json:"version"`
	Methods int    `json:"methods"`
	Fields  int    `json:"fields"`
}

// WriteClassesJSON writes the class summary to classes.json.
func WriteClassesJSON(dir string, classes []ClassEntry) error {
	return writeJSON(filepath.Join(dir, "classes.json"), classes)
}

// WriteIR writes an IR document to ir/<name>.ir.
// name is an internal class name; its package path becomes directories.
func WriteIR(dir string, name string, lines []string) error {
	path := filepath.Join(dir, "ir", filepath.FromSlash(name)+".ir")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("output: mkdir ir: %w", err)
	}
	return os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644)
}

// WriteDOT writes a DOT graph to <sub>/<name>.dot.
func WriteDOT(dir, sub, name, dot string) error {
	path := filepath.Join(dir, sub, filepath.FromSlash(name)+".dot")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("output: mkdir %s: %w", sub, err)
	}
	return os.WriteFile(path, []byte(dot), 0644)
}

// FileName turns a method name into something safe to use as a file name.
// The owner's package becomes directories; the descriptor does not.
// "demo/A.run(I)V" -> "demo/A.run_I_V".
func FileName(method string) string {
	if i := strings.IndexByte(method, '('); i >= 0 {
		method = method[:i] + strings.ReplaceAll(method[i:], "/", ".")
	}
	r := strings.NewReplacer("(", "_", ")", "_", ";", "", "<", "", ">", "", "[", "A", "$", "_")
	return strings.TrimSuffix(r.Replace(method), "_")
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("output: create %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("output: encode %s: %w", path, err)
	}
	return nil
}
