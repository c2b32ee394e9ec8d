package main

import (
	"fmt"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"bcdiff/internal/config"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "generate":
		err = cmdGenerate(os.Args[2:])
	case "apply":
		err = cmdApply(os.Args[2:])
	case "disasm":
		err = cmdDisasm(os.Args[2:])
	case "assemble":
		err = cmdAssemble(os.Args[2:])
	case "graph":
		err = cmdGraph(os.Args[2:])
	case "index":
		err = cmdIndex(os.Args[2:])
	case "help", "-h", "--help":
		usage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the file named by --config, or searches upward from the
// working directory when none was given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.FindAndLoad(".")
}

// setupLogging routes library diagnostics to stderr. A negative flag value
// means the config file decides.
func setupLogging(flagVerbosity int, cfg *config.Config) {
	v := cfg.Log.Verbosity
	if flagVerbosity >= 0 {
		v = flagVerbosity
	}
	commonlog.Configure(v, nil)
}

func usage() {
	fmt.Fprintf(os.Stderr, `bcdiff - structural diff and patch for JVM bytecode

Usage:
  bcdiff generate <original> <revised> <contextLines|-> [prefix,prefix...]
                                            Unified diff of class IR to stdout
                                            ("-" uses [generate] context)
  bcdiff apply <original> <patchFile> <outputArchive>
                                            Apply an IR patch and write a new archive
  bcdiff disasm   --in <archive|class> [--out <dir>]   Render classes as IR
  bcdiff assemble --in <file.ir> --out <file.class>    Assemble one IR document
  bcdiff graph    --in <archive> --out <dir>           Per-method CFG and call graph DOT
  bcdiff index    --out <file.cbor> <path>...          Build a platform type index

Flags:
  --config <file>       Configuration file (default: nearest bcdiff.toml)
  --verbosity <n>       Diagnostic verbosity (higher is louder)
  --workers <n>         Parallel workers (default: GOMAXPROCS)
  --strict              Fail on unresolvable types instead of assuming Object
  --color <mode>        auto, always or never (generate)
`)
}
