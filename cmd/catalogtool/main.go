// Main package in catalogtool implements a command line tool for loading
// and validating a directory of eBUS catalog CSV files, with an optional
// -dump mode that flattens every loaded message's fields to CSV.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/m-lab/go/rtx"

	"github.com/ebusd-go/ebusd/catalog"
)

func init() {
	// Always prepend the filename and line number.
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

var (
	dump = flag.Bool("dump", false, "Write every loaded message's fields as CSV to stdout instead of just validating")

	// A variable to enable mocking for testing.
	logFatal = log.Fatal
)

// loadDir reads every *.csv file directly under dir and merges their
// messages and conditions into one catalog, the way cmd/ebusd's own
// loader does at startup.
func loadDir(dir string) (*catalog.Catalog, error) {
	cat := catalog.NewCatalog()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".csv") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		msgs, conditions, err := catalog.LoadCSV(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		for _, m := range msgs {
			cat.Add(m)
		}
		for name, cond := range conditions {
			if err := cat.AddCondition(name, cond); err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
		}
	}
	return cat, nil
}

func main() {
	flag.Parse()
	args := flag.Args()
	if len(args) != 1 {
		logFatal("Usage: catalogtool [-dump] <configdir>")
	}

	cat, err := loadDir(args[0])
	rtx.Must(err, "Could not load catalog from %q", args[0])

	msgs := cat.All()
	if !*dump {
		fmt.Fprintf(os.Stdout, "%d messages loaded from %s\n", len(msgs), args[0])
		return
	}
	rtx.Must(catalog.MarshalDump(msgs, os.Stdout), "Could not dump catalog")
}
