package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/ebusd-go/ebusd/catalog"
)

func writeCatalogFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestLoadDirMergesMultipleFiles(t *testing.T) {
	dir := t.TempDir()
	writeCatalogFile(t, dir, "a.csv", "r,heating,flowtemp,,15,52,b5 09,,value,m,0,D2C,,C,flow temperature\n")
	writeCatalogFile(t, dir, "b.csv", "r,heating,rettemp,,15,52,b5 0a,,value,m,0,D2C,,C,return temperature\n")
	writeCatalogFile(t, dir, "ignore.txt", "not a catalog file\n")

	cat, err := loadDir(dir)
	if err != nil {
		t.Fatalf("loadDir: %v", err)
	}
	if got := len(cat.All()); got != 2 {
		t.Fatalf("loadDir loaded %d messages, want 2", got)
	}
}

func TestLoadDirRejectsBadRow(t *testing.T) {
	dir := t.TempDir()
	writeCatalogFile(t, dir, "bad.csv", "r,heating,flowtemp\n")

	if _, err := loadDir(dir); err == nil {
		t.Error("expected an error for a row with too few columns")
	}
}

func TestMainNoArgs(t *testing.T) {
	defer func(args []string) {
		os.Args = args
		logFatal = func(v ...interface{}) { panic(v) }
	}(os.Args)

	os.Args = []string{"test_catalogtool"}
	logFatal = func(...interface{}) {
		panic("panic instead of log.Fatal")
	}
	defer func() {
		if e := recover(); e == nil {
			t.Error("Should have panicked")
		}
	}()

	main()
}

func TestDumpWritesFieldRows(t *testing.T) {
	cat := catalog.NewCatalog()
	cat.Add(&catalog.Message{
		Circuit: "heating",
		Name:    "flowtemp",
		IDBytes: []byte{0xB5, 0x09},
		Fields: catalog.FieldSet{
			{Name: "value", Part: catalog.PartMasterData, Codec: catalog.D2C},
		},
	})

	var buf bytes.Buffer
	if err := catalog.MarshalDump(cat.All(), &buf); err != nil {
		t.Fatalf("MarshalDump: %v", err)
	}
	if buf.Len() == 0 {
		t.Error("expected non-empty dump output")
	}
}
