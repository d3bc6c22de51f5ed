package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/invopop/jsonschema"

	"github.com/stestefe/reality-warpers/internal/config"
	"github.com/stestefe/reality-warpers/internal/network"
)

func main() {
	var outDir, profileDir string
	flag.StringVar(&outDir, "out", "", "directory to write the wire JSON schemas into")
	flag.StringVar(&profileDir, "profiles", "", "also write the built-in profiles into this directory")
	flag.Parse()

	if outDir == "" {
		fmt.Fprintln(os.Stderr, "--out is required")
		os.Exit(1)
	}

	schemas := network.Schemas()
	names := make([]string, 0, len(schemas))
	for name := range schemas {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(outDir, name+".schema.json")
		if err := writeSchema(path, schemas[name]); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write schema: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(path)
	}

	if profileDir == "" {
		return
	}
	m := config.NewManager(profileDir)
	for _, name := range config.BuiltinNames() {
		p, _ := config.Builtin(name)
		if err := m.Save(p); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write profile %s: %v\n", name, err)
			os.Exit(1)
		}
		fmt.Println(filepath.Join(profileDir, name+".json"))
	}
}

func writeSchema(outPath string, schema *jsonschema.Schema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}

	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write temp schema: %w", err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("replace schema: %w", err)
	}

	return nil
}
