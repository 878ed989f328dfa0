// cmd/tools/manifest-updater/main.go
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"recommend-workers/internal/models"
	"recommend-workers/pkg/registry"
)

const defaultManifestPath = "configs/sources.json"

func main() {
	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "set":
		err = runSet(os.Args[2:])
	case "remove":
		err = runRemove(os.Args[2:])
	case "list":
		err = runList(os.Args[2:])
	case "validate":
		err = runValidate(os.Args[2:])
	default:
		help()
		return
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runSet(args []string) error {
	cmd := flag.NewFlagSet("set", flag.ExitOnError)
	path := cmd.String("path", defaultManifestPath, "Path to the source manifest")
	name := cmd.String("name", "", "Source name (e.g., places)")
	category := cmd.String("category", "", "Category served by the source")
	kind := cmd.String("kind", "", "Source kind: http, elasticsearch or postgres")
	baseURL := cmd.String("baseUrl", "", "Base URL for http sources")
	index := cmd.String("index", "", "Index for elasticsearch sources")
	table := cmd.String("table", "", "Table for postgres sources")
	timeout := cmd.String("timeout", "", "Per-source timeout (e.g., 3s)")
	description := cmd.String("description", "", "Description")
	_ = cmd.Parse(args)

	if *category == "" || *kind == "" {
		cmd.Usage()
		return fmt.Errorf("category and kind are required")
	}
	if _, ok := models.ParseCategory(*category); !ok {
		return fmt.Errorf("unknown category %q", *category)
	}

	m, err := loadOrEmpty(*path)
	if err != nil {
		return err
	}

	replaced := m.Upsert(registry.SourceDefinition{
		Name:        *name,
		Category:    *category,
		Kind:        registry.SourceKind(*kind),
		BaseURL:     *baseURL,
		Index:       *index,
		Table:       *table,
		Timeout:     *timeout,
		Description: *description,
	})
	if err := registry.SaveManifest(*path, m); err != nil {
		return err
	}

	if replaced {
		fmt.Printf("Replaced source for %s\n", *category)
	} else {
		fmt.Printf("Added source for %s\n", *category)
	}
	return nil
}

func runRemove(args []string) error {
	cmd := flag.NewFlagSet("remove", flag.ExitOnError)
	path := cmd.String("path", defaultManifestPath, "Path to the source manifest")
	category := cmd.String("category", "", "Category to unbind")
	_ = cmd.Parse(args)

	if *category == "" {
		cmd.Usage()
		return fmt.Errorf("category is required")
	}

	m, err := registry.LoadManifest(*path)
	if err != nil {
		return fmt.Errorf("failed to load manifest: %w", err)
	}
	if !m.Remove(*category) {
		return fmt.Errorf("no source bound to %s", *category)
	}
	if err := registry.SaveManifest(*path, m); err != nil {
		return err
	}
	fmt.Printf("Removed source for %s\n", *category)
	return nil
}

func runList(args []string) error {
	cmd := flag.NewFlagSet("list", flag.ExitOnError)
	path := cmd.String("path", defaultManifestPath, "Path to the source manifest")
	_ = cmd.Parse(args)

	m, err := registry.LoadManifest(*path)
	if err != nil {
		return fmt.Errorf("failed to load manifest: %w", err)
	}

	defs := append([]registry.SourceDefinition(nil), m.Sources...)
	sort.Slice(defs, func(i, j int) bool { return defs[i].Category < defs[j].Category })
	for _, d := range defs {
		target := d.BaseURL
		switch d.Kind {
		case registry.KindElasticsearch:
			target = d.Index
		case registry.KindPostgres:
			target = d.Table
		}
		fmt.Printf("%-12s %-14s %-20s %s\n", d.Category, d.Kind, d.Name, target)
	}
	return nil
}

func runValidate(args []string) error {
	cmd := flag.NewFlagSet("validate", flag.ExitOnError)
	path := cmd.String("path", defaultManifestPath, "Path to the source manifest")
	_ = cmd.Parse(args)

	m, err := registry.LoadManifest(*path)
	if err != nil {
		return fmt.Errorf("manifest validation failed: %w", err)
	}

	bound := make(map[string]bool, len(m.Sources))
	for _, s := range m.Sources {
		if _, ok := models.ParseCategory(s.Category); !ok {
			return fmt.Errorf("source %q: unknown category %q", s.Name, s.Category)
		}
		bound[s.Category] = true
	}
	for _, c := range models.AllCategories {
		if !bound[string(c)] {
			fmt.Printf("warning: no source bound to %s\n", c)
		}
	}

	fmt.Printf("Manifest validation passed. Found %d sources.\n", len(m.Sources))
	return nil
}

func loadOrEmpty(path string) (*registry.SourceManifest, error) {
	m, err := registry.LoadManifest(path)
	if err == nil {
		return m, nil
	}
	if os.IsNotExist(err) {
		return &registry.SourceManifest{Version: "1.0.0"}, nil
	}
	return nil, fmt.Errorf("failed to load manifest: %w", err)
}

func help() {
	fmt.Println(`
Usage: manifest-updater <command> [flags]

Commands:
  set       Bind a candidate source to a category (replaces an existing binding)
  remove    Unbind the source of a category
  list      List the bound sources
  validate  Validate the manifest file

Examples:
  manifest-updater set -category restaurants -kind http -name places -baseUrl http://places-adapter:8081 -timeout 3s
  manifest-updater set -category movies -kind elasticsearch -index movies
  manifest-updater remove -category videos
  manifest-updater validate -path configs/sources.json`)
}
