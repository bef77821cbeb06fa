// modeltool is a CLI utility for inspecting viewer models and the model database.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Faultbox/midgard-viewer/internal/assets"
	"github.com/Faultbox/midgard-viewer/internal/database"
	"github.com/Faultbox/midgard-viewer/internal/engine/animation"
	"github.com/Faultbox/midgard-viewer/internal/engine/character"
	"github.com/Faultbox/midgard-viewer/internal/viewer"
	"github.com/Faultbox/midgard-viewer/pkg/formats"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "info":
		cmdInfo(args)
	case "list", "ls":
		cmdList(args)
	case "check":
		cmdCheck(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`modeltool - model viewer asset utility

Usage:
  modeltool <command> [options]

Commands:
  info <file.glb>                    Show meshes, bounds and animation clips
  list <database.json> [pattern]     List model descriptors
  check <database.json> [root]       Load every model and report missing clips

Examples:
  modeltool info build/Models/Poring.glb
  modeltool list build/database.json "por*"
  modeltool check build/database.json https://example.com/Models`)
}

func cmdInfo(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: modeltool info <file.glb>")
		os.Exit(1)
	}

	glb, err := formats.LoadGLB(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	triangles := 0
	for _, m := range glb.Meshes {
		triangles += len(m.Indices) / 3
	}

	fmt.Printf("File:      %s\n", args[0])
	if glb.Generator != "" {
		fmt.Printf("Generator: %s\n", glb.Generator)
	}
	fmt.Printf("Meshes:    %d\n", len(glb.Meshes))
	fmt.Printf("Vertices:  %d\n", glb.VertexCount())
	fmt.Printf("Triangles: %d\n", triangles)
	fmt.Printf("Bounds:    %v .. %v\n", glb.Bounds.Min, glb.Bounds.Max)
	fmt.Println()

	fmt.Println("Animations:")
	for _, a := range glb.Animations {
		fmt.Printf("  %-24s %6.2fs\n", a.Name, a.Duration)
	}
	fmt.Println()

	fmt.Println("Roles:")
	printRoles(animation.NewMixer(viewer.Clips(glb)))
}

func printRoles(mixer *animation.Mixer) {
	roles := character.ResolveRoles(mixer)
	for r := character.RoleIdle; r <= character.RoleAttackIdle; r++ {
		name := "(missing)"
		if a := roles[r]; a != nil {
			name = a.Clip().Name
		}
		fmt.Printf("  %-14s %s\n", r, name)
	}
}

func cmdList(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	limit := fs.Int("n", 0, "Limit output to N models (0 = all)")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: modeltool list <database.json> [pattern]")
		os.Exit(1)
	}

	db, err := database.Load(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	pattern := ""
	if fs.NArg() > 1 {
		pattern = strings.ToLower(fs.Arg(1))
	}

	count := 0
	for i, m := range db.Models {
		if pattern != "" {
			name := strings.ToLower(m.Name)
			matched, _ := filepath.Match(pattern, name)
			if !matched && !strings.Contains(name, pattern) {
				continue
			}
		}
		fmt.Printf("%4d  %-24s walk %6.1f  run %6.1f  usages %d\n", i, m.Name, m.WalkSpeed, m.RunSpeed, len(m.Usages))
		count++
		if *limit > 0 && count >= *limit {
			break
		}
	}

	if pattern != "" {
		fmt.Fprintf(os.Stderr, "\n(%d models matched)\n", count)
	}
}

func cmdCheck(args []string) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	ext := fs.String("ext", "glb", "Model file extension")
	timeout := fs.Duration("timeout", 30*time.Second, "Per-model load timeout")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: modeltool check <database.json> [asset_root]")
		os.Exit(1)
	}

	db, err := database.Load(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	root := filepath.Join(filepath.Dir(fs.Arg(0)), "Models")
	if fs.NArg() > 1 {
		root = fs.Arg(1)
	}
	loader := viewer.NewAssetLoader(assets.NewManager(root, *ext, 0))

	failed := make(map[string]string)
	incomplete := 0
	for _, desc := range db.Models {
		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		glb, err := loader.Load(ctx, desc)
		cancel()
		if err != nil {
			failed[desc.Name] = err.Error()
			continue
		}

		roles := character.ResolveRoles(animation.NewMixer(viewer.Clips(glb)))
		var missing []string
		for _, r := range []character.Role{character.RoleIdle, character.RoleWalk, character.RoleRun} {
			if roles[r] == nil {
				missing = append(missing, r.String())
			}
		}
		if len(missing) > 0 {
			incomplete++
			fmt.Printf("%-24s missing %s\n", desc.Name, strings.Join(missing, ", "))
		}
	}

	names := make([]string, 0, len(failed))
	for name := range failed {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("%-24s FAILED %s\n", name, failed[name])
	}

	fmt.Fprintf(os.Stderr, "\n%d models, %d failed, %d with missing clips\n", db.Len(), len(failed), incomplete)
	if len(failed) > 0 {
		os.Exit(1)
	}
}
