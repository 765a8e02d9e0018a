package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"npcbots.ai/internal/persistence/botdb"
	persistlog "npcbots.ai/internal/persistence/log"
	"npcbots.ai/internal/sim/tuning"
	"npcbots.ai/internal/sim/wander"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "seed":
			seedCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "audit":
			auditCmd(os.Args[2:])
			return
		case "graph":
			graphCmd(os.Args[2:])
			return
		case "bots", "zones", "maps", "offset", "creature":
			httpCmd(os.Args[1], os.Args[2:])
			return
		}
	}
	usage()
	os.Exit(2)
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: admin <command> [flags]
  seed      [-data ./data] [-db PATH] [-dir ./configs/seed]     load seed tables into the bot db
  db        [-data ./data] [-db PATH] bots|transmogs|waypoints|worldstates|groups|stats
  audit     [-data ./data] [-kind K] [-entry N] [-limit N]      dump the audit log
  graph     [-data ./data] [-db PATH] [-tuning PATH] [-map M -node N]
  bots|zones|maps|offset [-url URL] [-set N]                    query a running server
  creature  [-url URL] GUID`)
}

func defaultDB(dataDir, dbPath string) string {
	if p := strings.TrimSpace(dbPath); p != "" {
		return p
	}
	return filepath.Join(dataDir, "npcbots.sqlite")
}

func seedCmd(args []string) {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "bot db path (default: <data>/npcbots.sqlite)")
	dir := fs.String("dir", "./configs/seed", "seed directory")
	_ = fs.Parse(args)

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, "mkdir:", err)
		os.Exit(1)
	}
	store, err := botdb.OpenSQLite(defaultDB(*dataDir, *dbPath), log.New(os.Stderr, "[admin] ", log.LstdFlags))
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	res, err := store.SeedFromDir(ctx, *dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "seed:", err)
		os.Exit(1)
	}
	printJSON(res)
}

func auditCmd(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	kind := fs.String("kind", "", "event kind filter (prefix match, e.g. bot. or ab.)")
	entry := fs.Uint("entry", 0, "entry filter (bot entry or map id)")
	limit := fs.Int("limit", 0, "print at most the last N entries (0: all)")
	_ = fs.Parse(args)

	files, err := persistlog.AuditFiles(*dataDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list:", err)
		os.Exit(1)
	}
	var out []persistlog.AuditEntry
	for _, f := range files {
		entries, err := persistlog.ReadAuditFile(f)
		if err != nil {
			// The newest file may still be open in the server; keep what decoded.
			fmt.Fprintf(os.Stderr, "%s: %v (read %d entries)\n", filepath.Base(f), err, len(entries))
		}
		for _, e := range entries {
			if *kind != "" && !strings.HasPrefix(e.Kind, *kind) {
				continue
			}
			if *entry != 0 && e.Entry != uint32(*entry) {
				continue
			}
			out = append(out, e)
		}
	}
	if *limit > 0 && len(out) > *limit {
		out = out[len(out)-*limit:]
	}
	for _, e := range out {
		printJSON(e)
	}
}

func graphCmd(args []string) {
	fs := flag.NewFlagSet("graph", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "bot db path (default: <data>/npcbots.sqlite)")
	tuningPath := fs.String("tuning", "./configs/tuning.yaml", "tuning.yaml (supported maps and link distance)")
	mapID := fs.Uint("map", 0, "map id of -node")
	nodeID := fs.Uint("node", 0, "print one node with its links")
	_ = fs.Parse(args)

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "tuning:", err)
		os.Exit(1)
	}
	quiet := log.New(io.Discard, "", 0)
	store, err := botdb.OpenSQLite(defaultDB(*dataDir, *dbPath), quiet)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer store.Close()

	rows, err := store.LoadWanderNodes(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, "load:", err)
		os.Exit(1)
	}
	g, err := wander.Build(botdb.WanderRows(rows), wander.Options{
		Maps:    tune.Wander.Maps,
		MaxDist: tune.Wander.ConnectionDistMax,
		Logger:  log.New(os.Stderr, "", 0),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "build:", err)
		os.Exit(1)
	}

	if *nodeID != 0 {
		n, ok := g.Node(uint32(*mapID), uint32(*nodeID))
		if !ok {
			fmt.Fprintf(os.Stderr, "node %d not found on map %d\n", *nodeID, *mapID)
			os.Exit(1)
		}
		printJSON(n)
		return
	}
	printJSON(g.Stats())
	for _, m := range g.Maps() {
		printJSON(map[string]any{"map": m, "nodes": len(g.Nodes(m))})
	}
	printJSON(map[string]any{"tops": g.Tops()})
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
