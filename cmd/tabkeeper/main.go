// Command tabkeeper organizes a live Chrome's tabs into named, colored
// groups and persists/restores snapshots of the whole arrangement.
//
// Usage:
//
//	tabkeeper [flags] save [name]        # capture the current arrangement
//	tabkeeper [flags] list               # list stored sessions
//	tabkeeper [flags] restore <id>       # rebuild a session in the browser
//	tabkeeper [flags] delete <id>
//	tabkeeper [flags] rename <id> <name>
//	tabkeeper [flags] undo               # revert the last action
//	tabkeeper [flags] organize           # group tabs by classification rules
//	tabkeeper [flags] export <id>        # write a session as JSON to stdout
//	tabkeeper [flags] import <file>      # load a session from a JSON file
//	tabkeeper [flags] stats
//	tabkeeper [flags] daemon             # auto-save timer + recovery save on exit
//	tabkeeper [flags] mcp                # serve tools over MCP stdio
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/tabkeeper/browser"
	"github.com/hazyhaar/tabkeeper/classify"
	"github.com/hazyhaar/tabkeeper/session"
)

func main() {
	configPath := flag.String("config", "", "path to tabkeeper.yaml config file")
	dbPath := flag.String("db", "", "override storage path")
	remoteURL := flag.String("remote", "", "WebSocket control URL of a running Chrome (default: launch locally)")
	stealthFlag := flag.Bool("stealth", false, "inject the stealth script into created pages")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *dbPath, *remoteURL, *stealthFlag, flag.Args()); err != nil {
		logger.Error("tabkeeper: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, dbPath, remoteURL string, useStealth bool, args []string) error {
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}
	cmd := args[0]

	cfg := session.DefaultConfig()
	if configPath != "" {
		loaded, err := session.LoadConfigFile(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if dbPath != "" {
		cfg.Storage.Path = dbPath
	}

	store, err := session.OpenStore(cfg.Storage.Path,
		session.WithQuota(cfg.Storage.QuotaBytes),
		session.WithStoreLogger(logger))
	if err != nil {
		return err
	}
	defer store.Close()

	// Storage-only commands skip the browser connection entirely.
	switch cmd {
	case "list":
		return runList(ctx, store)
	case "delete":
		if len(args) < 2 {
			return fmt.Errorf("delete: session id required")
		}
		return store.Remove(ctx, args[1])
	case "rename":
		if len(args) < 3 {
			return fmt.Errorf("rename: session id and name required")
		}
		return store.Rename(ctx, args[1], args[2])
	case "export":
		if len(args) < 2 {
			return fmt.Errorf("export: session id required")
		}
		snap, err := store.Get(ctx, args[1])
		if err != nil {
			return err
		}
		data, err := session.Export(snap)
		if err != nil {
			return err
		}
		os.Stdout.Write(data)
		os.Stdout.Write([]byte("\n"))
		return nil
	}

	mgr := browser.NewManager(browser.Config{RemoteURL: remoteURL, Logger: logger})
	b, err := mgr.Start()
	if err != nil {
		return err
	}
	defer mgr.Close()

	var envOpts []browser.RodOption
	envOpts = append(envOpts, browser.WithLogger(logger))
	if useStealth {
		envOpts = append(envOpts, browser.WithStealth())
	}
	env := browser.NewRodEnv(b, envOpts...)

	var svcOpts []session.ServiceOption
	if cfg.RulesFile != "" {
		rules, err := classify.Load(cfg.RulesFile)
		if err != nil {
			return err
		}
		svcOpts = append(svcOpts, session.WithRules(rules))
	}
	svc := session.NewService(env, store, cfg, logger, svcOpts...)

	switch cmd {
	case "save":
		name := ""
		if len(args) > 1 {
			name = args[1]
		}
		snap, err := svc.Save(ctx, name)
		if err != nil {
			return err
		}
		fmt.Printf("%s  %s\n", snap.ID, snap.Name)
		return nil

	case "restore":
		if len(args) < 2 {
			return fmt.Errorf("restore: session id required")
		}
		return svc.Restore(ctx, args[1])

	case "undo":
		undone, err := svc.Undo(ctx)
		if err != nil {
			return err
		}
		if !undone {
			fmt.Println("nothing to undo")
		}
		return nil

	case "organize":
		n, err := svc.Organize(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("created %d groups\n", n)
		return nil

	case "import":
		if len(args) < 2 {
			return fmt.Errorf("import: file required")
		}
		data, err := os.ReadFile(args[1])
		if err != nil {
			return err
		}
		snap, err := svc.Import(ctx, data)
		if err != nil {
			return err
		}
		fmt.Printf("%s  %s\n", snap.ID, snap.Name)
		return nil

	case "stats":
		st, err := svc.Stats(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("sessions: %d\nundo entries: %d\nstorage: %d / %d bytes\n",
			st.Sessions, st.UndoDepth, st.BytesInUse, st.Quota)
		return nil

	case "daemon":
		return runDaemon(ctx, logger, svc, cfg)

	case "mcp":
		return runMCP(ctx, svc)
	}

	usage()
	return fmt.Errorf("unknown command %q", cmd)
}

func runList(ctx context.Context, store *session.Store) error {
	list, err := store.List(ctx)
	if err != nil {
		return err
	}
	for _, snap := range list {
		fmt.Printf("%s  %-40s  %d tabs, %d groups\n",
			snap.ID, snap.Name, snap.TabCount(), len(snap.Groups))
	}
	return nil
}

func runDaemon(ctx context.Context, logger *slog.Logger, svc *session.Service, cfg *session.Config) error {
	if cfg.AutoSave.Enabled {
		go svc.RunAutoSave(ctx)
	}
	logger.Info("tabkeeper: daemon running")
	<-ctx.Done()

	// The signal context is spent; give the recovery save its own deadline.
	saveCtx, cancel := context.WithTimeout(context.Background(), cfg.Restore.Timeout)
	defer cancel()
	if err := svc.RecoverySave(saveCtx); err != nil {
		logger.Warn("tabkeeper: recovery save failed", "error", err)
	}
	return nil
}

func runMCP(ctx context.Context, svc *session.Service) error {
	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "tabkeeper",
		Version: "1.0.0",
	}, nil)
	svc.RegisterMCP(srv)
	return srv.Run(ctx, &mcp.StdioTransport{})
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: tabkeeper [flags] <command>

commands:
  save [name]         capture the current arrangement
  list                list stored sessions
  restore <id>        rebuild a session in the browser
  delete <id>         delete a stored session
  rename <id> <name>  rename a stored session
  undo                revert the last action
  organize            group tabs by classification rules
  export <id>         write a session as JSON to stdout
  import <file>       load a session from a JSON file
  stats               storage statistics
  daemon              auto-save timer, recovery save on exit
  mcp                 serve tools over MCP stdio`)
	flag.PrintDefaults()
}
