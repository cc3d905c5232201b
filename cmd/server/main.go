package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	iofs "io/fs"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/HyphaGroup/lockstep/internal/auth"
	"github.com/HyphaGroup/lockstep/internal/config"
	"github.com/HyphaGroup/lockstep/internal/lock"
	"github.com/HyphaGroup/lockstep/internal/logger"
	"github.com/HyphaGroup/lockstep/internal/maintenance"
	"github.com/HyphaGroup/lockstep/internal/realtime"
	"github.com/HyphaGroup/lockstep/internal/server"
)

// Version is set at build time via -ldflags "-X main.Version=v1.0.0"
var Version = "dev"

func main() {
	// Check for subcommands before parsing flags
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "init":
			cmdInit()
			return
		case "token":
			cmdToken(os.Args[2:])
			return
		case "--version", "-v":
			fmt.Printf("lockstep %s\n", Version)
			return
		case "--help", "-h", "help":
			printUsage()
			return
		}
	}

	// Default: run server
	runServer()
}

func printUsage() {
	fmt.Printf(`Lockstep %s - Realtime broadcast and edit-lock server

Usage: lockstep [command] [options]

Commands:
  (default)    Start the server
  init         Initialize Lockstep directory structure
  token        Manage authentication tokens

Server Options:
  --dir <path>       Lockstep home directory

Config Precedence (for server):
  1. --dir flag
  2. LOCKSTEP_HOME env var
  3. ./.lockstep (if initialized in current directory)
  4. ~/.lockstep (default)

Examples:
  lockstep                             Start the server (auto-detect config)
  lockstep --dir /path/to/lockstep     Start with specific config directory
  lockstep init                        Set up ~/.lockstep
  lockstep init --dir .                Set up in current directory
  lockstep token create --name "Dashboard" --role admin
`, Version)
}

func runServer() {
	showVersion := flag.Bool("version", false, "Print version and exit")
	dirFlag := flag.String("dir", "", "Lockstep home directory (default: ~/.lockstep)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("lockstep %s\n", Version)
		os.Exit(0)
	}

	lockstepDir := resolveLockstepDir(*dirFlag)
	dataDir := filepath.Join(lockstepDir, "data")
	configDir := filepath.Join(lockstepDir, "config")

	// Check if initialized
	if _, err := os.Stat(filepath.Join(configDir, "lockstep.jsonc")); errors.Is(err, iofs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "Lockstep not initialized. Run 'lockstep init' first.")
		os.Exit(1)
	}

	cfg, err := config.LoadAll(configDir)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	logDir := filepath.Join(dataDir, "logs")
	if err := logger.Init(logDir); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Close() }()

	logger.Println("🔒 Lockstep - Realtime broadcast and edit-lock server")
	logger.Println("")

	authStore, err := auth.NewStore(dataDir)
	if err != nil {
		logger.Fatalf("Failed to initialize auth store: %v", err)
	}
	defer func() { _ = authStore.Close() }()
	logger.Printf("🔐 Auth database: %s/auth.db", dataDir)

	lockStore, err := lock.NewStore(dataDir)
	if err != nil {
		logger.Fatalf("Failed to initialize lock store: %v", err)
	}
	defer func() { _ = lockStore.Close() }()
	logger.Printf("🗄️  Lock database: %s/locks.db", dataDir)

	registry := realtime.NewRegistry()
	broadcaster := realtime.NewBroadcaster(registry)
	coordinator := lock.NewCoordinator(lockStore, registry, broadcaster, cfg.LeaseDuration())

	sweeper, err := maintenance.NewSweeper(coordinator, cfg.Locks.SweepCron)
	if err != nil {
		logger.Fatalf("Invalid sweep schedule: %v", err)
	}
	if err := sweeper.Start(); err != nil {
		logger.Fatalf("Failed to start lock sweeper: %v", err)
	}

	limiter := auth.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)

	srv := server.New(registry, broadcaster, coordinator, authStore, server.Config{
		KeepAliveInterval: cfg.KeepAliveInterval(),
		RateLimiter:       limiter,
	})

	addr := cfg.Server.Address
	logger.Println("🚀 Starting Lockstep server...")
	logger.Printf("📡 Server address: http://localhost%s", addr)
	logger.Printf("⏱️  Lock lease: %dm, sweep: %q", cfg.Locks.LeaseMinutes, cfg.Locks.SweepCron)
	logger.Println("")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(addr)
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Println("⚠️  Shutting down...")

		sweeper.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatalf("Server error: %v", err)
	}
	logger.Println("✅ Shutdown complete")
}

func cmdInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	dirFlag := fs.String("dir", "", "Directory to initialize (default: ~/.lockstep)")
	_ = fs.Parse(os.Args[2:])

	var lockstepDir string
	if *dirFlag != "" {
		absDir, err := filepath.Abs(*dirFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid directory: %v\n", err)
			os.Exit(1)
		}
		lockstepDir = absDir
	} else {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: could not determine home directory: %v\n", err)
			os.Exit(1)
		}
		lockstepDir = filepath.Join(homeDir, ".lockstep")
	}

	configDir := filepath.Join(lockstepDir, "config")
	dataDir := filepath.Join(lockstepDir, "data")

	// Check if already initialized (look for config file, not just directory)
	configFile := filepath.Join(configDir, "lockstep.jsonc")
	if _, err := os.Stat(configFile); err == nil {
		fmt.Printf("⚠️  %s is already initialized.\n", lockstepDir)
		fmt.Print("Overwrite? [y/N]: ")
		var response string
		_, _ = fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Println("Aborted.")
			return
		}
	}

	fmt.Println("🔒 Initializing Lockstep")
	fmt.Println("")

	dirs := []string{
		configDir,
		filepath.Join(dataDir, "logs"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating %s: %v\n", dir, err)
			os.Exit(1)
		}
		fmt.Printf("   Created %s\n", dir)
	}

	defaultConfig := `{
  // Lockstep Configuration

  "server": {
    "address": ":8080",
    // SSE keep-alive comment interval
    "keep_alive_seconds": 30
  },

  "locks": {
    // How long an edit lock lives without renewal
    "lease_minutes": 15,
    // 5-field cron expression for the background sweep
    "sweep_cron": "*/5 * * * *"
  },

  "rate_limit": {
    "requests_per_second": 10,
    "burst": 20
  }
}
`
	configPath := filepath.Join(configDir, "lockstep.jsonc")
	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating lockstep.jsonc: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("   Created %s\n", configPath)

	// Create admin token
	fmt.Println("")
	fmt.Println("Creating admin token...")
	authStore, err := auth.NewStore(dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing auth store: %v\n", err)
		os.Exit(1)
	}

	_, tokenID, err := authStore.CreateToken("admin", auth.RoleAdmin, nil)
	if err != nil {
		_ = authStore.Close()
		fmt.Fprintf(os.Stderr, "Error creating token: %v\n", err)
		os.Exit(1)
	}
	_ = authStore.Close()

	fmt.Println("")
	fmt.Println("Admin token (save this - it cannot be retrieved later):")
	fmt.Printf("   %s\n", tokenID)

	fmt.Println("")
	fmt.Println("✅ Lockstep initialized!")
	fmt.Println("")
	fmt.Println("Next steps:")
	fmt.Printf("   1. Review %s\n", configPath)
	fmt.Println("   2. Run 'lockstep' to start the server")
	fmt.Println("   3. Connect clients to /stream with 'Authorization: Bearer <token>'")
}

// cmdToken handles the 'token' subcommand for managing authentication tokens
func cmdToken(args []string) {
	if len(args) < 1 {
		printTokenUsage()
		os.Exit(1)
	}

	lockstepDir := resolveLockstepDir("")
	dataDir := filepath.Join(lockstepDir, "data")

	store, err := auth.NewStore(dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing auth store: %v\n", err)
		os.Exit(1)
	}

	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	case "create":
		tokenCreate(store, cmdArgs)
	case "list":
		tokenList(store)
	case "revoke":
		tokenRevoke(store, cmdArgs)
	case "help", "-h", "--help":
		_ = store.Close()
		printTokenUsage()
		return
	default:
		_ = store.Close()
		fmt.Fprintf(os.Stderr, "Unknown token command: %s\n", cmd)
		printTokenUsage()
		os.Exit(1)
	}
	_ = store.Close()
}

func printTokenUsage() {
	fmt.Println(`Token Management

Usage: lockstep token <command> [options]

Commands:
  create    Create a new API token
  list      List all tokens
  revoke    Revoke a token
  help      Show this help

Roles:
  admin        Full access: lock management, all events
  manager      Operational events, job cards, tasks
  technician   Job cards, tasks, inventory
  accounting   Financial events
  user         Orders and notifications only

Examples:
  lockstep token create --name "Dashboard" --role admin
  lockstep token create --name "Shop Floor" --role technician --expires 720h
  lockstep token list
  lockstep token revoke lks_xxxx...`)
}

func tokenCreate(store *auth.Store, args []string) {
	fs := flag.NewFlagSet("token create", flag.ExitOnError)
	name := fs.String("name", "", "Human-readable token name (required)")
	role := fs.String("role", "", "Token role: admin, manager, technician, user, accounting (required)")
	expires := fs.Duration("expires", 0, "Token lifetime (e.g. 720h); 0 means never expires")
	_ = fs.Parse(args)

	if *name == "" || *role == "" {
		fmt.Fprintln(os.Stderr, "Error: --name and --role are required")
		fs.PrintDefaults()
		os.Exit(1)
	}

	if !auth.ValidRole(auth.Role(*role)) {
		fmt.Fprintf(os.Stderr, "Error: invalid role '%s'\n", *role)
		fmt.Fprintln(os.Stderr, "Valid roles: admin, manager, technician, user, accounting")
		os.Exit(1)
	}

	var expiresAt *time.Time
	if *expires > 0 {
		t := time.Now().Add(*expires)
		expiresAt = &t
	}

	token, tokenID, err := store.CreateToken(*name, auth.Role(*role), expiresAt)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Token created successfully!")
	fmt.Println()
	fmt.Printf("Token:     %s\n", tokenID)
	fmt.Printf("Name:      %s\n", token.Name)
	fmt.Printf("Role:      %s\n", token.Role)
	fmt.Printf("Holder ID: %s\n", token.HolderID)
	fmt.Println()
	fmt.Println("IMPORTANT: Save this token now. It cannot be retrieved later.")
}

func tokenList(store *auth.Store) {
	tokens, err := store.ListTokens()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing tokens: %v\n", err)
		os.Exit(1)
	}

	if len(tokens) == 0 {
		fmt.Println("No tokens found.")
		fmt.Println()
		fmt.Println("Create one with: lockstep token create --name \"My Token\" --role admin")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tROLE\tHOLDER\tCREATED\tLAST USED")
	_, _ = fmt.Fprintln(w, "--\t----\t----\t------\t-------\t---------")

	for _, t := range tokens {
		lastUsed := "never"
		if t.LastUsedAt != nil {
			lastUsed = t.LastUsedAt.Format("2006-01-02 15:04")
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			maskTokenID(t.ID),
			t.Name,
			t.Role,
			t.HolderID,
			t.CreatedAt.Format("2006-01-02 15:04"),
			lastUsed,
		)
	}
	_ = w.Flush()
}

func tokenRevoke(store *auth.Store, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Error: token ID required")
		fmt.Fprintln(os.Stderr, "Usage: lockstep token revoke <token_id>")
		os.Exit(1)
	}

	tokenID := args[0]
	if err := store.RevokeToken(tokenID); err != nil {
		fmt.Fprintf(os.Stderr, "Error revoking token: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Token %s revoked successfully.\n", maskTokenID(tokenID))
}

func maskTokenID(tokenID string) string {
	if len(tokenID) <= 12 {
		return "***"
	}
	return tokenID[:8] + "..." + tokenID[len(tokenID)-4:]
}

// resolveLockstepDir determines the lockstep home directory with precedence:
// 1. Explicit flag (if provided)
// 2. LOCKSTEP_HOME env var
// 3. ./.lockstep (current directory, if initialized)
// 4. ~/.lockstep (default)
func resolveLockstepDir(flagDir string) string {
	if flagDir != "" {
		absDir, err := filepath.Abs(flagDir)
		if err != nil {
			log.Fatalf("Invalid directory: %v", err)
		}
		return absDir
	}

	if envDir := os.Getenv("LOCKSTEP_HOME"); envDir != "" {
		absDir, err := filepath.Abs(envDir)
		if err != nil {
			log.Fatalf("Invalid LOCKSTEP_HOME: %v", err)
		}
		return absDir
	}

	cwd, err := os.Getwd()
	if err == nil {
		directConfig := filepath.Join(cwd, "config", "lockstep.jsonc")
		if _, err := os.Stat(directConfig); err == nil {
			return cwd
		}
		localDir := filepath.Join(cwd, ".lockstep")
		configFile := filepath.Join(localDir, "config", "lockstep.jsonc")
		if _, err := os.Stat(configFile); err == nil {
			return localDir
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Fatalf("Failed to get home directory: %v", err)
	}
	return filepath.Join(homeDir, ".lockstep")
}
