package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TobiSchelling/subsim/internal/config"
	"github.com/TobiSchelling/subsim/internal/corpus"
	"github.com/TobiSchelling/subsim/internal/database"
	"github.com/TobiSchelling/subsim/internal/feed"
	"github.com/TobiSchelling/subsim/internal/fetch"
	"github.com/TobiSchelling/subsim/internal/forum"
	"github.com/TobiSchelling/subsim/internal/logging"
	"github.com/TobiSchelling/subsim/internal/reddit"
	"github.com/TobiSchelling/subsim/internal/server"
	"github.com/TobiSchelling/subsim/internal/simulator"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	logger     = zap.NewNop()
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "subsim",
	Short:   "Subreddit simulator",
	Long:    "subsim runs bot accounts that comment, submit and vote in a community using Markov chains trained on their source subreddits.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env is fine; secrets may come from the environment.
		_ = godotenv.Load()

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		logger, err = logging.New(cfg.Logging.Level, verbose)
		if err != nil {
			return fmt.Errorf("building logger: %w", err)
		}
		zap.ReplaceGlobals(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(accountsCmd)
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(tickCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("subsim", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/subsim/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to set the simulator subreddit, API credentials and bot accounts.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and simulator status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}
		all, err := db.GetAllSettings()
		if err != nil {
			return fmt.Errorf("loading settings: %w", err)
		}
		settings := simulator.SettingsFromMap(all)

		fmt.Printf("Simulator: /r/%s\n", settings.Subreddit)
		fmt.Printf("Database: %s\n\n", db.Path())
		fmt.Println("Accounts:")
		fmt.Printf("  Total: %d\n", stats.Accounts)
		fmt.Printf("  Commenting: %d\n", stats.CommentAccounts)
		fmt.Printf("  Submitting: %d\n", stats.SubmitAccounts)
		fmt.Println("\nCorpus:")
		fmt.Printf("  Comments: %d\n", stats.Comments)
		fmt.Printf("  Submissions: %d\n", stats.Submissions)
		fmt.Printf("  Source subreddits: %d\n", stats.Subreddits)
		communities, err := collectTargets(db, nil)
		if err != nil {
			return err
		}
		for _, c := range communities {
			nc, err := db.CountComments(c)
			if err != nil {
				return err
			}
			ns, err := db.CountSubmissions(c)
			if err != nil {
				return err
			}
			fmt.Printf("    /r/%s: %d comments, %d submissions\n", c, nc, ns)
		}
		fmt.Println("\nActions:")
		fmt.Printf("  Attempted: %d\n", stats.Actions)
		fmt.Printf("  Succeeded: %d\n", stats.SuccessfulActions)
		fmt.Println("\nLast run:")
		for _, kind := range []simulator.Kind{
			simulator.KindLeaderboard, simulator.KindComment, simulator.KindSubmission, simulator.KindVote,
		} {
			fmt.Printf("  %s: %s\n", kind, lastRun(settings, kind))
		}
		return nil
	},
}

func lastRun(s simulator.Settings, kind simulator.Kind) string {
	var at time.Time
	switch kind {
	case simulator.KindLeaderboard:
		at = s.LastUpdate
	case simulator.KindComment:
		at = s.LastComment
	case simulator.KindSubmission:
		at = s.LastSubmission
	case simulator.KindVote:
		at = s.LastVote
	}
	if at.IsZero() {
		return "never"
	}
	return at.Local().Format("2006-01-02 15:04:05")
}

// --- accounts command ---

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Manage bot accounts",
}

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List bot accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		accounts, err := db.ListAccounts()
		if err != nil {
			return err
		}
		if len(accounts) == 0 {
			fmt.Println("No accounts defined. Add one with: subsim accounts add")
			return nil
		}

		for _, a := range accounts {
			var caps []string
			if a.CanComment {
				caps = append(caps, "comment")
			}
			if a.CanSubmit {
				caps = append(caps, "submit")
			}
			fmt.Printf("  /u/%-24s /r/%-20s %-16s karma %d/%d  comments %d  submissions %d  votes %d\n",
				a.Name, a.Subreddit, strings.Join(caps, ","),
				a.CommentKarma, a.LinkKarma, a.NumComments, a.NumSubmissions, a.NumVotes)
		}
		return nil
	},
}

var (
	addPassword string
	addComment  bool
	addSubmit   bool
)

var accountsAddCmd = &cobra.Command{
	Use:   "add [name] [subreddit]",
	Short: "Add or update a bot account",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		a := database.Account{
			Name:       config.ParseUser(args[0]),
			Password:   addPassword,
			Subreddit:  config.ParseSubreddit(args[1]),
			CanComment: addComment,
			CanSubmit:  addSubmit,
		}
		if a.Name == "" || a.Subreddit == "" {
			return errors.New("account name and subreddit are required")
		}
		if err := db.UpsertAccount(a); err != nil {
			return err
		}
		fmt.Printf("Saved account /u/%s learning from /r/%s\n", a.Name, a.Subreddit)
		return nil
	},
}

func init() {
	accountsAddCmd.Flags().StringVar(&addPassword, "password", "", "Account password")
	accountsAddCmd.Flags().BoolVar(&addComment, "comment", true, "Allow the account to comment")
	accountsAddCmd.Flags().BoolVar(&addSubmit, "submit", false, "Allow the account to submit")

	accountsCmd.AddCommand(accountsListCmd)
	accountsCmd.AddCommand(accountsAddCmd)
}

// --- collect command ---

var collectCmd = &cobra.Command{
	Use:   "collect [subreddit...]",
	Short: "Collect comments and submissions from source subreddits",
	Long:  "Collect refreshes the corpus of the given subreddits, or of every account's source subreddit when none are given.",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		communities, err := collectTargets(db, args)
		if err != nil {
			return err
		}
		if len(communities) == 0 {
			fmt.Println("Nothing to collect: no accounts and no subreddits given.")
			return nil
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		src, err := corpusSource(ctx, db)
		if err != nil {
			return err
		}

		fmt.Printf("Collecting from %d subreddit(s) via %s...\n", len(communities), cfg.Corpus.Source)
		store := corpus.New(db, logger, cfg.Corpus.FetchLimit)
		result, err := store.Collect(ctx, src, communities)
		if err != nil {
			return err
		}

		fmt.Println("\nCollection complete:")
		fmt.Printf("  Total found: %d\n", result.TotalFound)
		fmt.Printf("  New items: %d\n", result.NewItems)
		fmt.Printf("  Duplicates skipped: %d\n", result.Duplicates)

		type kv struct {
			key string
			val int
		}
		var sorted []kv
		for k, v := range result.Communities {
			sorted = append(sorted, kv{k, v})
		}
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].val > sorted[j].val })
		fmt.Println("\nNew items by subreddit:")
		for _, s := range sorted {
			fmt.Printf("  /r/%s: %d\n", s.key, s.val)
		}
		return nil
	},
}

func collectTargets(db *database.DB, args []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		s = config.ParseSubreddit(s)
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	if len(args) > 0 {
		for _, a := range args {
			add(a)
		}
		return out, nil
	}

	accounts, err := db.ListAccounts()
	if err != nil {
		return nil, err
	}
	for _, a := range accounts {
		add(a.Subreddit)
	}
	return out, nil
}

// corpusSource reads public feeds, or the API logged in as the moderator
// (falling back to the first account).
func corpusSource(ctx context.Context, db *database.DB) (corpus.Source, error) {
	if cfg.Corpus.Source == "feed" {
		return feed.New(logger, cfg.Corpus.CommentFeedURL, cfg.Corpus.SubmissionFeedURL, cfg.Reddit.UserAgent), nil
	}

	accounts, err := db.ListAccounts()
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, errors.New("the api source needs at least one account; add one or set corpus.source to feed")
	}
	acct := accounts[0]
	for _, a := range accounts {
		if a.Name == cfg.Simulator.Moderator {
			acct = a
			break
		}
	}
	return newPool().Session(ctx, forum.Credentials{Username: acct.Name, Password: acct.Password})
}

// --- tick command ---

var tickKind string

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run a single scheduling tick",
	Long:  "Tick attempts every action whose delay has elapsed. With --kind it forces one action regardless of its delay.",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sim := newSimulator(db)
		var tr *simulator.TickResult
		if tickKind != "" {
			kind, err := simulator.ParseKind(tickKind)
			if err != nil {
				return err
			}
			tr, err = sim.Force(ctx, kind)
			if err != nil {
				return err
			}
		} else {
			tr, err = sim.Tick(ctx)
			if err != nil {
				return err
			}
		}

		if len(tr.Attempts) == 0 {
			fmt.Println("Nothing due.")
			return nil
		}
		for _, r := range tr.Attempts {
			account := r.Account
			if account == "" {
				account = "-"
			}
			switch {
			case r.Success:
				fmt.Printf("  %-12s /u/%s: %s\n", r.Kind, account, r.Detail)
			case r.Skipped():
				fmt.Printf("  %-12s skipped: %v\n", r.Kind, r.Err)
			default:
				fmt.Printf("  %-12s /u/%s failed: %v\n", r.Kind, account, r.Err)
			}
		}
		return nil
	},
}

func init() {
	tickCmd.Flags().StringVarP(&tickKind, "kind", "k", "", "Force one action: leaderboard, comment, submission or vote")
}

// --- run command ---

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the simulator loop until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Println("Simulator running. Press Ctrl+C to stop.")
		return newSimulator(db).Run(ctx)
	},
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local status dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		port := servePort
		if !cmd.Flags().Changed("port") {
			port = cfg.Server.Port
		}
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(db, logger, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

func newPool() *reddit.Pool {
	timeout := time.Duration(cfg.Reddit.TimeoutSeconds) * time.Second
	opts := reddit.Options{
		ClientID:     cfg.Reddit.ClientID,
		ClientSecret: os.Getenv(cfg.Reddit.ClientSecretEnv),
		UserAgent:    cfg.Reddit.UserAgent,
		AuthURL:      cfg.Reddit.AuthURL,
		APIURL:       cfg.Reddit.APIURL,
	}
	return reddit.NewPool(reddit.NewHTTPClient(logger, timeout), opts, cfg.Reddit.RequestsPerMinute, logger)
}

func newSimulator(db *database.DB) *simulator.Simulator {
	store := corpus.New(db, logger, cfg.Corpus.FetchLimit)
	links := fetch.NewLinkChecker(logger, cfg.Reddit.UserAgent, 0)
	return simulator.New(db, store, newPool(), links, logger)
}

// openDB opens the store and syncs configured settings and accounts into it.
func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	db, err := database.Open(filepath.Join(dataDir, "subsim.db"))
	if err != nil {
		return nil, err
	}

	seeded, err := db.SeedSettings(cfg.SettingsMap())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("seeding settings: %w", err)
	}
	if seeded > 0 {
		logger.Debug("seeded settings", zap.Int("count", seeded))
	}

	for _, a := range cfg.Accounts {
		if a.Name == "" || a.Subreddit == "" {
			logger.Warn("skipping incomplete account", zap.String("account", a.Name))
			continue
		}
		err := db.UpsertAccount(database.Account{
			Name:       a.Name,
			Password:   a.ResolvePassword(),
			Subreddit:  a.Subreddit,
			CanComment: a.CanComment,
			CanSubmit:  a.CanSubmit,
		})
		if err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}
