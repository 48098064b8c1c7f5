package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/thesavant42/rulesearch/internal/api"
	"github.com/thesavant42/rulesearch/internal/db"
	"github.com/thesavant42/rulesearch/internal/export"
	"github.com/thesavant42/rulesearch/internal/models"
	"github.com/thesavant42/rulesearch/internal/search"
	"github.com/thesavant42/rulesearch/internal/ui"
)

const defaultLogFile = "rulesearch.log"

type options struct {
	url       string
	email     string
	token     string
	pageDelay time.Duration
	headless  bool
	debug     bool
	logPath   string
	dbPath    string
	exportDir string
	exportMD  bool
	snapshot  bool
	values    ui.QueryValues
}

func main() {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()

	var opts options
	urlFlag := flag.String("url", "", "Account subdomain, host or URL (env RULESEARCH_URL)")
	emailFlag := flag.String("email", "", "Agent email for API token auth (env RULESEARCH_EMAIL)")
	tokenFlag := flag.String("token", "", "API token (env RULESEARCH_TOKEN)")
	delayFlag := flag.String("page-delay", "", "Minimum delay between page requests, e.g. 500ms (env RULESEARCH_PAGE_DELAY)")
	typeFlag := flag.String("type", string(models.DefaultResourceType), "Collection to search: macros, triggers, automations, views")
	flag.BoolVar(&opts.headless, "headless", false, "Print results to stdout instead of starting the TUI")
	flag.BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	flag.StringVar(&opts.logPath, "log", defaultLogFile, "Log file used by the TUI")
	flag.StringVar(&opts.dbPath, "db", export.DefaultDatabase, "SQLite database for result snapshots")
	flag.StringVar(&opts.exportDir, "export-dir", ".", "Directory for Markdown exports")
	flag.BoolVar(&opts.exportMD, "export-md", false, "Headless: write the results to a Markdown file")
	flag.BoolVar(&opts.snapshot, "snapshot", false, "Headless: save the results as a snapshot in -db")

	tag := flag.String("tag", "", "Match rules with an action value containing this text")
	comment := flag.String("comment", "", "Match rules whose comment contains this text")
	note := flag.String("note", "", "Match rules whose notification body contains this text")
	createdStart := flag.String("created-start", "", "Created after (yyyy-mm-dd, exclusive)")
	createdEnd := flag.String("created-end", "", "Created before (yyyy-mm-dd, exclusive)")
	updatedStart := flag.String("updated-start", "", "Updated after (yyyy-mm-dd, exclusive)")
	updatedEnd := flag.String("updated-end", "", "Updated before (yyyy-mm-dd, exclusive)")
	includeInactive := flag.Bool("include-inactive", false, "Include inactive rules")

	listSnapshots := flag.Bool("list-snapshots", false, "List saved snapshots and exit")
	showSnapshot := flag.String("show-snapshot", "", "Print the rules of a saved snapshot and exit")
	deleteSnapshot := flag.String("delete-snapshot", "", "Delete a saved snapshot and exit")
	flag.Parse()

	// Snapshot maintenance needs no account
	if *listSnapshots || *showSnapshot != "" || *deleteSnapshot != "" {
		if err := runSnapshotCommand(opts.dbPath, *listSnapshots, *showSnapshot, *deleteSnapshot); err != nil {
			ui.PrintError(err.Error())
			os.Exit(1)
		}
		return
	}

	opts.url = envFallback(*urlFlag, "RULESEARCH_URL")
	opts.email = envFallback(*emailFlag, "RULESEARCH_EMAIL")
	opts.token = envFallback(*tokenFlag, "RULESEARCH_TOKEN")

	if d := envFallback(*delayFlag, "RULESEARCH_PAGE_DELAY"); d != "" {
		delay, err := time.ParseDuration(d)
		if err != nil {
			ui.PrintError(fmt.Sprintf("Invalid page delay %q: %v", d, err))
			os.Exit(1)
		}
		opts.pageDelay = delay
	}

	opts.values = ui.QueryValues{
		Type:         *typeFlag,
		Tag:          *tag,
		Comment:      *comment,
		Note:         *note,
		CreatedStart: *createdStart,
		CreatedEnd:   *createdEnd,
		UpdatedStart: *updatedStart,
		UpdatedEnd:   *updatedEnd,
	}
	opts.values.Conditions = conditionsFromFlags(opts.values, *includeInactive)

	baseURL, err := api.ResolveBaseURL(opts.url)
	if err != nil {
		ui.PrintError(fmt.Sprintf("Account URL required (-url or RULESEARCH_URL): %v", err))
		os.Exit(1)
	}

	if opts.headless {
		if err := runHeadless(baseURL, opts); err != nil {
			ui.PrintError(err.Error())
			os.Exit(1)
		}
		return
	}

	if err := runTUI(baseURL, opts); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}

func envFallback(value, key string) string {
	if value != "" {
		return value
	}
	return os.Getenv(key)
}

// conditionsFromFlags checks every condition whose flag was given
func conditionsFromFlags(v ui.QueryValues, includeInactive bool) []string {
	var conds []string
	if v.Tag != "" {
		conds = append(conds, ui.CondTag)
	}
	if v.Comment != "" {
		conds = append(conds, ui.CondComment)
	}
	if v.Note != "" {
		conds = append(conds, ui.CondNote)
	}
	if v.CreatedStart != "" || v.CreatedEnd != "" {
		conds = append(conds, ui.CondCreated)
	}
	if v.UpdatedStart != "" || v.UpdatedEnd != "" {
		conds = append(conds, ui.CondUpdated)
	}
	if includeInactive {
		conds = append(conds, ui.CondInactive)
	}
	return conds
}

// newFileLogger opens an append-only log file. The TUI owns stdout, so it
// logs here; nil is returned when the file cannot be opened.
func newFileLogger(path string, level log.Level) (*log.Logger, func()) {
	if dir := filepath.Dir(path); dir != "." {
		_ = os.MkdirAll(dir, 0755)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, func() {}
	}
	logger := log.NewWithOptions(f, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Prefix:          "rulesearch",
		Level:           level,
	})
	return logger, func() { f.Close() }
}

func logLevel(debug bool) log.Level {
	if debug {
		return log.DebugLevel
	}
	return log.InfoLevel
}

func newClient(baseURL string, opts options, logger *log.Logger) *api.Client {
	var apiLogger *log.Logger
	if logger != nil {
		apiLogger = logger.WithPrefix("api")
	}
	return api.NewClient(api.Options{
		BaseURL:   baseURL,
		Email:     opts.email,
		Token:     opts.token,
		PageDelay: opts.pageDelay,
		Logger:    apiLogger,
	})
}

func runTUI(baseURL string, opts options) error {
	logger, closeLog := newFileLogger(opts.logPath, logLevel(opts.debug))
	defer closeLog()

	if logger != nil {
		logger.Info("Starting TUI", "account", baseURL)
	}

	return ui.RunSearchTUI(ui.SearchOptions{
		Fetcher:   newClient(baseURL, opts, logger),
		Account:   baseURL,
		Logger:    logger,
		DBPath:    opts.dbPath,
		ExportDir: opts.exportDir,
		Initial:   opts.values,
	})
}

func runHeadless(baseURL string, opts options) error {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Level:           logLevel(opts.debug),
	})

	printer := ui.NewPrinter(os.Stdout)
	driver := search.NewDriver(search.Config{
		Renderer: printer,
		Notifier: printer,
		Controls: printer,
		Logger:   logger.WithPrefix("search"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// First interrupt stops after the page in flight, the second aborts it
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		interrupts := 0
		for {
			select {
			case <-sigs:
				interrupts++
				if interrupts == 1 && driver.Cancel() {
					printer.Notify("Stopping after the current page (interrupt again to abort)", search.SeverityAlert)
					continue
				}
				cancel()
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	req := opts.values.Request()
	sum, err := driver.Run(ctx, newClient(baseURL, opts, logger.WithPrefix("api")), req)
	if err != nil {
		if errors.Is(err, search.ErrNoConditions) {
			return fmt.Errorf("no search conditions: pass -tag, -comment, -note, a date range or -include-inactive")
		}
		return err
	}

	s := sum.Session
	elapsed := s.EndedAt.Sub(s.StartedAt).Round(time.Millisecond)
	if s.Cancelled {
		printer.Notify(fmt.Sprintf("Search stopped after %d pages: %d results", s.Pages, s.Rendered), search.SeverityAlert)
	} else {
		ui.PrintSuccess(fmt.Sprintf("Search finished: %d results from %d pages in %s", s.Rendered, s.Pages, elapsed))
	}
	if s.Skipped > 0 {
		printer.Notify(fmt.Sprintf("%d unreadable rules skipped", s.Skipped), search.SeverityAlert)
	}

	rules := printer.Rules()
	if opts.exportMD {
		path, err := export.ToMarkdownFile(opts.exportDir, rules, export.Meta{
			Type:      s.Request.Type,
			Query:     s.Request.Query.Describe(),
			Account:   baseURL,
			Generated: time.Now(),
		})
		if err != nil {
			return err
		}
		ui.PrintSuccess(fmt.Sprintf("Exported %d rules to %s", len(rules), path))
	}
	if opts.snapshot {
		id, err := export.ToSQLite(opts.dbPath, models.Snapshot{
			SessionID: s.ID,
			Type:      s.Request.Type,
			Query:     s.Request.Query.Describe(),
			Account:   baseURL,
			Rules:     rules,
		})
		if err != nil {
			return err
		}
		ui.PrintSuccess(fmt.Sprintf("Saved snapshot %s (%d rules) to %s", id, len(rules), opts.dbPath))
	}
	return nil
}

func runSnapshotCommand(dbPath string, list bool, showID, deleteID string) error {
	database, err := db.New(dbPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	switch {
	case deleteID != "":
		if err := database.DeleteSnapshot(deleteID); err != nil {
			return err
		}
		ui.PrintSuccess(fmt.Sprintf("Deleted snapshot %s", deleteID))

	case showID != "":
		rules, err := database.LoadSnapshotRules(showID)
		if err != nil {
			return err
		}
		p := ui.NewPrinter(os.Stdout)
		p.Reset()
		p.Render(rules)
		p.UpdateCount(len(rules))

	case list:
		snaps, err := database.ListSnapshots()
		if err != nil {
			return err
		}
		if len(snaps) == 0 {
			fmt.Println("No snapshots saved.")
			return nil
		}
		fmt.Println("Saved snapshots:")
		for _, s := range snaps {
			fmt.Printf("  %s  %s  %-11s %4d rules  %s  %s\n",
				s.ID, s.CreatedAt.Format("2006-01-02 15:04"), s.Type, s.RowCount, s.Account, s.Query)
		}
	}
	return nil
}
