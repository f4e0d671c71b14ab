package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sycured/blaeu/pkg/atlas"
	"github.com/sycured/blaeu/pkg/database"
	"github.com/sycured/blaeu/pkg/models"
)

const maxWorkers = 4 // concurrent measurement lifecycles for multi-target runs

var (
	debugFlag bool
	logger    *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "blaeu",
	Short: "Create and retrieve measurements on the RIPE Atlas probe network",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var logLevel slog.Level
		if debugFlag {
			logLevel = slog.LevelDebug
		} else {
			logLevel = slog.LevelInfo
		}

		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
		slog.SetDefault(logger)
	},
}

var pingCmd = &cobra.Command{
	Use:   "ping [target...]",
	Short: "Run a one-off ping measurement towards one or more targets",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runMeasurements(cmd, "ping", args); err != nil {
			logger.Error("Measurement failed", "error", err)
			os.Exit(1)
		}
	},
}

var tracerouteCmd = &cobra.Command{
	Use:   "traceroute [target...]",
	Short: "Run a one-off traceroute measurement towards one or more targets",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runMeasurements(cmd, "traceroute", args); err != nil {
			logger.Error("Measurement failed", "error", err)
			os.Exit(1)
		}
	},
}

var resultsCmd = &cobra.Command{
	Use:   "results [measurement-ID]",
	Short: "Retrieve the results of an existing measurement",
	Long: `Retrieve the results of an existing measurement without creating a new one.
The measurement must be ongoing or stopped.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			logger.Error("Invalid measurement ID", "value", args[0])
			os.Exit(1)
		}
		if err := fetchResults(cmd, id); err != nil {
			logger.Error("Result retrieval failed", "error", err)
			os.Exit(1)
		}
	},
}

var historyCmd = &cobra.Command{
	Use:   "history [measurement-ID]",
	Short: "List stored measurements, or show the stored results of one",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := showHistory(cmd, args); err != nil {
			logger.Error("Error reading history", "error", err)
			os.Exit(1)
		}
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false, "Enable debug logging")

	for _, cmd := range []*cobra.Command{pingCmd, tracerouteCmd} {
		addSelectionFlags(cmd)
		addOutputFlags(cmd)
		cmd.Flags().IntP("port", "t", 80, "Destination port for TCP")
		cmd.Flags().IntP("size", "z", 64, "Number of bytes in the packet")
		cmd.Flags().Int("spread", 0, "Spread the tests with a delay (seconds)")
		cmd.Flags().Bool("private", false, "Make the measurement private")
		cmd.Flags().Bool("no-wait", false, "Submit and return without waiting for probe allocation")
	}

	addOutputFlags(resultsCmd)
	resultsCmd.Flags().Int("latest", 0, "Fetch only the last N results per probe")
	resultsCmd.Flags().Bool("no-wait", false, "Fetch whatever is available instead of polling")
	resultsCmd.Flags().Float64P("percentage", "p", atlas.DefaultPercentage,
		"Fraction of the probes that must report before returning")

	historyCmd.Flags().Int("limit", 20, "Maximum number of measurements to list")

	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(tracerouteCmd)
	rootCmd.AddCommand(resultsCmd)
	rootCmd.AddCommand(historyCmd)
}

func addSelectionFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("country", "c", "", "Limit the measurement to one country (2-letter code)")
	f.StringP("area", "a", "", "Limit the measurement to one area such as North-Central")
	f.Uint32P("asn", "n", 0, "Limit the measurement to one AS")
	f.StringP("prefix", "f", "", "Limit the measurement to one IP prefix (exact prefix in the global routing table)")
	f.Int64SliceP("probes", "s", nil, "Select probes by explicit ID")
	f.Int64P("old-measurement", "g", 0, "Use the probes of a previous measurement")
	f.IntP("requested", "r", 0, fmt.Sprintf("Number of probes requested (default %d)", atlas.DefaultRequested))
	f.Float64P("percentage", "p", atlas.DefaultPercentage,
		"Fraction of the probes that must report before returning")
	f.StringSliceP("include", "i", nil, "Only use probes with these tags")
	f.StringSliceP("exclude", "e", nil, "Exclude probes with these tags")
	f.BoolP("ipv4", "4", false, "Use IPv4 (default is IPv6)")
}

func addOutputFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.BoolP("machinereadable", "b", false, "Print result records as JSON lines")
	f.BoolP("displayprobes", "o", false, "Display the probe IDs (WARNING: big lists)")
	f.Bool("store", false, "Record the measurement and its results in the database")
	f.String("key", "", "API key (default: read from the authentication file)")
}

func initConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME/.blaeu")
	viper.AddConfigPath("/etc/blaeu/")

	viper.SetDefault("atlas.base_url", atlas.DefaultBaseURL)
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.dbname", "blaeu")
	viper.SetDefault("database.sslmode", "disable")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Printf("Error reading config file: %v\n", err)
			os.Exit(1)
		}
	}
}

func newClient(cmd *cobra.Command) (*atlas.Client, error) {
	key, _ := cmd.Flags().GetString("key")
	if key == "" {
		key = viper.GetString("atlas.key")
	}
	return atlas.NewClient(atlas.ClientOptions{
		BaseURL:   viper.GetString("atlas.base_url"),
		Key:       key,
		AuthFile:  viper.GetString("atlas.auth_file"),
		Transport: viper.GetString("atlas.transport"),
		Logger:    logger,
	})
}

func initDB() (*database.DB, error) {
	db, err := database.NewDB()
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %v", err)
	}

	err = db.InitSchema(context.Background())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing database schema: %v", err)
	}

	return db, nil
}

// configFromFlags maps the selection and definition flags onto the builder
// configuration for one measurement type.
func configFromFlags(cmd *cobra.Command, mType string) atlas.Config {
	f := cmd.Flags()
	cfg := atlas.Config{Type: mType, OneOff: true}
	cfg.Country, _ = f.GetString("country")
	cfg.Area, _ = f.GetString("area")
	cfg.ASN, _ = f.GetUint32("asn")
	cfg.Prefix, _ = f.GetString("prefix")
	cfg.ProbeIDs, _ = f.GetInt64Slice("probes")
	cfg.OldMeasurement, _ = f.GetInt64("old-measurement")
	cfg.Requested, _ = f.GetInt("requested")
	cfg.Include, _ = f.GetStringSlice("include")
	cfg.Exclude, _ = f.GetStringSlice("exclude")
	cfg.IPv4, _ = f.GetBool("ipv4")
	cfg.Port, _ = f.GetInt("port")
	cfg.Size, _ = f.GetInt("size")
	cfg.Spread, _ = f.GetInt("spread")
	cfg.Private, _ = f.GetBool("private")
	return cfg
}

func runMeasurements(cmd *cobra.Command, mType string, targets []string) error {
	client, err := newClient(cmd)
	if err != nil {
		return err
	}

	var db *database.DB
	if store, _ := cmd.Flags().GetBool("store"); store {
		db, err = initDB()
		if err != nil {
			return err
		}
		defer db.Close()
	}

	runID := uuid.New().String()
	noWait, _ := cmd.Flags().GetBool("no-wait")
	percentage, _ := cmd.Flags().GetFloat64("percentage")

	jobs := make(chan string, len(targets))
	errs := make(chan error, len(targets))

	workers := maxWorkers
	if len(targets) < workers {
		workers = len(targets)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for target := range jobs {
				cfg := configFromFlags(cmd, mType)
				cfg.Target = target
				cfg.Description = fmt.Sprintf("%s %s", mType, target)
				if err := measureTarget(cmd, client, db, runID, cfg, noWait, percentage); err != nil {
					logger.Error("Target failed", "target", target, "error", err)
					errs <- err
				}
			}
		}()
	}

	for _, target := range targets {
		jobs <- target
	}
	close(jobs)
	wg.Wait()
	close(errs)

	if err := <-errs; err != nil {
		return fmt.Errorf("%d of %d targets failed", len(errs)+1, len(targets))
	}
	return nil
}

func measureTarget(cmd *cobra.Command, client *atlas.Client, db *database.DB, runID string, cfg atlas.Config, noWait bool, percentage float64) error {
	req, err := cfg.BuildRequest(logger)
	if err != nil {
		return err
	}

	ctx := context.Background()
	m, err := atlas.Create(ctx, client, req, atlas.Options{
		NoWait: noWait,
		Notify: notifySleep,
		Logger: logger,
	})
	if err != nil {
		if m != nil {
			// The remote measurement exists even though we gave up on it.
			logger.Warn("Measurement created but not tracked to completion", "id", m.ID)
		}
		return err
	}

	if noWait {
		fmt.Printf("Measurement #%d submitted (not waiting for allocation)\n", m.ID)
		return storeMeasurement(ctx, db, runID, cfg, m, nil)
	}

	fmt.Printf("Measurement #%d uses %d probes\n", m.ID, m.NumProbes)
	displayProbes(cmd, m)

	results, err := m.Results(ctx, atlas.ResultOptions{Percentage: percentage})
	if err != nil {
		return err
	}

	printResults(cmd, m, results)
	return storeMeasurement(ctx, db, runID, cfg, m, results)
}

func fetchResults(cmd *cobra.Command, id int64) error {
	client, err := newClient(cmd)
	if err != nil {
		return err
	}

	var db *database.DB
	if store, _ := cmd.Flags().GetBool("store"); store {
		db, err = initDB()
		if err != nil {
			return err
		}
		defer db.Close()
	}

	ctx := context.Background()
	m, err := atlas.Attach(ctx, client, id, atlas.Options{Notify: notifySleep, Logger: logger})
	if err != nil {
		return err
	}

	fmt.Printf("Measurement #%d (%s, started %s) uses %d probes\n",
		m.ID, m.Description, m.StartTime.Format(time.RFC3339), m.NumProbes)
	displayProbes(cmd, m)

	noWait, _ := cmd.Flags().GetBool("no-wait")
	latest, _ := cmd.Flags().GetInt("latest")
	percentage, _ := cmd.Flags().GetFloat64("percentage")

	results, err := m.Results(ctx, atlas.ResultOptions{
		NoWait:     noWait,
		Latest:     latest,
		Percentage: percentage,
	})
	if err != nil {
		return err
	}

	printResults(cmd, m, results)

	cfg := atlas.Config{Type: "attached", Description: m.Description}
	return storeMeasurement(ctx, db, uuid.New().String(), cfg, m, results)
}

func showHistory(cmd *cobra.Command, args []string) error {
	db, err := initDB()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()

	if len(args) == 1 {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid measurement ID %q", args[0])
		}
		records, err := db.GetResults(ctx, id)
		if err != nil {
			return err
		}
		for _, r := range records {
			fmt.Printf("%s\n", r.Payload)
		}
		return nil
	}

	limit, _ := cmd.Flags().GetInt("limit")
	records, err := db.GetMeasurements(ctx, limit)
	if err != nil {
		return err
	}
	for _, r := range records {
		fmt.Printf("#%d\t%s\t%s\t%s\t%d probes\t%s\n",
			r.MsmID, r.Type, r.Target, r.Status, r.Probes, r.CreatedAt.Format(time.RFC3339))
	}
	return nil
}

func notifySleep(delay time.Duration) {
	logger.Debug("Sleeping before next poll", "delay", delay)
}

func displayProbes(cmd *cobra.Command, m *atlas.Measurement) {
	if show, _ := cmd.Flags().GetBool("displayprobes"); !show {
		return
	}
	ids := make([]int64, len(m.Probes))
	for i, p := range m.Probes {
		ids[i] = p.ID
	}
	fmt.Printf("Probes: %v\n", ids)
}

func printResults(cmd *cobra.Command, m *atlas.Measurement, results []models.Result) {
	if machine, _ := cmd.Flags().GetBool("machinereadable"); machine {
		for _, r := range results {
			line, err := json.Marshal(r)
			if err != nil {
				logger.Error("Error encoding result", "error", err)
				continue
			}
			fmt.Printf("%s\n", line)
		}
		return
	}

	fmt.Printf("Measurement #%d: %d of %d probes reported\n", m.ID, len(results), m.NumProbes)
	for _, r := range results {
		fmt.Printf("  probe %d from %s\n", r.ProbeID, r.From)
	}
}

func storeMeasurement(ctx context.Context, db *database.DB, runID string, cfg atlas.Config, m *atlas.Measurement, results []models.Result) error {
	if db == nil {
		return nil
	}

	af := 6
	if cfg.IPv4 {
		af = 4
	}
	record := &models.MeasurementRecord{
		RunID:       runID,
		MsmID:       m.ID,
		Type:        cfg.Type,
		Target:      cfg.Target,
		AF:          af,
		Description: m.Description,
		Status:      string(m.Status),
		Probes:      m.NumProbes,
		StartTime:   m.StartTime,
	}
	if err := db.UpsertMeasurement(ctx, record); err != nil {
		return err
	}

	rows := make([]models.ResultRecord, len(results))
	for i, r := range results {
		rows[i] = models.ResultRecord{
			MsmID:   m.ID,
			ProbeID: r.ProbeID,
			From:    r.From,
			Time:    r.Time(),
			Payload: r.Raw,
		}
	}
	return db.InsertResults(ctx, rows)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
