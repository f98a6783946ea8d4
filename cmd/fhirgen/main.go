package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/fhirgen/internal/casegen"
	"github.com/ehr/fhirgen/internal/config"
	"github.com/ehr/fhirgen/internal/domain/admin"
	"github.com/ehr/fhirgen/internal/platform/blobstore"
	"github.com/ehr/fhirgen/internal/platform/delivery"
	"github.com/ehr/fhirgen/internal/platform/fhir"
	"github.com/ehr/fhirgen/internal/platform/middleware"
)

// docAll selects every registered document type.
const docAll = "all"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "fhirgen",
		Short:        "FHIR message Bundle generator",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(sendCmd())
	rootCmd.AddCommand(mockServerCmd())
	return rootCmd
}

// loadConfig loads and validates the configuration and builds the logger.
func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, newLogger(cfg, os.Stdout), nil
}

func newLogger(cfg *config.Config, w io.Writer) zerolog.Logger {
	logger := zerolog.New(w).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: w}).With().Timestamp().Logger()
	}
	if level, err := cfg.Level(); err == nil {
		logger = logger.Level(level)
	}
	return logger
}

// ---------------------------------------------------------------------------
// generate
// ---------------------------------------------------------------------------

func generateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate [docType|all]",
		Short: "Generate message Bundles from case files",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docType := docAll
			if len(args) == 1 {
				docType = args[0]
			}
			input, _ := cmd.Flags().GetString("input")

			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			store, err := openStore(ctx, cfg, cfg.OutputDir)
			if err != nil {
				return err
			}

			reports, err := generate(ctx, cfg, store, logger, docType, input)
			if err != nil {
				return err
			}
			return writeReports(cmd.OutOrStdout(), reports)
		},
	}
	cmd.Flags().String("input", "", "Case file to read instead of <CONFIG_DIR>/<docType>.json")
	return cmd
}

// caseOptions maps the configuration onto builder options.
func caseOptions(cfg *config.Config) casegen.Options {
	opts := casegen.DefaultOptions()
	opts.EndpointURL = cfg.EndpointURL
	opts.LocationDefaults = admin.LocationDefaults{
		Position: admin.Position{
			Longitude: cfg.LocationLongitude,
			Latitude:  cfg.LocationLatitude,
			Altitude:  cfg.LocationAltitude,
		},
		ManagingOrganization: cfg.ManagingOrganization,
	}
	opts.Seed = cfg.RandomSeed
	return opts
}

// generate runs one document type, or every registered type in pipeline
// order for "all". With "all" a missing case file is skipped.
func generate(ctx context.Context, cfg *config.Config, store blobstore.Store, logger zerolog.Logger, docType, input string) ([]casegen.Report, error) {
	registry := casegen.NewRegistry(caseOptions(cfg))

	docTypes := []string{docType}
	if docType == docAll {
		if input != "" {
			return nil, fmt.Errorf("--input needs a single document type")
		}
		docTypes = registry.DocumentTypes()
	}

	runner := casegen.NewRunner(store, logger, cfg.Workers)

	var reports []casegen.Report
	for _, t := range docTypes {
		builder, err := registry.Lookup(t)
		if err != nil {
			return reports, err
		}

		path := input
		if path == "" {
			path = filepath.Join(cfg.ConfigDir, t+".json")
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			if docType == docAll && errors.Is(err, os.ErrNotExist) {
				logger.Warn().Str("document_type", t).Str("path", path).Msg("no case file, skipping")
				continue
			}
			return reports, fmt.Errorf("reading %s: %w", path, err)
		}

		cases, err := casegen.DecodeCases(raw)
		if err != nil {
			return reports, fmt.Errorf("%s: %w", path, err)
		}

		report, err := runner.Run(ctx, builder, cases)
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// writeReports prints one OperationOutcome per report and fails when any case
// failed.
func writeReports(w io.Writer, reports []casegen.Report) error {
	failed := 0
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	for _, r := range reports {
		outcome := r.Outcome()
		if err := enc.Encode(outcome); err != nil {
			return err
		}
		if outcome.HasErrors() {
			failed += len(r.Failed)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d cases failed", failed)
	}
	return nil
}

// openStore returns the configured output store. For the filesystem backend
// dir is the root; for minio the bucket is created when missing.
func openStore(ctx context.Context, cfg *config.Config, dir string) (blobstore.Store, error) {
	switch cfg.StorageBackend {
	case config.StorageMinio:
		client, err := blobstore.NewMinioClient(cfg.Minio())
		if err != nil {
			return nil, err
		}
		store := blobstore.NewMinioStore(client, cfg.MinioBucket)
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return blobstore.NewFileStore(dir), nil
	}
}

// ---------------------------------------------------------------------------
// send
// ---------------------------------------------------------------------------

func sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send [folder]",
		Short: "Deliver every generated message in the output folder",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.ValidateDelivery(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// The folder is a directory for the filesystem backend and a key
			// prefix for minio.
			dir, prefix := cfg.OutputDir, ""
			if len(args) == 1 {
				if cfg.StorageBackend == config.StorageMinio {
					prefix = args[0]
				} else {
					dir = args[0]
				}
			}

			store, err := openStore(ctx, cfg, dir)
			if err != nil {
				return err
			}

			sender, closeSender, err := newSender(cfg, logger)
			if err != nil {
				return err
			}
			defer closeSender()

			attempts, err := delivery.NewDispatcher(store, sender, logger).SendAll(ctx, prefix)
			if err != nil {
				return err
			}
			if s := delivery.Summarize(attempts); s.Failed > 0 {
				return fmt.Errorf("%d deliveries failed", s.Failed)
			}
			return nil
		},
	}
}

// newSender builds the configured transport and a func releasing it.
func newSender(cfg *config.Config, logger zerolog.Logger) (delivery.Sender, func() error, error) {
	if cfg.DeliveryTransport == config.TransportAMQP {
		s, err := delivery.DialAMQP(cfg.AMQPURL, cfg.AMQPQueue)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}

	opts := []delivery.HTTPOption{
		delivery.WithTimeout(cfg.DeliveryTimeout),
		delivery.WithMaxRetries(cfg.DeliveryRetries),
		delivery.WithLogger(logger),
	}
	if cfg.DeliverySecret != "" {
		opts = append(opts, delivery.WithSigningSecret(cfg.DeliverySecret))
	}
	s, err := delivery.NewHTTPSender(cfg.APIURL, opts...)
	if err != nil {
		return nil, nil, err
	}
	return s, func() error { return nil }, nil
}

// ---------------------------------------------------------------------------
// mock-server
// ---------------------------------------------------------------------------

func mockServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mock-server",
		Short: "Run the message acknowledgement server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			return runMockServer(cfg, logger)
		},
	}
}

// newMockServer wires the acknowledgement endpoint and, when recording, the
// read-only message listing. With DELIVERY_SECRET set, unsigned messages are
// rejected.
func newMockServer(cfg *config.Config, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.BodyLimit("10M"))
	e.Use(middleware.VerifySignature(cfg.DeliverySecret))

	responder := fhir.NewAckResponder(fmt.Sprintf("http://localhost:%s/fhirmock", cfg.MockPort))
	ack := fhir.NewAckHandler(responder, logger)
	if cfg.MockRecord {
		store := blobstore.NewInMemoryStore()
		ack.WithStore(store)
		blobstore.NewHandler(store).RegisterRoutes(e.Group("/fhirmock"))
	}
	ack.RegisterRoutes(e)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	return e
}

func runMockServer(cfg *config.Config, logger zerolog.Logger) error {
	e := newMockServer(cfg, logger)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.MockPort
		logger.Info().Str("addr", addr).Msg("starting mock server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
