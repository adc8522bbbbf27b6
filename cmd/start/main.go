package start

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/pprof"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/alpacahq/logappender/frontend"
	"github.com/alpacahq/logappender/internal/di"
	"github.com/alpacahq/logappender/metrics"
	"github.com/alpacahq/logappender/utils"
	"github.com/alpacahq/logappender/utils/log"
)

const (
	usage                 = "start"
	short                 = "Start a logappender process serving a data directory"
	long                  = "This command opens every topic under the configured root directory and serves its metrics"
	example               = "logappender start --config <path>"
	defaultConfigFilePath = "./logappender.yml"
	configDesc            = "set the path for the logappender YAML configuration file"

	shutdownTimeout = 5 * time.Second
)

var (
	// Cmd is the start command.
	Cmd = &cobra.Command{
		Use:        usage,
		Short:      short,
		Long:       long,
		Aliases:    []string{"s"},
		SuggestFor: []string{"boot", "up", "serve"},
		Example:    example,
		RunE:       executeStart,
	}
	// configFilePath set flag for a path to the config file.
	configFilePath string
)

// nolint:gochecknoinits // cobra's standard way to initialize flags
func init() {
	Cmd.Flags().StringVarP(&configFilePath, "config", "c", defaultConfigFilePath, configDesc)
}

// executeStart implements the start command.
func executeStart(cmd *cobra.Command, _ []string) error {
	// Attempt to read config file.
	data, err := os.ReadFile(configFilePath)
	if err != nil {
		return fmt.Errorf("failed to read configuration file error: %w", err)
	}

	// Don't output command usage if args(=only the filepath to the config at the moment) are correct
	cmd.SilenceUsage = true

	log.Info("using %v for configuration", configFilePath)

	config, err := utils.ParseConfig(data)
	if err != nil {
		return fmt.Errorf("failed to parse configuration file error: %w", err)
	}
	log.SetLevel(config.LogLevel)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := di.NewContainer(config)
	defer func() {
		if err2 := c.Close(); err2 != nil {
			log.Error("failed to close topics: %v", err2)
		}
		log.Info("exiting...")
	}()

	// Initialize logappender services.
	// --------------------------------
	log.Info("initializing logappender...")
	start := time.Now()

	topics, err := c.GetTopics()
	if err != nil {
		return err
	}

	startupTime := time.Since(start)
	metrics.StartupTime.Set(startupTime.Seconds())
	log.Info("startup time: %s, %d topics open", startupTime, len(topics))

	log.Info("enabling write access...")
	atomic.StoreUint32(&frontend.Writable, 1)
	defer atomic.StoreUint32(&frontend.Writable, 0)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		metrics.StartDiskUsageMonitor(ctx, metrics.DiskUsageBytes, c.GetAbsRootDir(), config.DiskUsageInterval)
		return nil
	})
	g.Go(func() error {
		dumpStacksOnSIGUSR1(ctx)
		return nil
	})

	srv := c.GetHTTPServer()
	g.Go(func() error {
		log.Info("launching heartbeat and prometheus metrics server on %s...", srv.Addr)
		if err2 := srv.ListenAndServe(); err2 != nil && !errors.Is(err2, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server - error: %w", err2)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("initiating graceful shutdown...")
		atomic.StoreUint32(&frontend.Writable, 0)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func dumpStacksOnSIGUSR1(ctx context.Context) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGUSR1)
	defer signal.Stop(signalChan)

	for {
		select {
		case <-ctx.Done():
			return
		case <-signalChan:
			log.Info("dumping stack traces due to SIGUSR1 request")
			if err := pprof.Lookup("goroutine").WriteTo(os.Stdout, 1); err != nil {
				log.Error("failed to write goroutine pprof: %v", err)
			}
		}
	}
}
