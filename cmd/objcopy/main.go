// Package main provides the objcopy CLI entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/arkdb/objcopy/pkg/copier"
	"github.com/arkdb/objcopy/pkg/objconf"
	"github.com/arkdb/objcopy/pkg/objerr"
	"github.com/arkdb/objcopy/pkg/objlog"
	"github.com/arkdb/objcopy/pkg/progress"
	"github.com/arkdb/objcopy/pkg/storage"
)

func main() {
	os.Exit(run())
}

// run wires flags to the loader and copy engine, and returns the process
// exit code per spec: 0 success, 1 user/config error, 2 operational
// failure.
func run() int {
	var (
		sourceZopeConf string
		sourceDB       string
		destZopeConf   string
		destDB         string
		dryRun         bool
		incremental    bool
		verbosity      int
		metricsAddr    string
		configFormat   string
	)

	rootCmd := &cobra.Command{
		Use:   "objcopy [config_file]",
		Short: "Copy a transactional object-storage history to another backend",
		Long: `objcopy copies the full transaction history of an object storage into
another storage backend, preserving transaction identifiers, object
identifiers, and blob payloads wherever the destination allows it.`,
		Args: cobra.MaximumNArgs(1),
	}

	rootCmd.Flags().StringVar(&sourceZopeConf, "source-zope-conf", "", "host-application config to extract the source database from")
	rootCmd.Flags().StringVar(&sourceDB, "source-db", "main", "database name within --source-zope-conf")
	rootCmd.Flags().StringVar(&destZopeConf, "dest-zope-conf", "", "host-application config to extract the destination database from")
	rootCmd.Flags().StringVar(&destDB, "dest-db", "main", "database name within --dest-zope-conf")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "count records without writing to the destination")
	rootCmd.Flags().BoolVar(&incremental, "incremental", false, "resume from the destination's last committed transaction")
	rootCmd.Flags().CountVarP(&verbosity, "verbose", "v", "increase log verbosity (-v info, -vv debug)")
	rootCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "optional address to serve Prometheus metrics on (e.g. :9090)")
	rootCmd.Flags().StringVar(&configFormat, "config-format", "auto", "config_file format: auto, declarative, or yaml")

	exitCode := 0
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		objlog.Init(objlog.Config{
			Verbosity: verbosity,
			JSON:      os.Getenv("OBJCOPY_LOG_FORMAT") == "json",
		})

		var configFile string
		if len(args) == 1 {
			configFile = args[0]
		}

		if configFile == "" && sourceZopeConf == "" && destZopeConf == "" {
			exitCode = objerr.ExitCode(objerr.ErrMissingSpecification)
			return objerr.ErrMissingSpecification
		}

		loaded, err := objconf.Load(objconf.LoadOptions{
			ConfigFile:     configFile,
			ConfigFormat:   objconf.Format(configFormat),
			SourceZopeConf: sourceZopeConf,
			SourceDB:       sourceDB,
			DestZopeConf:   destZopeConf,
			DestDB:         destDB,
		})
		if err != nil {
			exitCode = objerr.ExitCode(err)
			return err
		}
		defer loaded.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigChan
			objlog.Logger.Warn().Msg("received shutdown signal, cancelling copy")
			cancel()
		}()

		reporter := progress.Multi{progress.NewLogReporter(progress.Options{Verbose: verbosity > 0})}
		var metricsServer *http.Server
		if metricsAddr != "" {
			collector := progress.NewProgressCollector()
			reporter = append(reporter, collector)

			mux := http.NewServeMux()
			mux.Handle("/metrics", collector.Handler())
			metricsServer = &http.Server{Addr: metricsAddr, Handler: mux}
			go func() {
				if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					objlog.Logger.Warn().Err(err).Msg("metrics server stopped")
				}
			}()
			defer func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				metricsServer.Shutdown(shutdownCtx)
			}()
		}

		opts := copier.Options{DryRun: dryRun, Progress: reporter}
		if incremental {
			destAsSource, ok := loaded.Destination.(storage.SourceStorage)
			if !ok {
				exitCode = objerr.ExitCode(objerr.ErrUnsupportedSource)
				return objerr.ErrUnsupportedSource
			}
			start, err := copier.IncrementalStart(ctx, destAsSource)
			if err != nil {
				exitCode = objerr.ExitCode(err)
				return err
			}
			opts.StartTID = start
		}

		result, err := copier.Copy(ctx, loaded.Source, loaded.Destination, opts)
		if err != nil {
			objlog.Logger.Error().Msgf("%+v", err)
			exitCode = objerr.ExitCode(err)
			return err
		}

		fmt.Printf("copied %d transactions, %d objects, %d blobs\n", result.Transactions, result.Objects, result.Blobs)
		return nil
	}
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		objlog.Logger.Error().Msgf("%+v", err)
		if exitCode == 0 {
			exitCode = 2
		}
	}
	return exitCode
}
