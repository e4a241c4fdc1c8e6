package cmd

import (
	"context"
	"fmt"
	log2 "log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"emperror.dev/errors"
	"github.com/NYTimes/logrotate"
	"github.com/apex/log"
	"github.com/apex/log/handlers/multi"
	"github.com/mitchellh/colorstring"
	"github.com/spf13/cobra"

	"github.com/mcmanager/minimanager/config"
	"github.com/mcmanager/minimanager/internal/cron"
	"github.com/mcmanager/minimanager/internal/database"
	"github.com/mcmanager/minimanager/loggers/cli"
	"github.com/mcmanager/minimanager/metrics"
	"github.com/mcmanager/minimanager/ports"
	"github.com/mcmanager/minimanager/proxy"
	"github.com/mcmanager/minimanager/remote"
	"github.com/mcmanager/minimanager/router"
	"github.com/mcmanager/minimanager/server"
	"github.com/mcmanager/minimanager/system"
)

var (
	configPath  = config.DefaultLocation
	debug       = false
	showVersion = false
)

var rootCommand = &cobra.Command{
	Use:   "minimanager",
	Short: "Runs the world processes of a single node and keeps the proxy in sync with them.",
	PreRun: func(cmd *cobra.Command, args []string) {
		if showVersion {
			fmt.Printf("minimanager v%s\n", system.Version)
			os.Exit(0)
		}
		initConfig()
		initLogging()
	},
	Run: rootCmdRun,
}

// Execute calls cobra to handle cli commands
func Execute() {
	if err := rootCommand.Execute(); err != nil {
		log2.Fatalf("failed to execute command: %s", err)
	}
}

func init() {
	rootCommand.PersistentFlags().BoolVar(&showVersion, "version", false, "show the version and exit")
	rootCommand.PersistentFlags().StringVar(&configPath, "config", config.DefaultLocation, "set the location for the configuration file")
	rootCommand.PersistentFlags().BoolVar(&debug, "debug", false, "pass in order to run in debug mode")

	rootCommand.AddCommand(versionCommand)
	rootCommand.AddCommand(newConfigureCommand())
	rootCommand.AddCommand(newDiagnosticsCommand())
	rootCommand.AddCommand(newServiceInstallCommand())
}

var versionCommand = &cobra.Command{
	Use:   "version",
	Short: "Prints the current executable version and exits.",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Printf("minimanager v%s\n", system.Version)
	},
}

func rootCmdRun(cmd *cobra.Command, _ []string) {
	printLogo()
	log.Debug("running in debug mode")
	log.WithField("config_file", configPath).Info("loading configuration from file")

	c := config.Get()
	if err := c.System.ConfigureDirectories(); err != nil {
		log.WithField("error", err).Fatal("failed to configure system directories")
		return
	}
	log.WithField("timezone", c.System.Timezone).Info("configured with system timezone")

	db, err := database.Open(c.System.DatabasePath())
	if err != nil {
		log.WithField("error", err).Fatal("failed to open local database")
		return
	}

	// The proxy port is never handed to a world, even when the configured
	// range covers it.
	alloc, err := ports.New(c.World.PortRange.Start, c.World.PortRange.End, c.Proxy.Port, c.Api.Port)
	if err != nil {
		log.WithField("error", err).Fatal("failed to configure world port range")
		return
	}
	log.WithFields(log.Fields{
		"start":    c.World.PortRange.Start,
		"end":      c.World.PortRange.End,
		"capacity": alloc.Capacity(),
	}).Info("configured world port range")

	var client remote.Client
	if c.Remote.Url != "" {
		client = remote.New(
			c.Remote.Url,
			remote.WithCredentials(c.Remote.Token),
			remote.WithTimeout(time.Second*time.Duration(c.Remote.Timeout)),
		)
	}

	manager := server.NewManager(client, alloc, db)
	defer manager.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if client != nil {
		if err := manager.Boot(ctx); err != nil {
			log.WithField("error", err).Error("failed to boot worlds from control plane")
		}
	} else {
		log.Warn("no control plane configured, worlds are only created through the API")
	}

	backend, err := proxy.New(c.Proxy)
	if err != nil {
		log.WithField("error", err).Fatal("failed to configure proxy backend")
		return
	}
	log.WithField("proxy", backend.Name()).Info("configured proxy backend")

	s, err := cron.Scheduler(ctx, manager, backend, db)
	if err != nil {
		log.WithField("error", err).Fatal("failed to initialize cron system")
		return
	}
	log.WithField("jobs", len(s.Jobs())).Info("starting cron processes")
	s.StartAsync()

	if c.Metrics.Enabled {
		go metrics.Serve(ctx, c.Metrics.Bind)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", c.Api.Host, c.Api.Port),
		Handler: router.Configure(manager, backend),
	}
	go func() {
		log.WithFields(log.Fields{
			"host_address": c.Api.Host,
			"host_port":    c.Api.Port,
		}).Info("configuring internal webserver")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithField("error", err).Fatal("failed to configure HTTP server")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	log.WithField("signal", (<-sig).String()).Info("received signal, shutting down")

	s.Stop()
	shutdown, done := context.WithTimeout(context.Background(), time.Second*10)
	defer done()
	if err := srv.Shutdown(shutdown); err != nil {
		log.WithField("error", err).Warn("failed to gracefully stop HTTP server")
	}
	if err := manager.PersistStates(); err != nil {
		log.WithField("error", err).Error("failed to persist world states")
	}
	manager.StopAll(context.Background())
	if err := backend.Close(); err != nil {
		log.WithField("error", err).Warn("failed to stop proxy process")
	}
	cancel()
}

// Reads the configuration from the disk and then sets up the global singleton
// with all the configuration values.
func initConfig() {
	if !strings.HasPrefix(configPath, "/") {
		d, err := os.Getwd()
		if err != nil {
			log2.Fatalf("cmd/root: could not determine directory: %s", err)
		}
		configPath = filepath.Clean(filepath.Join(d, configPath))
	}
	if err := config.FromFile(configPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			exitWithConfigurationNotice()
		}
		log2.Fatalf("cmd/root: error while reading configuration file: %s", err)
	}
	if debug {
		config.Update(func(c *config.Configuration) {
			c.Debug = true
		})
	}
}

// Configures the global logger so that it can be called from any location in
// the code without passing around a logger instance. Output goes to the
// terminal and to a log file that is reopened on SIGHUP.
func initLogging() {
	dir := config.Get().System.LogDirectory
	if err := os.MkdirAll(dir, 0o700); err != nil {
		log2.Fatalf("cmd/root: failed to create log directory: %s", err)
	}
	p := filepath.Join(dir, "minimanager.log")
	w, err := logrotate.NewFile(p)
	if err != nil {
		log2.Fatalf("cmd/root: failed to create log file: %s", err)
	}
	level := log.InfoLevel
	if config.Get().Debug {
		level = log.DebugLevel
	}
	log.SetLevel(level)
	log.SetHandler(multi.New(cli.Default, cli.New(w.File, false)))
	log.WithField("path", p).Info("writing log files to disk")
}

// Prints the logo, nothing special here!
func printLogo() {
	fmt.Printf(colorstring.Color(`
            _       _
 [green][bold]_ __ ___ (_)_ __ (_)[reset]_ __ ___   __ _ _ __   __ _  __ _  ___ _ __
[green][bold]| '_ ' _ \| | '_ \| |[reset] '_ ' _ \ / _' | '_ \ / _' |/ _' |/ _ \ '__|
[green][bold]| | | | | | | | | | |[reset] | | | | | (_| | | | | (_| | (_| |  __/ |
[green][bold]|_| |_| |_|_|_| |_|_|[reset]_| |_| |_|\__,_|_| |_|\__,_|\__, |\___|_|
                                                   |___/ [bold]v%s[reset]
%s`), system.Version, "\n")
}

func exitWithConfigurationNotice() {
	fmt.Print(colorstring.Color(`
[_red_][white][bold]Error: Configuration File Not Found[reset]

minimanager was not able to locate your configuration file, and therefore is
not able to complete its boot process. Please ensure you have copied your
configuration file into the default location, or have provided the --config
flag to use a custom location. Running "minimanager configure" creates one.

Default Location: /etc/minimanager/config.yml

`))
	os.Exit(1)
}
