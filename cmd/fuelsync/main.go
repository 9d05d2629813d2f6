// Command fuelsync exports the fuel stock view from Tableau, reshapes it into
// the analysis spreadsheet and uploads it to the fuel API.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/fuelsync/internal/config"
	"github.com/JonMunkholm/fuelsync/internal/logging"
	"github.com/JonMunkholm/fuelsync/internal/pipeline"
)

// Exit codes.
const (
	exitOK           = 0
	exitFailure      = 1
	exitUploadFailed = 2
)

// app holds state shared by every subcommand.
type app struct {
	configPath string
	envFile    string

	cfg      *config.Config
	logClose io.Closer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	a := &app{}
	err := a.rootCommand().ExecuteContext(ctx)
	stop()

	code := exitCode(err)
	if a.logClose != nil {
		a.logClose.Close()
	}
	os.Exit(code)
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "fuelsync",
		Short:         "Export, reshape and upload the fuel stock analysis",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML config file (env: "+config.FileEnv+")")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before the environment is read")

	root.AddCommand(
		a.runCommand(),
		a.exportCommand(),
		a.viewsCommand(),
		a.workbooksCommand(),
		a.reshapeCommand(),
		a.uploadCommand(),
		a.pingCommand(),
		a.statusCommand(),
		a.historyCommand(),
	)
	return root
}

// load reads .env, the optional YAML file and the environment, then installs logging.
func (a *app) load() error {
	// Overload overwrites existing env vars
	if a.envFile != "" {
		if err := godotenv.Overload(a.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", a.envFile, err)
		}
	}

	path := a.configPath
	if path == "" {
		path = os.Getenv(config.FileEnv)
	}

	cfg, err := config.LoadFile(path)
	if err != nil {
		return err
	}

	closer, err := logging.Setup(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Dir)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logClose = closer
	slog.Debug("configuration loaded", "config", cfg.String())
	return nil
}

// exitCode maps a command error to the process exit status and reports it.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}

	slog.Error("fuelsync failed", "error", err)
	if pipeline.IsUserFacing(err) {
		fmt.Fprintln(os.Stderr, pipeline.FormatUserError(err))
	}
	fmt.Fprintln(os.Stderr, "error:", err)

	if errors.Is(err, pipeline.ErrUpload) {
		return exitUploadFailed
	}
	return exitFailure
}
