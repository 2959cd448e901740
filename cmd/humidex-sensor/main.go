// Command humidex-sensor derives humidex and comfort sensors from Home
// Assistant temperature and humidity entities and publishes them to MQTT.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sweeney/humidex-sensor/internal/config"
	"github.com/sweeney/humidex-sensor/internal/logger"
	"github.com/sweeney/humidex-sensor/internal/registry"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "humidex-sensor",
		Short: "Derive humidex comfort sensors from temperature and humidity",
		Long: `humidex-sensor follows temperature and humidity entities on a Home Assistant
MQTT statestream, computes the humidex and its comfort level for each
registered pair, and publishes both as MQTT discovery sensors.

Registrations are stored in a local SQLite database and managed with the
register, reconfigure, list and remove commands. A running daemon picks up
changes on its next sync.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(
		newRunCmd(opts),
		newRegisterCmd(opts),
		newReconfigureCmd(opts),
		newListCmd(opts),
		newRemoveCmd(opts),
		newComputeCmd(),
	)
	return root
}

// loadConfig reads the configuration file. A missing file at the default
// path yields the defaults; an explicit --config must exist.
func (o *globalOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
		cfg, err = config.Default(), nil
	}
	if err != nil {
		return nil, err
	}

	if o.logLevel != "" {
		if _, ok := logger.ParseLevel(o.logLevel); !ok {
			return nil, fmt.Errorf("invalid log level %q", o.logLevel)
		}
		cfg.Log.Level = o.logLevel
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, w io.Writer) (*zap.SugaredLogger, error) {
	level, ok := logger.ParseLevel(cfg.Log.Level)
	if !ok {
		return nil, fmt.Errorf("invalid log level %q", cfg.Log.Level)
	}
	return logger.NewWithWriter(w, level, cfg.Log.Format)
}

// withManager opens the registration store for a CLI command. Logs go to
// stderr so command output stays clean.
func (o *globalOptions) withManager(cmd *cobra.Command, fn func(ctx context.Context, m *registry.Manager) error) error {
	cfg, err := o.loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer log.Sync()

	repo, err := registry.OpenSQLite(cfg.Database)
	if err != nil {
		return err
	}
	defer repo.Close()

	return fn(cmd.Context(), registry.NewManager(repo, nil, log))
}
