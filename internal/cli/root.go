// ABOUTME: Command line interface
// ABOUTME: Cobra root command with flags bound into the viper configuration
package cli

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Resonate-Protocol/resonate-radio/internal/config"
)

type options struct {
	v          *viper.Viper
	configPath string
}

// Execute loads an optional .env file and runs the root command
func Execute() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return NewRootCommand().Execute()
}

// NewRootCommand builds the command tree
func NewRootCommand() *cobra.Command {
	opts := &options{v: config.NewViper()}

	rootCmd := &cobra.Command{
		Use:           "resonate-radio",
		Short:         "Internet radio player",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Config file (default: "+config.DefaultPath()+")")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.String("log-file", "", "Log file path")
	flags.String("output", "", "Audio output backend (malgo, oto, null)")
	flags.Bool("no-tui", false, "Disable the TUI and log to the console")

	bind(opts.v, flags.Lookup("log-level"), "log.level")
	bind(opts.v, flags.Lookup("log-file"), "log.file")
	bind(opts.v, flags.Lookup("output"), "audio.output")

	rootCmd.AddCommand(
		newPlayCommand(opts),
		newConfigCommand(opts),
		newDiscoverCommand(),
		newVersionCommand(),
	)

	return rootCmd
}

// load reads the configuration, applying --no-tui after viper merges everything
func (o *options) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(o.v, o.configPath)
	if err != nil {
		return nil, err
	}
	if noTUI, _ := cmd.Flags().GetBool("no-tui"); noTUI {
		cfg.TUI = false
	}
	return cfg, nil
}
