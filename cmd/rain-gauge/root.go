package main

import (
	"fmt"
	"io"

	logger "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/rain-gauge/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "rain-gauge",
	Short: "Tipping-bucket rain gauge daemon",
	Long: `rain-gauge counts debounced tips from a tipping-bucket rain gauge on a GPIO
line, keeps hourly and daily totals, and checkpoints the day total to
non-volatile storage so a power cut does not lose it.`,
	SilenceUsage: true,
	Version:      version,
}

var saveConfig bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the effective configuration: defaults overlaid with the config file.
With --save the result is written back to the config file, creating it if
it does not exist.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		savePath := ""
		if saveConfig {
			savePath = getConfigPath()
		}
		return showConfig(cmd.OutOrStdout(), cfg, savePath)
	},
}

// showConfig prints cfg as YAML and, when savePath is set, writes it there.
func showConfig(w io.Writer, cfg *config.Config, savePath string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	fmt.Fprint(w, string(data))

	if savePath == "" {
		return nil
	}
	if err := config.Save(savePath, cfg); err != nil {
		return err
	}
	logger.Infof("config written to %s", savePath)
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is "+config.DefaultPath+")")
	configCmd.Flags().BoolVar(&saveConfig, "save", false, "write the effective configuration to the config file")
	rootCmd.AddCommand(runCmd, inspectCmd, resetCmd, configCmd)
}

// getConfigPath returns the config file path
func getConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultPath
}

// loadConfig loads and validates the configuration file
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	setLogLevel(cfg.LogLevel)
	return cfg, nil
}

func setLogLevel(level string) {
	lvl, err := logger.ParseLevel(level)
	if err != nil {
		logger.Warnf("unknown log level %q, using info", level)
		lvl = logger.InfoLevel
	}
	logger.SetLevel(lvl)
}
