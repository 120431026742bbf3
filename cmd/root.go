// Package cmd implements bb-authd's command-line surface (§6.4): with no
// flags it runs the daemon; --ping/--next/--respond/--cancel instead dial
// an already-running daemon's control socket, send one frame, and map the
// reply to an exit code, matching the teacher's own rootCmd-with-mode-flags
// shape (runApp's --no-auto-refresh toggle) rather than a cobra subcommand
// per mode.
package cmd

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	viperlib "github.com/spf13/viper"

	"github.com/anthonyhab/bb-auth/internal/config"
	"github.com/anthonyhab/bb-auth/internal/log"
)

var (
	version = "dev"
	cfgFile string
	cfg     config.Config

	socketFlag  string
	debugFlag   bool
	pingFlag    bool
	nextFlag    bool
	respondFlag string
	cancelFlag  string

	viper = viperlib.New()
)

var rootCmd = &cobra.Command{
	Use:     "bb-authd",
	Short:   "Per-user authentication broker daemon",
	Long:    `bb-authd arbitrates PolicyKit, keyring, and pinentry authentication prompts between a single active UI provider and the subsystems that request them.`,
	Version: version,
	RunE:    run,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: $XDG_CONFIG_HOME/bb-auth/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&socketFlag, "socket", "",
		"override the control socket path")
	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false,
		"enable debug logging (also: BB_AUTH_DEBUG=1)")

	rootCmd.Flags().BoolVar(&pingFlag, "ping", false, "one-shot health check; exit 0 iff pong observed")
	rootCmd.Flags().BoolVar(&nextFlag, "next", false, "dequeue one pending event and print it as JSON")
	rootCmd.Flags().StringVar(&respondFlag, "respond", "", "read a password line from stdin and send session.respond for the given cookie")
	rootCmd.Flags().StringVar(&cancelFlag, "cancel", "", "send session.cancel for the given cookie")

	_ = viper.BindPFlag("socket.path", rootCmd.PersistentFlags().Lookup("socket"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
}

func initConfig() {
	defaults := config.Defaults()
	viper.SetDefault("fallback.idle_ms", defaults.Fallback.IdleMS)
	viper.SetDefault("fallback.action_timeout_ms", defaults.Fallback.ActionTimeoutMS)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		configHome := os.Getenv("XDG_CONFIG_HOME")
		if configHome == "" {
			home, _ := os.UserHomeDir()
			configHome = filepath.Join(home, ".config")
		}
		viper.AddConfigPath(filepath.Join(configHome, "bb-auth"))
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viperlib.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Warn(log.CatConfig, "failed to read config file", "error", err)
		}
	} else {
		log.Info(log.CatConfig, "config loaded", "path", viper.ConfigFileUsed())
	}

	_ = viper.Unmarshal(&cfg)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags).
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

func run(cmd *cobra.Command, _ []string) error {
	debug := os.Getenv("BB_AUTH_DEBUG") != "" || debugFlag
	if debug {
		log.SetMinLevel(log.LevelDebug)
	}
	log.InitStderr()

	socketOverride := socketFlag
	if socketOverride == "" {
		socketOverride = cfg.Socket.Path
	}
	socketPath := config.ResolveSocketPath(socketOverride, os.Getenv)

	switch {
	case pingFlag:
		return runPing(socketPath)
	case nextFlag:
		return runNext(socketPath)
	case respondFlag != "":
		return runRespond(socketPath, respondFlag)
	case cancelFlag != "":
		return runCancel(socketPath, cancelFlag)
	default:
		return runServe(socketPath)
	}
}
