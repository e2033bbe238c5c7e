package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/go-go-golems/parley/pkg/chat"
	"github.com/go-go-golems/parley/pkg/chat/client"
	"github.com/go-go-golems/parley/pkg/events"
	"github.com/go-go-golems/parley/pkg/identity"
	"github.com/go-go-golems/parley/pkg/prefs"
)

var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "parley is a terminal client for a question answering service",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// reinitialize the logger because we can now parse --log-level and co
		// from the command line flag
		initLogger()
	},
	RunE: runChat,
}

type logConfig struct {
	WithCaller bool
	Level      string
	LogFormat  string
	LogFile    string
}

func initLogger() {
	logLevel := viper.GetString("log-level")
	if viper.GetBool("verbose") && logLevel != "trace" {
		logLevel = "debug"
	}

	err := InitLogger(&logConfig{
		Level:      logLevel,
		LogFile:    viper.GetString("log-file"),
		LogFormat:  viper.GetString("log-format"),
		WithCaller: viper.GetBool("with-caller"),
	})
	cobra.CheckErr(err)
}

func InitLogger(config *logConfig) error {
	if config.WithCaller {
		log.Logger = log.With().Caller().Logger()
	}
	// default is json
	var logWriter io.Writer = os.Stderr
	if config.LogFormat == "text" {
		logWriter = zerolog.ConsoleWriter{
			Out:     os.Stderr,
			NoColor: !isatty.IsTerminal(os.Stderr.Fd()),
		}
	}

	if config.LogFile != "" {
		logWriter = io.MultiWriter(
			logWriter,
			zerolog.ConsoleWriter{
				NoColor: true,
				Out: &lumberjack.Logger{
					Filename:   config.LogFile,
					MaxSize:    10, // megabytes
					MaxBackups: 3,
					MaxAge:     28, // days
				},
			})
	}

	log.Logger = log.Output(logWriter)

	switch config.Level {
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "fatal":
		zerolog.SetGlobalLevel(zerolog.FatalLevel)
	}

	return nil
}

func initConfig(configPath string) error {
	viper.SetEnvPrefix("parley")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.parley")

		xdgConfigPath, err := os.UserConfigDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(xdgConfigPath, "parley"))
		}
	}

	err := viper.ReadInConfig()
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		// config file not found; continue with flags and environment
	} else if err != nil {
		return err
	}
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return err
	}

	initLogger()

	log.Debug().
		Str("config", viper.ConfigFileUsed()).
		Msg("loaded configuration")

	return nil
}

func runChat(cmd *cobra.Command, args []string) error {
	apiURL := viper.GetString("api-url")
	if apiURL == "" {
		return errors.New("api-url is required")
	}
	userID := viper.GetString("user-id")
	if userID == "" {
		return errors.New("user-id is required")
	}

	providerOptions := []identity.StaticProviderOption{
		identity.WithIdentity(&identity.Identity{
			ID:          userID,
			Email:       viper.GetString("user-email"),
			DisplayName: viper.GetString("user-name"),
		}),
		identity.WithToken(viper.GetString("api-token")),
	}
	provider := identity.NewStaticProvider(providerOptions...)
	resolver := identity.NewResolver(provider)
	defer resolver.Close()

	apiClient := client.NewClient(apiURL)

	prefsDir := filepath.Join(os.Getenv("HOME"), ".parley", "preferences")
	prefsStore := prefs.NewLayeredStore(prefs.NewFileStore(prefsDir), apiClient, resolver)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	preferences, err := prefsStore.Load(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Msg("could not load preferences, using defaults")
		preferences = prefs.DefaultPreferences()
	}

	router, err := events.NewEventRouter(events.WithVerbose(viper.GetBool("verbose")))
	if err != nil {
		return err
	}
	defer func() {
		if err := router.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close event router")
		}
	}()

	publisher := events.NewPublisherManager()
	publisher.SubscribePublisher("ui", router.Publisher)

	manager := chat.NewManager(resolver, apiClient, chat.WithPublisherManager(publisher))
	defer manager.Close()

	p := tea.NewProgram(
		initialModel(ctx, manager, prefsStore, preferences, userID),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	router.AddHandler("ui", "ui", func(msg *message.Message) error {
		ev, err := events.NewEventFromJSON(msg.Payload)
		if err != nil {
			return err
		}
		p.Send(ev)
		return nil
	})

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return router.Run(ctx)
	})
	eg.Go(func() error {
		<-router.Running()
		manager.Start(ctx)
		return nil
	})
	eg.Go(func() error {
		defer cancel()
		_, err := p.Run()
		return err
	})

	return eg.Wait()
}

func main() {
	err := rootCmd.Execute()
	cobra.CheckErr(err)
}

func init() {
	rootCmd.PersistentFlags().Bool("with-caller", false, "Log caller")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (trace, debug, info, warn, error, fatal)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (json, text)")
	rootCmd.PersistentFlags().String("log-file", "", "Log file (default: stderr)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Verbose output")

	rootCmd.PersistentFlags().String("config", "", "Path to config file (default ~/.parley/config.yml)")

	rootCmd.PersistentFlags().String("api-url", "", "Base URL of the question answering service")
	rootCmd.PersistentFlags().String("api-token", "", "Bearer token for the question answering service")
	rootCmd.PersistentFlags().String("user-id", "", "User id to resolve history and preferences for")
	rootCmd.PersistentFlags().String("user-email", "", "Email shown for the signed-in user")
	rootCmd.PersistentFlags().String("user-name", "", "Display name shown for the signed-in user")

	// parse the flags one time just to catch --config
	configFile := ""
	for idx, arg := range os.Args {
		if arg == "--config" {
			if len(os.Args) > idx+1 {
				configFile = os.Args[idx+1]
			}
		}
	}

	err := initConfig(configFile)
	if err != nil {
		panic(err)
	}
}
