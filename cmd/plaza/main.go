package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/plaza/internal/profile"
	"github.com/hrygo/plaza/server"
	"github.com/hrygo/plaza/server/service/user"
	"github.com/hrygo/plaza/store"
)

const version = "0.1.0"

var (
	rootCmd = &cobra.Command{
		Use:   "plaza",
		Short: "Community events, threads and search in one service.",
		Run: func(_ *cobra.Command, _ []string) {
			instanceProfile, err := loadProfile()
			if err != nil {
				fmt.Printf("failed to load profile, error: %+v\n", err)
				return
			}

			ctx, cancel := context.WithCancel(context.Background())
			registry := server.NewRegistry()
			st, err := openStore(ctx, instanceProfile, registry)
			if err != nil {
				cancel()
				slog.Error("failed to open store", "error", err)
				return
			}

			s, err := server.NewServer(ctx, instanceProfile, st, registry)
			if err != nil {
				cancel()
				slog.Error("failed to create server", "error", err)
				return
			}

			c := make(chan os.Signal, 1)
			// Trigger graceful shutdown on SIGINT or SIGTERM.
			// The default signal sent by the `kill` command is SIGTERM,
			// which is taken as the graceful shutdown signal for many systems, eg., Kubernetes, Gunicorn.
			signal.Notify(c, os.Interrupt, syscall.SIGTERM)

			if err := s.Start(ctx); err != nil {
				cancel()
				slog.Error("failed to start server", "error", err)
				return
			}
			printGreetings(instanceProfile)

			go func() {
				<-c
				s.Shutdown(ctx)
				cancel()
			}()

			// Wait for CTRL-C.
			<-ctx.Done()
		},
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and exit.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			instanceProfile, err := loadProfile()
			if err != nil {
				return err
			}
			st, err := openStore(cmd.Context(), instanceProfile, nil)
			if err != nil {
				return err
			}
			defer st.Close()
			schemaVersion, err := st.GetSchemaVersion(cmd.Context())
			if err != nil {
				return err
			}
			slog.Info("schema is up to date", slog.Int("schemaVersion", schemaVersion))
			return nil
		},
	}

	tokenCmd = &cobra.Command{
		Use:   "token",
		Short: "Open a session for a user and print its access token.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, err := cmd.Flags().GetInt32("user")
			if err != nil {
				return err
			}
			instanceProfile, err := loadProfile()
			if err != nil {
				return err
			}
			if !instanceProfile.IsRedisCache() {
				slog.Warn("sessions live in the cache; with the memory cache the token only works in this process")
			}
			st, err := openStore(cmd.Context(), instanceProfile, nil)
			if err != nil {
				return err
			}
			defer st.Close()

			session, err := user.NewService(st, instanceProfile.Secret).IssueSession(cmd.Context(), userID)
			if err != nil {
				return err
			}
			fmt.Println(session.AccessToken)
			return nil
		},
	}
)

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("port", 8081)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 8081, "port of server")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver, sqlite or postgres")
	rootCmd.PersistentFlags().String("dsn", "", "database source name(aka. DSN)")
	rootCmd.PersistentFlags().String("instance-url", "", "the url of your plaza instance")
	rootCmd.PersistentFlags().String("secret", "", "secret that signs access tokens")

	for _, name := range []string{"mode", "addr", "port", "data", "driver", "dsn", "instance-url", "secret"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(err)
		}
	}

	tokenCmd.Flags().Int32("user", 0, "id of the user the session is opened for")
	if err := tokenCmd.MarkFlagRequired("user"); err != nil {
		panic(err)
	}

	viper.SetEnvPrefix("plaza")
	viper.AutomaticEnv()
	if err := viper.BindEnv("instance-url", "PLAZA_INSTANCE_URL"); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(migrateCmd, tokenCmd)
}

func loadProfile() (*profile.Profile, error) {
	instanceProfile := &profile.Profile{
		Mode:        viper.GetString("mode"),
		Addr:        viper.GetString("addr"),
		Port:        viper.GetInt("port"),
		Data:        viper.GetString("data"),
		Driver:      viper.GetString("driver"),
		DSN:         viper.GetString("dsn"),
		InstanceURL: viper.GetString("instance-url"),
		Secret:      viper.GetString("secret"),
		Version:     version,
	}
	instanceProfile.FromEnv()
	slog.SetDefault(server.NewLogger(instanceProfile, os.Stderr))
	if err := instanceProfile.Validate(); err != nil {
		return nil, err
	}
	return instanceProfile, nil
}

// openStore connects and migrates.
func openStore(ctx context.Context, instanceProfile *profile.Profile, registry prometheus.Registerer) (*store.Store, error) {
	st, err := server.OpenStore(ctx, instanceProfile, registry)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func printGreetings(profile *profile.Profile) {
	slog.Info("plaza started",
		slog.String("version", profile.Version),
		slog.String("mode", profile.Mode),
		slog.String("driver", profile.Driver),
		slog.String("cache", profile.CacheDriver),
		slog.String("pubsub", profile.PubSubDriver),
		slog.String("address", fmt.Sprintf("%s:%d", profile.Addr, profile.Port)),
	)
	if profile.InstanceURL != "" {
		fmt.Printf("Visit %s to start.\n", profile.InstanceURL)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
