package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"surveydesk/internal/app"
	"surveydesk/internal/config"
	"surveydesk/internal/db"
	"surveydesk/internal/server"
	"surveydesk/internal/survey"
)

var rootCmd = &cobra.Command{
	Use:   "sv",
	Short: "Surveydesk CLI",
	Long: `Surveydesk builds surveys, collects responses and reports on them.
- Workspace: the directory holding surveydesk.yml and the .surveydesk data dir.
- Surveys: versioned question sets; publish one to accept responses.
- Responses: answers validated against the survey rules (required, conditional logic, limits).
- Templates: reusable survey drafts; every use is counted.
- Storage: a SQLite document store backed by a flat key-value store (file, memory or redis).
  When the document store is unavailable, everything keeps working on the flat store.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	// .env is optional; real environment variables take precedence.
	_ = godotenv.Load()
	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().String("config", "", "config file (default <workspace>/surveydesk.yml)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "", "author/respondent id recorded on writes")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log at the configured level instead of warn")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func registerCommands() {
	rootCmd.AddCommand(surveyCmd())
	rootCmd.AddCommand(responseCmd())
	rootCmd.AddCommand(templateCmd())
	rootCmd.AddCommand(storageCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

// loadConfig reads --config when given, else the workspace config file.
func loadConfig() (*config.Config, error) {
	if path := viper.GetString("config"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return config.FromYAML(data)
	}
	return config.Load(viper.GetString("workspace"))
}

func withService(ctx context.Context, fn func(context.Context, *survey.Service) error) error {
	return withRuntime(ctx, func(ctx context.Context, rt *app.Runtime) error {
		if _, err := rt.Service.Load(ctx); err != nil {
			return err
		}
		return fn(ctx, rt.Service)
	})
}

func withRuntime(ctx context.Context, fn func(context.Context, *app.Runtime) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !viper.GetBool("verbose") && (cfg.Log.Level == "debug" || cfg.Log.Level == "info") {
		cfg.Log.Level = "warn"
	}
	rt, err := app.Open(ctx, viper.GetString("workspace"), cfg, app.Options{WaitStructured: true})
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

func storageCmd() *cobra.Command {
	st := &cobra.Command{
		Use:   "storage",
		Short: "Inspect and reset storage",
	}
	st.AddCommand(storageStatusCmd())
	st.AddCommand(storageClearCmd())
	st.AddCommand(storageResetCmd())
	return st
}

func storageStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show backend availability and entity counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *survey.Service) error {
				avail := svc.CheckStorage(ctx)
				stats, err := svc.StorageStats(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"availability": avail, "stats": stats})
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Backend", "Available", "Detail"})
				tw.AppendRow(table.Row{"structured", avail.Structured, firstNonEmpty(avail.StructuredError, string(avail.StructuredState))})
				tw.AppendRow(table.Row{"flat", avail.Flat, firstNonEmpty(avail.FlatError, fmt.Sprintf("%d bytes", stats.FlatBytes))})
				tw.Render()
				ct := table.NewWriter()
				ct.SetOutputMirror(os.Stdout)
				ct.AppendHeader(table.Row{"Kind", "Count"})
				for kind, n := range stats.Counts {
					ct.AppendRow(table.Row{kind, n})
				}
				ct.SortBy([]table.SortBy{{Name: "Kind", Mode: table.Asc}})
				ct.AppendFooter(table.Row{"fallbacks", stats.Fallbacks})
				ct.Render()
				return nil
			})
		},
	}
}

func storageClearCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every survey, response and template",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear storage without --yes")
			}
			return withService(cmd.Context(), func(ctx context.Context, svc *survey.Service) error {
				if err := svc.ClearAll(ctx); err != nil {
					return err
				}
				return printResult("storage cleared")
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}

func storageResetCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Replace all data with the sample surveys",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to reset storage without --yes")
			}
			return withService(cmd.Context(), func(ctx context.Context, svc *survey.Service) error {
				list, err := svc.ResetToSampleData(ctx)
				if err != nil {
					return err
				}
				return printSurveys(list)
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm reset")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage surveydesk.yml",
		Long:  "Config selects the storage backends, logging and server settings. Every key can be overridden with SURVEYDESK_<SECTION>_<KEY>, for example SURVEYDESK_STORAGE_FLAT=redis.",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			return printResult("wrote " + path)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := loadConfig()
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("base-path") {
				cfg.Server.BasePath = basePath
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := app.Open(ctx, viper.GetString("workspace"), cfg, app.Options{WaitStructured: true})
			if err != nil {
				return err
			}
			defer rt.Close()
			if _, err := rt.Service.Load(ctx); err != nil {
				rt.Log.Warn("initial load failed", zap.Error(err))
			}
			handler, err := server.New(server.Config{
				Service:  rt.Service,
				BasePath: cfg.Server.BasePath,
				Auth:     server.AuthConfig{JWTSecret: cfg.Server.JWTSecret},
				Log:      rt.Log,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Serving Surveydesk API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs, live feed at %s/ws)\n",
				cfg.Server.Addr, cfg.Server.BasePath, cfg.Server.BasePath)
			return server.Run(ctx, cfg.Server.Addr, handler, rt.Log)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printResult(msg string) error {
	if viper.GetBool("json") {
		return printJSON(map[string]any{"ok": true, "message": msg})
	}
	fmt.Println(msg)
	return nil
}

// readInput reads a file, or stdin when path is "-".
func readInput(path string) ([]byte, error) {
	if path == "" {
		return nil, errors.New("--file required")
	}
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func decodeJSONFile(path string, dst any) error {
	data, err := readInput(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(bytes.TrimSpace(data), dst); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
