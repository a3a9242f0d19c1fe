package agentcli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/neuroplastio/neio-pad/padapi"
	"github.com/neuroplastio/neio-pad/pkg/agent"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "NEIO_PAD"

func Main(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) error {
	dir, err := os.UserConfigDir()
	if err != nil {
		return err
	}
	cmd := NewRootCmd(filepath.Join(dir, "neio-pad"))
	cmd.SetArgs(args)
	cmd.SetIn(in)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	return cmd.ExecuteContext(ctx)
}

type agentProvider func() *agent.Agent

func NewRootCmd(configDir string) *cobra.Command {
	v := viper.New()
	rootCmd := &cobra.Command{
		Use:   "neio-pad",
		Short: "Neuroplast.io game controller agent",
		Long: `neio-pad polls game controllers, normalizes their sticks and triggers and
publishes button, axis and position changes to subscribers.`,
		SilenceUsage: true,
	}
	var a *agent.Agent
	agentProvider := func() *agent.Agent {
		return a
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "boot config file (yaml, json or toml)")
	flags.String("data-dir", filepath.Join(configDir, "data"), "data directory")
	flags.String("tuning-config", filepath.Join(configDir, "tuning.yml"), "tuning config file")
	flags.String("backend", "sdl", "device backend (sdl, linux, virtual)")
	flags.String("backend-config", "", "backend config as JSON")
	flags.String("profile", "", "built-in profile name or path to a profile file")
	flags.IntSlice("controllers", []int{0}, "controller indexes to open")
	flags.Bool("open-all", false, "open every attached controller")
	flags.String("monitor-addr", "", "WebSocket monitor listen address, empty to disable")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations["agent"] == "none" {
			return nil
		}
		cfg, err := loadConfig(v, cmd)
		if err != nil {
			return err
		}
		a, err = agent.NewAgent(cfg)
		return err
	}
	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		if a == nil {
			return nil
		}
		return a.Close()
	}
	rootCmd.AddCommand(NewRun(agentProvider))
	rootCmd.AddCommand(NewListDevices(agentProvider))
	rootCmd.AddCommand(NewKnownDevices(agentProvider))
	rootCmd.AddCommand(NewWatch(agentProvider))
	rootCmd.AddCommand(NewProfiles())
	return rootCmd
}

// loadConfig merges flags, NEIO_PAD_* environment variables and the optional config
// file. Explicit flags win over the environment, which wins over the file.
func loadConfig(v *viper.Viper, cmd *cobra.Command) (agent.Config, error) {
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return agent.Config{}, err
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return agent.Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := agent.Config{
		DataDir:      v.GetString("data-dir"),
		TuningConfig: v.GetString("tuning-config"),
		Backend:      v.GetString("backend"),
		Profile:      v.GetString("profile"),
		Controllers:  v.GetIntSlice("controllers"),
		OpenAll:      v.GetBool("open-all"),
		MonitorAddr:  v.GetString("monitor-addr"),
	}
	if raw := v.GetString("backend-config"); raw != "" {
		if !json.Valid([]byte(raw)) {
			return agent.Config{}, fmt.Errorf("backend-config is not valid JSON")
		}
		cfg.BackendConfig = json.RawMessage(raw)
	}
	return cfg, nil
}

func NewRun(agent agentProvider) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the controller agent",
		Long:  `Open the configured controllers and poll them until interrupted.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return agent().Run(cmd.Context())
		},
	}
}

func NewListDevices(agent agentProvider) *cobra.Command {
	return &cobra.Command{
		Use:   "list-devices",
		Short: "List attached controllers",
		Long:  `List the controllers the selected backend can currently open.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := agent().Pads().ListDevices()
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), devices)
		},
	}
}

func NewKnownDevices(agent agentProvider) *cobra.Command {
	return &cobra.Command{
		Use:   "known-devices",
		Short: "List previously opened controllers",
		Long:  `List every controller this agent has opened, most recently seen first.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := agent().Pads().KnownDevices()
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), devices)
		},
	}
}

func NewProfiles() *cobra.Command {
	return &cobra.Command{
		Use:         "profiles",
		Short:       "List built-in controller profiles",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"agent": "none"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(cmd.OutOrStdout(), padapi.BuiltinProfileNames())
		},
	}
}

func printJSON(out io.Writer, v any) error {
	jsonB, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(jsonB))
	return err
}
