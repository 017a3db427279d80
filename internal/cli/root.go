package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"quizroom-service/internal/config"
)

// flags holds persistent options that override the YAML config when set.
type flags struct {
	configPath string
	bind       string
	port       string
	storage    string
	verbose    bool
	profile    bool
}

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	v := viper.New()
	v.SetEnvPrefix("QUIZROOM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "quizroom",
		Short:         "Live multiplayer quiz rooms over REST and WebSocket",
		SilenceErrors: true,
		SilenceUsage:  true,
		Version:       releaseVersion,
	}

	fs := cmd.PersistentFlags()
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	fs.StringVarP(&f.configPath, "config", "c", "config/config.yaml", "path to YAML config (env: QUIZROOM_CONFIG)")
	fs.StringVarP(&f.bind, "bind", "b", "", "address to bind to (env: QUIZROOM_BIND)")
	fs.StringVarP(&f.port, "port", "p", "", "port to listen on (env: QUIZROOM_PORT)")
	fs.StringVar(&f.storage, "storage", "", "room store: memory, redis, postgres or sqlite (env: QUIZROOM_STORAGE)")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "display additional output (env: QUIZROOM_VERBOSE)")
	fs.BoolVar(&f.profile, "profile", false, "register net/http/pprof handlers (env: QUIZROOM_PROFILE)")

	// Environment values fill in any flag not given on the command line.
	fs.VisitAll(func(fl *pflag.Flag) {
		_ = v.BindPFlag(fl.Name, fl)
		_ = v.BindEnv(fl.Name)
		if !fl.Changed && v.IsSet(fl.Name) {
			_ = fs.Set(fl.Name, fmt.Sprintf("%v", v.Get(fl.Name)))
		}
	})

	cmd.AddCommand(newStartCmd(f))
	cmd.AddCommand(newMigrateCmd(f))
	cmd.AddCommand(newParseCmd(f))
	cmd.AddCommand(newVersionCmd())

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetVersionTemplate("quizroom v{{.Version}}\n")
	return cmd
}

// load reads the YAML config and applies flag and environment overrides on top.
func (f *flags) load() (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return cfg, err
	}
	if f.bind != "" {
		cfg.Server.Bind = f.bind
	}
	if f.port != "" {
		cfg.Server.Port = f.port
	}
	if f.storage != "" {
		cfg.Storage.Driver = f.storage
	}
	cfg.Server.Verbose = cfg.Server.Verbose || f.verbose
	cfg.Server.Profile = cfg.Server.Profile || f.profile
	return cfg, cfg.Validate()
}
