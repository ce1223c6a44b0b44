package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/netreplay/tcpprep/internal/config"
	"github.com/netreplay/tcpprep/internal/logging"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "tcpprep",
	Short: "Classify captured packets for a replay tool",
	Long: `tcpprep preprocesses a pcap capture into a binary decision cache:
for every frame it decides whether a replay tool should send it, and to
which side of the replay (primary or secondary), across one of four
classification modes.`,
	RunE:          wrapCancellationContext(runEntrypoint),
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.Flags()
	flags.Bool(keyAuto, false, "classify by learning client/server roles from a first pass (AUTO mode)")
	flags.String(keyAutoType, "bridge", `AUTO sub-mode: "bridge", "router", "client", or "server"`)
	flags.String(keyCIDR, "", "comma-separated CIDR list; sources inside it are secondary (CIDR mode)")
	flags.Bool(keyPort, false, "classify by destination port against the service-port table (PORT mode)")
	flags.String(keyRegex, "", "regular expression over the source address; a match is secondary (REGEX mode)")
	flags.String(keyInput, "", "input pcap file (required)")
	flags.String(keyOutput, "", "output cache file (required)")
	flags.Float64(keyRatio, 0, "AUTO mode client/server ratio threshold (default 2.0)")
	flags.Int(keyMinMask, 0, "AUTO/ROUTER minimum aggregated prefix length (default 1)")
	flags.Int(keyMaxMask, 0, "AUTO/ROUTER maximum aggregated prefix length (default 32)")
	flags.String(keyNonIP, "client", `side assigned to non-IPv4 frames: "client" or "server"`)
	flags.String(keyServices, "", "services(5)-format file overriding the default server-port ranges")
	flags.String(keyComment, "", "comment stored in the cache file header")
	flags.String(keyPrintCmt, "", "print the comment stored in an existing cache file and exit")
	flags.String(keyInclude, "", "include filter spec: P:ranges | S:cidrs | D:cidrs | B:cidrs | F:bpf-expr")
	flags.String(keyExclude, "", "exclude filter spec, same syntax as --include")
	flags.String(keyStats, "", "write a JSON run summary to this file")
	flags.String(keyLogFormat, "json", `log output format: "text" or "json"`)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML file providing defaults for any flag above")

	_ = viper.BindPFlags(flags)
}

func initConfig() {
	if cfgFile == "" {
		return
	}
	raw, err := os.ReadFile(cfgFile)
	if err != nil {
		return
	}
	var profile map[string]any
	if err := yaml.Unmarshal(raw, &profile); err != nil {
		return
	}
	for k, v := range profile {
		if !viper.IsSet(k) {
			viper.Set(k, v)
		}
	}
}

// wrapCancellationContext adapts a context-aware RunE, passing it a
// context that is canceled on SIGINT/SIGTERM. The classification pass
// loop does not check that context, so a run is not cut short by it.
func wrapCancellationContext(fn func(ctx context.Context, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return fn(ctx, cmd, args)
	}
}

func rawFromViper() config.Raw {
	return config.Raw{
		Auto:      viper.GetBool(keyAuto),
		AutoType:  viper.GetString(keyAutoType),
		CIDRList:  viper.GetString(keyCIDR),
		Port:      viper.GetBool(keyPort),
		RegexPat:  viper.GetString(keyRegex),
		Input:     viper.GetString(keyInput),
		Output:    viper.GetString(keyOutput),
		Ratio:     viper.GetFloat64(keyRatio),
		MinMask:   viper.GetInt(keyMinMask),
		MaxMask:   viper.GetInt(keyMaxMask),
		NonIP:     viper.GetString(keyNonIP),
		Services:  viper.GetString(keyServices),
		Comment:   viper.GetString(keyComment),
		PrintCmt:  viper.GetString(keyPrintCmt),
		Include:   viper.GetString(keyInclude),
		Exclude:   viper.GetString(keyExclude),
		StatsFile: viper.GetString(keyStats),
		LogFormat: viper.GetString(keyLogFormat),
	}
}

func runEntrypoint(ctx context.Context, cmd *cobra.Command, _ []string) error {
	cfg, err := config.Validate(rawFromViper())
	if err != nil {
		return err
	}

	logging.SetFormat(cfg.LogFormat, cmd.ErrOrStderr())
	ctx = logging.NewContext(ctx, "component", "tcpprep")

	if cfg.PrintCommentFile != "" {
		return runPrintComment(cfg)
	}
	return runClassify(ctx, cfg)
}
