// Package configcmder provides the config command for managing persistent
// recall configuration stored in the .recall/ directory.
package configcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/recall/pkg/cliui"
	"github.com/papercomputeco/recall/pkg/config"
)

const configLongDesc string = `Manage persistent recall configuration.

Configuration is stored as config.toml in the .recall/ directory and
provides default values for command flags. Resolution order is
flag > RECALL_* environment variable > config.toml > built-in default.

Keys use dotted notation matching the TOML section structure:
  store.root, store.audit_events,
  retrieval.default_limit, retrieval.scorer, cache.freshness,
  vector_store.provider, vector_store.target, vector_store.collection,
  embedding.provider, embedding.target, embedding.model, embedding.dimensions,
  eventstream.provider, eventstream.brokers, eventstream.topic,
  api.listen, ingest.workers, ingest.queue_size

Examples:
  recall config set retrieval.scorer semantic
  recall config set eventstream.brokers localhost:9092
  recall config get cache.freshness
  recall config list --resolved`

const configShortDesc string = "Manage persistent recall configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func checkKey(key string) error {
	if !config.IsValidConfigKey(key) {
		return fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
			key, strings.Join(config.ValidConfigKeys(), ", "))
	}
	return nil
}

func newSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "set <key> <value>",
		Short:             "Set a configuration value",
		Args:              cobra.ExactArgs(2),
		ValidArgsFunction: completeKeys,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]
			if err := checkKey(key); err != nil {
				return err
			}

			cfger, err := configer(cmd)
			if err != nil {
				return err
			}
			if err := cfger.SetConfigValue(key, value); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printTarget(out, cfger)
			fmt.Fprintf(out, "  %s Set %s = %s\n\n",
				cliui.SuccessMark,
				cliui.KeyStyle.Render(key),
				cliui.ValueStyle.Render(value),
			)
			return nil
		},
	}
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "get <key>",
		Short:             "Get a configuration value from config.toml",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeKeys,
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if err := checkKey(key); err != nil {
				return err
			}

			cfger, err := configer(cmd)
			if err != nil {
				return err
			}
			value, err := cfger.GetConfigValue(key)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printTarget(out, cfger)
			cliui.KeyValue(out, key, len(key), value)
			fmt.Fprintln(out)
			return nil
		},
	}
}

func newListCmd() *cobra.Command {
	var resolved bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all configuration values",
		Long: `List all configuration keys and their values in config.toml.

With --resolved the values are shown after applying RECALL_* environment
variables and built-in defaults.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfger, err := configer(cmd)
			if err != nil {
				return err
			}

			get := cfger.GetConfigValue
			if resolved {
				configDir, _ := cmd.Flags().GetString("config-dir")
				v, err := config.InitViper(configDir)
				if err != nil {
					return err
				}
				get = func(key string) (string, error) {
					if key == "eventstream.brokers" {
						return strings.Join(v.GetStringSlice(key), ","), nil
					}
					return v.GetString(key), nil
				}
			}

			keys := config.ValidConfigKeys()
			width := 0
			for _, k := range keys {
				width = max(width, len(k))
			}

			out := cmd.OutOrStdout()
			printTarget(out, cfger)
			for _, key := range keys {
				value, err := get(key)
				if err != nil {
					return err
				}
				cliui.KeyValue(out, key, width, value)
			}
			fmt.Fprintln(out)
			return nil
		},
	}

	cmd.Flags().BoolVar(&resolved, "resolved", false, "Show values after environment variables and defaults")

	return cmd
}

func configer(cmd *cobra.Command) (*config.Configer, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")
	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfger, nil
}

func printTarget(out io.Writer, cfger *config.Configer) {
	if target := cfger.GetTarget(); target != "" {
		fmt.Fprintf(out, "\n  %s %s\n\n",
			cliui.KeyStyle.Render("Config file:"),
			cliui.DimStyle.Render(target),
		)
		return
	}
	fmt.Fprintf(out, "\n  %s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
}
