// Command tmengine-server serves the translation memory over gRPC and HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/dasmlab/tmengine/pkg/config"
)

var cfgFile string

func newRootCmd(v *viper.Viper) *cobra.Command {
	root := &cobra.Command{
		Use:           "tmengine-server",
		Short:         "Sentence-level translation memory server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return config.InitViper(v, cfgFile)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.tmengine.yaml)")
	flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.String("log-format", "text", "Log format: text or json")
	flags.String("store-path", "tmengine.db", "Path of the SQLite translation store")
	flags.String("mt-engine", "libretranslate", "Fallback engine: libretranslate, argos, openai or none")
	flags.String("mt-url", "", "Base URL of the fallback engine API")
	bindFlags(v, flags, map[string]string{
		"log-level":  "log.level",
		"log-format": "log.format",
		"store-path": "store.path",
		"mt-engine":  "fallback.engine",
		"mt-url":     "fallback.url",
	})

	root.AddCommand(newServeCmd(v), newImportCmd(v))
	return root
}

// bindFlags binds each flag to its config key so flags override file and
// environment values.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for name, key := range keys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
}

func main() {
	if err := newRootCmd(viper.New()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
