// Package cli implements the partnergate operator command line.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultAddr = "http://localhost:8080"

// NewRootCmd builds the command tree. Each call gets its own viper instance.
func NewRootCmd(stdout, stderr io.Writer) *cobra.Command {
	v := viper.New()
	var cfgFile string

	root := &cobra.Command{
		Use:   "partnergate",
		Short: "Partner data validation and moderation",
		Long: `partnergate validates partner datasets against data contracts and drives
submissions through review, QA signoff and publication.

Configuration hierarchy (highest to lowest priority):
1. CLI flags
2. Environment variables (PARTNERGATE_*)
3. Config file (~/.partnergate/config.yaml)
4. Defaults`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(v, cfgFile)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.partnergate/config.yaml)")
	root.PersistentFlags().String("addr", defaultAddr, "partnergate API address")
	root.PersistentFlags().String("token", "", "bearer token")
	_ = v.BindPFlag("addr", root.PersistentFlags().Lookup("addr"))
	_ = v.BindPFlag("token", root.PersistentFlags().Lookup("token"))

	root.AddCommand(
		newValidateCmd(v),
		newSubmitCmd(v),
		newSubmissionsCmd(v),
		newQueueCmd(v),
		newStatsCmd(v),
		newReviewCmd(v),
		newSignoffCmd(v),
		newEvidenceCmd(v),
		newPublishCmd(v),
		newRejectCmd(v),
		newPolicyCmd(v),
		newAuditCmd(v),
	)
	return root
}

// Execute runs the CLI against os.Args and returns the process exit code.
func Execute() int {
	root := NewRootCmd(os.Stdout, os.Stderr)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

func initConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".partnergate"))
		v.SetConfigType("yaml")
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("PARTNERGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}
