package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rds-cold-storage/logger"
)

type globalFlags struct {
	region   string
	profile  string
	logLevel string
}

func (g *globalFlags) awsConfig(ctx context.Context) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error
	if g.region != "" {
		opts = append(opts, config.WithRegion(g.region))
	}
	if g.profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(g.profile))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func (g *globalFlags) newLogger() *zap.SugaredLogger {
	return logger.New(g.logLevel)
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "coldstorage-ctl",
		Short: "Operate the RDS snapshot cold storage Lambdas",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cmd.SilenceUsage = true
		},
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&flags.region, "region", "", "AWS region, defaults to the shared config")
	rootCmd.PersistentFlags().StringVar(&flags.profile, "profile", "", "AWS shared config profile")
	rootCmd.PersistentFlags().StringVarP(&flags.logLevel, "log-level", "l", "warn", "The logging level, e.g. 'debug', 'info', 'error'")

	rootCmd.AddCommand(newInvokeCommand(flags))
	rootCmd.AddCommand(newTrackedCommand(flags))

	return rootCmd
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
