package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/spf13/cobra"

	"rds-cold-storage/coldstorage"
)

func newTrackedCommand(flags *globalFlags) *cobra.Command {
	var tableName string

	cmd := &cobra.Command{
		Use:   "tracked",
		Short: "List the export tasks the Task-Checker is watching",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := flags.newLogger()
			defer func() { _ = log.Sync() }()

			cfg, err := flags.awsConfig(ctx)
			if err != nil {
				return err
			}

			log.Debugw("scanning tracking table", "table", tableName)
			records, err := coldstorage.NewTrackingStore(dynamodb.NewFromConfig(cfg), tableName).Scan(ctx)
			if err != nil {
				return err
			}

			return printRecords(cmd.OutOrStdout(), records)
		},
	}

	cmd.Flags().StringVarP(&tableName, "table", "t", "", "Tracking table name")
	_ = cmd.MarkFlagRequired("table")

	return cmd
}

func printRecords(w io.Writer, records []coldstorage.ExportTaskRecord) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No export tasks are being tracked")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "EXPORT TASK ID\tSOURCE ARN")
	for _, record := range records {
		fmt.Fprintf(tw, "%s\t%s\n", record.ExportTaskID, record.SourceArn)
	}
	return tw.Flush()
}
