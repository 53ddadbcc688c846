package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/spf13/cobra"

	"rds-cold-storage/coldstorage"
)

type lambdaInvoker interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

func newInvokeCommand(flags *globalFlags) *cobra.Command {
	var functionName string

	cmd := &cobra.Command{
		Use:       "invoke exporter|checker",
		Short:     "Invoke a deployed Lambda synchronously and print its messages",
		ValidArgs: []string{"exporter", "checker"},
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := flags.newLogger()
			defer func() { _ = log.Sync() }()

			cfg, err := flags.awsConfig(ctx)
			if err != nil {
				return err
			}

			payload, err := invokePayload(args[0], time.Now())
			if err != nil {
				return err
			}

			log.Debugw("invoking lambda", "function", functionName, "kind", args[0])
			resp, err := invokeFunction(ctx, lambda.NewFromConfig(cfg), functionName, payload)
			if err != nil {
				return err
			}

			printMessages(cmd.OutOrStdout(), resp)
			return nil
		},
	}

	cmd.Flags().StringVarP(&functionName, "function", "f", "", "Name or ARN of the deployed function")
	_ = cmd.MarkFlagRequired("function")

	return cmd
}

// invokePayload mimics what each function normally receives: a scheduled event for the exporter and
// an empty object for the checker.
func invokePayload(kind string, now time.Time) ([]byte, error) {
	if kind != "exporter" {
		return []byte("{}"), nil
	}

	payload, err := json.Marshal(events.CloudWatchEvent{
		Version:    "0",
		DetailType: "Scheduled Event",
		Source:     "coldstorage-ctl",
		Time:       now.UTC(),
		Detail:     json.RawMessage("{}"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal invoke payload: %w", err)
	}
	return payload, nil
}

func invokeFunction(ctx context.Context, client lambdaInvoker, functionName string, payload []byte) (coldstorage.Response, error) {
	out, err := client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(functionName),
		InvocationType: types.InvocationTypeRequestResponse,
		Payload:        payload,
	})
	if err != nil {
		return coldstorage.Response{}, fmt.Errorf("failed to invoke %s: %w", functionName, err)
	}
	if out.FunctionError != nil {
		return coldstorage.Response{}, fmt.Errorf("%s returned %s: %s", functionName, aws.ToString(out.FunctionError), out.Payload)
	}

	var resp coldstorage.Response
	if err := json.Unmarshal(out.Payload, &resp); err != nil {
		return coldstorage.Response{}, fmt.Errorf("failed to parse response from %s: %w", functionName, err)
	}
	return resp, nil
}

func printMessages(w io.Writer, resp coldstorage.Response) {
	for _, message := range resp.Body.Message {
		fmt.Fprintln(w, message)
	}
}
