// analyzerctl is the operator CLI for analyzerd, grounded on
// ChuLiYu-raft-recovery/internal/cli/cli.go's builder-function + RunE
// command structure.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	server       string
	organization string
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "analyzerctl",
		Short: "Operator CLI for analyzerd",
		Long:  "analyzerctl submits analyzer jobs and queries their results against a running analyzerd instance.",
	}

	root.PersistentFlags().StringVar(&server, "server", "http://localhost:8080", "analyzerd base URL")
	root.PersistentFlags().StringVar(&organization, "organization", "", "requesting organisation")
	root.MarkPersistentFlagRequired("organization")

	root.AddCommand(buildSubmitCommand())
	root.AddCommand(buildGetCommand())
	root.AddCommand(buildListCommand())
	root.AddCommand(buildReportCommand())
	root.AddCommand(buildArtifactsCommand())

	return root
}

func buildSubmitCommand() *cobra.Command {
	var dataType, data, analyzerID string
	var tlp int
	var force bool

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit an observable to an analyzer",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewAPIClient(server, organization)
			payload := map[string]any{
				"dataType": dataType,
				"data":     data,
				"tlp":      tlp,
				"force":    force,
			}
			job, err := client.Submit(context.Background(), analyzerID, payload)
			if err != nil {
				return err
			}
			return printJSON(job)
		},
	}

	cmd.Flags().StringVar(&analyzerID, "analyzer", "", "analyzer id")
	cmd.Flags().StringVar(&dataType, "data-type", "", "observable data type")
	cmd.Flags().StringVar(&data, "data", "", "observable value")
	cmd.Flags().IntVar(&tlp, "tlp", 2, "traffic light protocol level")
	cmd.Flags().BoolVar(&force, "force", false, "bypass the similar-job cache")
	cmd.MarkFlagRequired("analyzer")
	cmd.MarkFlagRequired("data-type")
	cmd.MarkFlagRequired("data")

	return cmd
}

func buildGetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <job-id>",
		Short: "Get a job by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewAPIClient(server, organization)
			job, err := client.GetJob(context.Background(), args[0])
			if err != nil {
				return err
			}
			return printJSON(job)
		},
	}
	return cmd
}

func buildListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs for the organisation",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewAPIClient(server, organization)
			list, err := client.ListJobs(context.Background())
			if err != nil {
				return err
			}
			return printJSON(list)
		},
	}
	return cmd
}

func buildReportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report <job-id>",
		Short: "Get a job's report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewAPIClient(server, organization)
			report, err := client.GetReport(context.Background(), args[0])
			if err != nil {
				return err
			}
			return printJSON(report)
		},
	}
	return cmd
}

func buildArtifactsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "artifacts <job-id>",
		Short: "List a job's extracted artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewAPIClient(server, organization)
			artifacts, err := client.FindArtifacts(context.Background(), args[0])
			if err != nil {
				return err
			}
			return printJSON(artifacts)
		},
	}
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
