package client

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/rzbill/flolog/internal/cmd/client/transports"
	"github.com/spf13/cobra"
)

// NewLogCommand returns the `log` command group.
func NewLogCommand(baseURL BaseURLFunc) *cobra.Command {
	logCmd := &cobra.Command{
		Use:   "log",
		Short: "Log operations",
	}
	logCmd.AddCommand(newLogCreateCommand(baseURL))
	logCmd.AddCommand(newLogListCommand(baseURL))
	logCmd.AddCommand(newLogDeleteCommand(baseURL))
	logCmd.AddCommand(newLogAppendCommand(baseURL))
	logCmd.AddCommand(newLogTailCommand(baseURL))
	logCmd.AddCommand(newLogLagCommand(baseURL))
	logCmd.AddCommand(newLogGroupsCommand(baseURL))
	return logCmd
}

func newLogCreateCommand(baseURL BaseURLFunc) *cobra.Command {
	createCmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parts, _ := cmd.Flags().GetInt("partitions")
			created, err := newTransport(baseURL).Create(cmd.Context(), args[0], parts)
			if err != nil {
				return err
			}
			status := "created"
			if !created {
				status = "exists"
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "status:", status)
			return nil
		},
	}
	createCmd.Flags().IntP("partitions", "p", 0, "Partitions (0 = server default)")
	return createCmd
}

func newLogListCommand(baseURL BaseURLFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List logs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logs, err := newTransport(baseURL).List(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "NAME\tPARTITIONS")
			for _, l := range logs {
				_, _ = fmt.Fprintf(tw, "%s\t%d\n", l.Name, l.Partitions)
			}
			return tw.Flush()
		},
	}
}

func newLogDeleteCommand(baseURL BaseURLFunc) *cobra.Command {
	deleteCmd := &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a log and all its data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if ok, _ := cmd.Flags().GetBool("confirm"); !ok {
				return fmt.Errorf("refusing to delete %q without --confirm", args[0])
			}
			if err := newTransport(baseURL).Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "status:", "deleted")
			return nil
		},
	}
	deleteCmd.Flags().Bool("confirm", false, "Confirm deletion")
	return deleteCmd
}

func newLogAppendCommand(baseURL BaseURLFunc) *cobra.Command {
	appendCmd := &cobra.Command{
		Use:   "append NAME",
		Short: "Append a record",
		Long:  "Append a record. The payload comes from --data, or stdin when --data is not set.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, _ := cmd.Flags().GetString("data")
			key, _ := cmd.Flags().GetString("key")
			payload := []byte(data)
			if !cmd.Flags().Changed("data") {
				if cmd.InOrStdin() == os.Stdin && stdinIsTerminal() {
					return fmt.Errorf("no --data given and stdin is a terminal")
				}
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				payload = b
			}
			req := transports.AppendRequest{Log: args[0], Key: key, Payload: payload}
			if cmd.Flags().Changed("partition") {
				p, _ := cmd.Flags().GetInt("partition")
				req.Partition = &p
			}
			pos, err := newTransport(baseURL).Append(cmd.Context(), req)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d:%d\n", pos.Partition, pos.Offset)
			return nil
		},
	}
	appendCmd.Flags().String("data", "", "Record payload")
	appendCmd.Flags().String("key", "", "Partition key")
	appendCmd.Flags().Int("partition", 0, "Target partition (overrides --key)")
	return appendCmd
}

func newLogTailCommand(baseURL BaseURLFunc) *cobra.Command {
	tailCmd := &cobra.Command{
		Use:   "tail NAME",
		Short: "Tail a log as a consumer group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			group, _ := cmd.Flags().GetString("group")
			from, _ := cmd.Flags().GetString("from")
			commit, _ := cmd.Flags().GetBool("commit")
			limit, _ := cmd.Flags().GetInt("limit")
			expr, _ := cmd.Flags().GetString("filter")
			filter, err := newCELFilter(expr)
			if err != nil {
				return fmt.Errorf("invalid --filter: %w", err)
			}
			if group == "" {
				group = "flolog-cli-" + uuid.NewString()
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			printed := 0
			// the limit applies to printed records, the server one is unused
			// when a filter may drop records
			req := transports.TailRequest{Log: args[0], Group: group, From: from, Commit: commit}
			if expr == "" {
				req.Limit = limit
			}
			return newTransport(baseURL).Tail(cmd.Context(), req, func(rec transports.Record) error {
				if !filter.Eval(rec.Partition, rec.Offset, rec.Payload) {
					return nil
				}
				if err := enc.Encode(decodedMessage(rec.Partition, rec.Offset, rec.Payload)); err != nil {
					return err
				}
				printed++
				if limit > 0 && printed >= limit {
					return transports.ErrStopTail
				}
				return nil
			})
		},
	}
	tailCmd.Flags().StringP("group", "g", "", "Consumer group (default: a fresh group)")
	tailCmd.Flags().String("from", "committed", "Start position: committed|start|end")
	tailCmd.Flags().Bool("commit", false, "Commit after every record")
	tailCmd.Flags().Int("limit", 0, "Stop after N records (0 = infinite)")
	tailCmd.Flags().String("filter", "", "CEL filter over partition, offset, size, text, json, now_ms")
	return tailCmd
}

func newLogLagCommand(baseURL BaseURLFunc) *cobra.Command {
	lagCmd := &cobra.Command{
		Use:   "lag NAME",
		Short: "Show the lag of a consumer group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			group, _ := cmd.Flags().GetString("group")
			if group == "" {
				return fmt.Errorf("--group is required")
			}
			lag, err := newTransport(baseURL).Lag(cmd.Context(), args[0], group)
			if err != nil {
				return err
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(lag)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "PARTITION\tLOWER\tUPPER\tLAG")
			for _, p := range lag.Partitions {
				_, _ = fmt.Fprintf(tw, "%d\t%d\t%d\t%d\n", p.Partition, p.Lower, p.Upper, p.Lag)
			}
			_, _ = fmt.Fprintf(tw, "total\t%d\t%d\t%d\n", lag.Lower, lag.Upper, lag.Lag)
			return tw.Flush()
		},
	}
	lagCmd.Flags().StringP("group", "g", "", "Consumer group")
	lagCmd.Flags().Bool("json", false, "Print JSON")
	return lagCmd
}

func newLogGroupsCommand(baseURL BaseURLFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "groups NAME",
		Short: "List consumer groups with committed positions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			groups, err := newTransport(baseURL).Groups(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, g := range groups {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), g)
			}
			return nil
		},
	}
}

// stdinIsTerminal is used to avoid blocking on an interactive stdin.
func stdinIsTerminal() bool {
	fi, err := os.Stdin.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}
