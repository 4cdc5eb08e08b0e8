package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/viant/warden"
	"github.com/viant/warden/model/permission"
	"github.com/viant/warden/model/request"
	"github.com/viant/warden/service/approval"
	"github.com/viant/warden/service/audit"
	"gopkg.in/yaml.v3"
)

// parseParameters converts key=value arguments; values are decoded as YAML scalars.
func parseParameters(args []string) (request.Parameters, error) {
	var ret request.Parameters
	for _, arg := range args {
		name, text, ok := strings.Cut(arg, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", arg)
		}
		ret = append(ret, &request.Parameter{Name: strings.TrimSpace(name), Value: scalar(text)})
	}
	return ret, nil
}

func scalar(text string) interface{} {
	var value interface{}
	if err := yaml.Unmarshal([]byte(text), &value); err != nil {
		return text
	}
	switch value.(type) {
	case string, bool, int, float64:
		return value
	}
	return text
}

func submitCmd() *cobra.Command {
	var requester, description string
	cmd := &cobra.Command{
		Use:   "submit KIND [key=value...]",
		Short: "Submit an operation request",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParameters(args[1:])
			if err != nil {
				return err
			}
			return withService(cmd.Context(), inline, func(ctx context.Context, srv *warden.Service) error {
				req, err := srv.Approval().Submit(ctx, args[0], params, requester, approval.WithDescription(description))
				if err != nil {
					return err
				}
				if req.Status == request.StatusPending {
					analysis, err := srv.Analysis(ctx, req.ID)
					if err != nil {
						return err
					}
					_, _ = fmt.Fprintln(cmd.ErrOrStderr(), analysis)
				}
				return printJSON(cmd, req)
			})
		},
	}
	cmd.Flags().StringVar(&requester, "requester", "cli", "identity of the submitting component")
	cmd.Flags().StringVar(&description, "description", "", "free text describing the operation")
	return cmd
}

func decideCmd() *cobra.Command {
	var decidedBy, reason string
	var conditions []string
	cmd := &cobra.Command{
		Use:   "decide ID approve|deny",
		Short: "Approve or deny a pending request",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			verdict, err := request.ParseVerdict(args[1])
			if err != nil {
				return err
			}
			return withService(cmd.Context(), inline, func(ctx context.Context, srv *warden.Service) error {
				req, err := srv.Approval().Decide(ctx, args[0], verdict, decidedBy, reason, conditions...)
				if err != nil && req == nil {
					return err
				}
				if pErr := printJSON(cmd, req); pErr != nil {
					return pErr
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&decidedBy, "by", "", "identity of the decider")
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded with the decision")
	cmd.Flags().StringArrayVar(&conditions, "condition", nil, "approval condition: 'single use', 'valid for <duration>' or 'param <constraint>'")
	_ = cmd.MarkFlagRequired("by")
	return cmd
}

func getCmd() *cobra.Command {
	var analysis bool
	cmd := &cobra.Command{
		Use:   "get ID",
		Short: "Show a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), inline, func(ctx context.Context, srv *warden.Service) error {
				if analysis {
					text, err := srv.Analysis(ctx, args[0])
					if err != nil {
						return err
					}
					_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
					return err
				}
				req, err := srv.Approval().Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, req)
			})
		},
	}
	cmd.Flags().BoolVar(&analysis, "analysis", false, "render the risk analysis instead of JSON")
	return cmd
}

func pendingCmd() *cobra.Command {
	var kinds []string
	var requester, maxRisk string
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List pending requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var filters []approval.PendingFilter
			if len(kinds) > 0 {
				filters = append(filters, approval.WithKind(kinds...))
			}
			if requester != "" {
				filters = append(filters, approval.WithRequester(requester))
			}
			if maxRisk != "" {
				risk, err := permission.ParseRisk(maxRisk)
				if err != nil {
					return err
				}
				filters = append(filters, approval.WithMaxRisk(risk))
			}
			return withService(cmd.Context(), inline, func(ctx context.Context, srv *warden.Service) error {
				pending, err := approval.ListPending(ctx, srv.Approval(), filters...)
				if err != nil {
					return err
				}
				if pending == nil {
					pending = []*request.OperationRequest{}
				}
				return printJSON(cmd, pending)
			})
		},
	}
	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "keep only these kinds")
	cmd.Flags().StringVar(&requester, "requester", "", "keep only this requester")
	cmd.Flags().StringVar(&maxRisk, "max-risk", "", "keep requests at or below this risk")
	return cmd
}

func trailCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trail ID",
		Short: "Show the audit trail of a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), inline, func(ctx context.Context, srv *warden.Service) error {
				records, err := srv.Approval().AuditTrail(ctx, args[0])
				if err != nil {
					return err
				}
				for _, record := range records {
					if _, err = fmt.Fprintf(cmd.OutOrStdout(), "%3d %v %-18v %-13v %-10v %v\n",
						record.Seq, record.Time.Format(time.RFC3339), record.Event, record.To, record.Actor, record.Message); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify ID",
		Short: "Verify the hash chain of a request trail and replay its status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), inline, func(ctx context.Context, srv *warden.Service) error {
				records, err := srv.Approval().AuditTrail(ctx, args[0])
				if err != nil {
					return err
				}
				if err = audit.Verify(records); err != nil {
					return err
				}
				status, err := audit.Replay(records)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "ok: %d records, replayed status %v\n", len(records), status)
				return err
			})
		},
	}
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire overdue pending requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), inline, func(ctx context.Context, srv *warden.Service) error {
				count, err := srv.Approval().Sweep(ctx)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "expired %d requests\n", count)
				return err
			})
		},
	}
}

func recoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Reconcile the request table with the audit trail after a restart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), inline, func(ctx context.Context, srv *warden.Service) error {
				recovery, err := srv.Approval().Recover(ctx)
				if recovery != nil {
					if pErr := printJSON(cmd, recovery); pErr != nil {
						return pErr
					}
				}
				return err
			})
		},
	}
}

func reportCmd() *cobra.Command {
	var summary bool
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show pending requests and active rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), inline, func(ctx context.Context, srv *warden.Service) error {
				text, err := srv.Report(ctx)
				if err != nil {
					return err
				}
				if summary {
					audited, err := srv.Summary(ctx)
					if err != nil {
						return err
					}
					text += "\n" + audited
				}
				_, err = fmt.Fprint(cmd.OutOrStdout(), text)
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&summary, "summary", false, "append the audit summary")
	return cmd
}

func exportCmd() *cobra.Command {
	var format, requestID, since, until string
	var events []string
	var limit int
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export audit records as json or csv",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var filters []audit.Filter
			if requestID != "" {
				filters = append(filters, audit.WithRequestID(requestID))
			}
			for _, ev := range events {
				filters = append(filters, audit.WithEvent(audit.Event(ev)))
			}
			for _, bound := range []struct {
				text  string
				apply func(time.Time) audit.Filter
			}{{since, audit.WithSince}, {until, audit.WithUntil}} {
				if bound.text == "" {
					continue
				}
				at, err := time.Parse(time.RFC3339, bound.text)
				if err != nil {
					return fmt.Errorf("invalid time %q: %w", bound.text, err)
				}
				filters = append(filters, bound.apply(at))
			}
			if limit > 0 {
				filters = append(filters, audit.WithLimit(limit))
			}
			return withService(cmd.Context(), inline, func(ctx context.Context, srv *warden.Service) error {
				records, err := srv.Audit().List(ctx, filters...)
				if err != nil {
					return err
				}
				return audit.Export(cmd.OutOrStdout(), records, format)
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", audit.FormatJSON, "json or csv")
	cmd.Flags().StringVar(&requestID, "request-id", "", "only records of this request")
	cmd.Flags().StringArrayVar(&events, "event", nil, "only records of this event")
	cmd.Flags().StringVar(&since, "since", "", "RFC3339 lower time bound")
	cmd.Flags().StringVar(&until, "until", "", "RFC3339 upper time bound")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of records")
	return cmd
}

func kindsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List operation kinds with their classification and executor input",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), inline, func(ctx context.Context, srv *warden.Service) error {
				inputs := map[string]string{}
				if registry := srv.Registry(); registry != nil {
					for _, description := range registry.Describe() {
						inputs[description.Kind] = strings.Join(description.Fields, ",")
					}
				}
				out := cmd.OutOrStdout()
				for _, item := range srv.Classifications() {
					input, ok := inputs[item.Kind]
					if !ok {
						input = "(no executor)"
					}
					if _, err := fmt.Fprintf(out, "%-16v %-8v %-9v %v\n", item.Kind, item.Permission, item.Risk, input); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}
