package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/davidahmann/partnergate/pkg/types"
)

// remote wraps a request builder into a RunE that prints the JSON response.
func remote(v *viper.Viper, build func(cmd *cobra.Command, args []string) (method, path string, query url.Values, body any, err error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		method, path, query, body, err := build(cmd, args)
		if err != nil {
			return err
		}
		resp, err := newClient(v).do(cmd.Context(), method, path, query, body)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), resp)
	}
}

func queuePath(id, action string) string {
	return "/v1/queue/" + url.PathEscape(id) + "/" + action
}

func newSubmitCmd(v *viper.Viper) *cobra.Command {
	var contractID, title, description, source, dataPath string
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a dataset and start its moderation workflow",
		Args:  cobra.NoArgs,
		RunE: remote(v, func(*cobra.Command, []string) (string, string, url.Values, any, error) {
			// #nosec G304 -- operator-supplied input file.
			raw, err := os.ReadFile(dataPath)
			if err != nil {
				return "", "", nil, nil, err
			}
			if !json.Valid(raw) {
				return "", "", nil, nil, fmt.Errorf("%s is not valid JSON", dataPath)
			}
			body := map[string]any{
				"contract_id":        contractID,
				"title":              title,
				"description":        description,
				"source_description": source,
				"data":               json.RawMessage(raw),
			}
			return http.MethodPost, "/v1/submissions", nil, body, nil
		}),
	}
	cmd.Flags().StringVar(&contractID, "contract-id", "", "data contract id")
	cmd.Flags().StringVar(&title, "title", "", "submission title")
	cmd.Flags().StringVar(&description, "description", "", "free-text description")
	cmd.Flags().StringVar(&source, "source", "", "source description")
	cmd.Flags().StringVar(&dataPath, "data", "", "submission data JSON file")
	_ = cmd.MarkFlagRequired("contract-id")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func newQueueCmd(v *viper.Viper) *cobra.Command {
	var status, lane string
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "queue [queue_id]",
		Short: "List the moderation queue, or show one entry",
		Args:  cobra.MaximumNArgs(1),
		RunE: remote(v, func(_ *cobra.Command, args []string) (string, string, url.Values, any, error) {
			if len(args) == 1 {
				return http.MethodGet, "/v1/queue/" + url.PathEscape(args[0]), nil, nil, nil
			}
			q := url.Values{}
			if status != "" {
				q.Set("status", status)
			}
			if lane != "" {
				q.Set("lane", lane)
			}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			if offset > 0 {
				q.Set("offset", strconv.Itoa(offset))
			}
			return http.MethodGet, "/v1/queue", q, nil, nil
		}),
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().StringVar(&lane, "lane", "", "filter by publishing lane")
	cmd.Flags().IntVar(&limit, "limit", 0, "page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "page offset")
	return cmd
}

func newSubmissionsCmd(v *viper.Viper) *cobra.Command {
	var submittedBy, status string
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "submissions",
		Short: "List your submissions, newest first",
		Args:  cobra.NoArgs,
		RunE: remote(v, func(*cobra.Command, []string) (string, string, url.Values, any, error) {
			q := url.Values{}
			if submittedBy != "" {
				q.Set("submitted_by", submittedBy)
			}
			if status != "" {
				q.Set("status", status)
			}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			if offset > 0 {
				q.Set("offset", strconv.Itoa(offset))
			}
			return http.MethodGet, "/v1/submissions", q, nil, nil
		}),
	}
	cmd.Flags().StringVar(&submittedBy, "submitted-by", "", "partner id (reviewers only)")
	cmd.Flags().StringVar(&status, "status", "", "filter by submission status")
	cmd.Flags().IntVar(&limit, "limit", 0, "page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "page offset")
	return cmd
}

func newStatsCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show queue counts by status and lane",
		Args:  cobra.NoArgs,
		RunE: remote(v, func(*cobra.Command, []string) (string, string, url.Values, any, error) {
			return http.MethodGet, "/v1/queue/stats", nil, nil, nil
		}),
	}
}

func newReviewCmd(v *viper.Viper) *cobra.Command {
	var status, lane, notes, reason string
	cmd := &cobra.Command{
		Use:   "review <queue_id>",
		Short: "Record a reviewer decision",
		Args:  cobra.ExactArgs(1),
		RunE: remote(v, func(_ *cobra.Command, args []string) (string, string, url.Values, any, error) {
			body := types.ReviewDecision{
				Status:          types.QueueStatus(status),
				Lane:            types.PublishingLane(lane),
				Notes:           notes,
				RejectionReason: reason,
			}
			return http.MethodPost, queuePath(args[0], "review"), nil, body, nil
		}),
	}
	cmd.Flags().StringVar(&status, "status", "", "approved_restricted, approved_public_aggregate, rejected or quarantined")
	cmd.Flags().StringVar(&lane, "lane", "", "publishing lane (optional, implied by status)")
	cmd.Flags().StringVar(&notes, "notes", "", "review notes")
	cmd.Flags().StringVar(&reason, "reason", "", "rejection reason")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func newSignoffCmd(v *viper.Viper) *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:   "signoff <queue_id>",
		Short: "Record QA signoff for public-lane release",
		Args:  cobra.ExactArgs(1),
		RunE: remote(v, func(_ *cobra.Command, args []string) (string, string, url.Values, any, error) {
			return http.MethodPost, queuePath(args[0], "qa-signoff"), nil, map[string]string{"notes": notes}, nil
		}),
	}
	cmd.Flags().StringVar(&notes, "notes", "", "QA notes")
	return cmd
}

func newEvidenceCmd(v *viper.Viper) *cobra.Command {
	var coverage int
	var pack string
	cmd := &cobra.Command{
		Use:   "evidence <queue_id>",
		Short: "Update evidence coverage for an entry",
		Args:  cobra.ExactArgs(1),
		RunE: remote(v, func(_ *cobra.Command, args []string) (string, string, url.Values, any, error) {
			body := map[string]any{"evidence_coverage": coverage, "evidence_pack_id": pack}
			return http.MethodPost, queuePath(args[0], "evidence"), nil, body, nil
		}),
	}
	cmd.Flags().IntVar(&coverage, "coverage", 0, "evidence coverage percentage (0-100)")
	cmd.Flags().StringVar(&pack, "pack", "", "evidence pack id")
	_ = cmd.MarkFlagRequired("coverage")
	return cmd
}

func newPublishCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "publish <queue_id>",
		Short: "Publish an approved entry",
		Args:  cobra.ExactArgs(1),
		RunE: remote(v, func(_ *cobra.Command, args []string) (string, string, url.Values, any, error) {
			return http.MethodPost, queuePath(args[0], "publish"), nil, nil, nil
		}),
	}
}

func newRejectCmd(v *viper.Viper) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "reject <queue_id>",
		Short: "Reject an entry that has not reached a terminal state",
		Args:  cobra.ExactArgs(1),
		RunE: remote(v, func(_ *cobra.Command, args []string) (string, string, url.Values, any, error) {
			return http.MethodPost, queuePath(args[0], "reject"), nil, map[string]string{"reason": reason}, nil
		}),
	}
	cmd.Flags().StringVar(&reason, "reason", "", "rejection reason")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func newPolicyCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Read or update governance policies",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List governance policies",
			Args:  cobra.NoArgs,
			RunE: remote(v, func(*cobra.Command, []string) (string, string, url.Values, any, error) {
				return http.MethodGet, "/v1/policies", nil, nil, nil
			}),
		},
		&cobra.Command{
			Use:   "get <key>",
			Short: "Show one governance policy",
			Args:  cobra.ExactArgs(1),
			RunE: remote(v, func(_ *cobra.Command, args []string) (string, string, url.Values, any, error) {
				return http.MethodGet, "/v1/policies/" + url.PathEscape(args[0]), nil, nil, nil
			}),
		},
		&cobra.Command{
			Use:     "set <key> <json>",
			Short:   "Replace a governance policy value",
			Example: `  partnergate policy set evidence_coverage_threshold '{"value":90}'`,
			Args:    cobra.ExactArgs(2),
			RunE: remote(v, func(_ *cobra.Command, args []string) (string, string, url.Values, any, error) {
				if !json.Valid([]byte(args[1])) {
					return "", "", nil, nil, fmt.Errorf("policy value is not valid JSON")
				}
				body := map[string]any{"value": json.RawMessage(args[1])}
				return http.MethodPut, "/v1/policies/" + url.PathEscape(args[0]), nil, body, nil
			}),
		},
	)
	return cmd
}

func newAuditCmd(v *viper.Viper) *cobra.Command {
	var category, actor, targetType, targetID string
	var limit int
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query the audit log",
		Args:  cobra.NoArgs,
		RunE: remote(v, func(*cobra.Command, []string) (string, string, url.Values, any, error) {
			q := url.Values{}
			for key, val := range map[string]string{
				"category":    category,
				"actor_id":    actor,
				"target_type": targetType,
				"target_id":   targetID,
			} {
				if val != "" {
					q.Set(key, val)
				}
			}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			return http.MethodGet, "/v1/audit", q, nil, nil
		}),
	}
	cmd.Flags().StringVar(&category, "category", "", "filter by category")
	cmd.Flags().StringVar(&actor, "actor", "", "filter by actor id")
	cmd.Flags().StringVar(&targetType, "target-type", "", "filter by target type")
	cmd.Flags().StringVar(&targetID, "target", "", "filter by target id")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum entries")
	return cmd
}
