package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/eleven-am/livecaption/internal/calllog"
	"github.com/eleven-am/livecaption/internal/language"
)

const apiTimeout = 10 * time.Second

func historyCmd() *cobra.Command {
	var (
		peerID  string
		limit   int
		metrics bool
		hours   int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List finished calls from the relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), apiTimeout)
			defer cancel()
			api := &apiClient{base: cfg.API, http: http.DefaultClient}

			if metrics {
				m, err := api.metrics(ctx, hours)
				if err != nil {
					return err
				}
				renderMetrics(os.Stdout, m)
				return nil
			}
			calls, err := api.calls(ctx, peerID, limit)
			if err != nil {
				return err
			}
			renderCalls(os.Stdout, calls)
			return nil
		},
	}
	cmd.Flags().StringVar(&peerID, "peer", "", "only calls involving this peer id")
	cmd.Flags().IntVar(&limit, "limit", calllog.DefaultListLimit, "maximum number of calls")
	cmd.Flags().BoolVar(&metrics, "metrics", false, "show hourly metrics instead of calls")
	cmd.Flags().IntVar(&hours, "hours", 24, "hours of metrics to show")
	return cmd
}

func languagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "languages",
		Short: "Print the supported caption languages",
		RunE: func(cmd *cobra.Command, args []string) error {
			renderLanguages(os.Stdout, language.Supported())
			return nil
		},
	}
}

type apiClient struct {
	base string
	http *http.Client
}

func (c *apiClient) calls(ctx context.Context, peerID string, limit int) ([]*calllog.Call, error) {
	q := url.Values{}
	if peerID != "" {
		q.Set("peer", peerID)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp calllog.ListResponse
	if err := c.get(ctx, "/calls", q, &resp); err != nil {
		return nil, err
	}
	return resp.Calls, nil
}

func (c *apiClient) metrics(ctx context.Context, hours int) ([]*calllog.Metrics, error) {
	q := url.Values{}
	if hours > 0 {
		q.Set("hours", strconv.Itoa(hours))
	}
	var resp calllog.MetricsResponse
	if err := c.get(ctx, "/calls/metrics", q, &resp); err != nil {
		return nil, err
	}
	return resp.Metrics, nil
}

func (c *apiClient) get(ctx context.Context, path string, q url.Values, out any) error {
	u := strings.TrimRight(c.base, "/") + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Message == "" {
			apiErr.Message = resp.Status
		}
		return fmt.Errorf("request %s: %s", path, apiErr.Message)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func renderCalls(w io.Writer, calls []*calllog.Call) {
	if len(calls) == 0 {
		fmt.Fprintln(w, "no calls")
		return
	}
	table := newTable(w, []string{"ID", "Caller", "Callee", "Outcome", "Started", "Duration"})
	table.AppendBulk(lo.Map(calls, func(c *calllog.Call, _ int) []string {
		duration := "-"
		if c.Outcome == calllog.OutcomeCompleted {
			duration = c.Duration().Round(time.Second).String()
		}
		return []string{
			c.ID,
			c.Caller,
			c.Callee,
			string(c.Outcome),
			c.StartedAt.Local().Format(time.DateTime),
			duration,
		}
	}))
	table.Render()
}

func renderMetrics(w io.Writer, metrics []*calllog.Metrics) {
	if len(metrics) == 0 {
		fmt.Fprintln(w, "no calls in this period")
		return
	}
	table := newTable(w, []string{"Date", "Hour", "Calls", "Answered", "Completed", "Rejected", "Cancelled", "Unanswered", "Unavailable", "Avg Duration"})
	table.AppendBulk(lo.Map(metrics, func(m *calllog.Metrics, _ int) []string {
		return []string{
			m.Date,
			fmt.Sprintf("%02d:00", m.Hour),
			strconv.FormatInt(m.Calls, 10),
			strconv.FormatInt(m.Answered, 10),
			strconv.FormatInt(m.Completed, 10),
			strconv.FormatInt(m.Rejected, 10),
			strconv.FormatInt(m.Cancelled, 10),
			strconv.FormatInt(m.Unanswered, 10),
			strconv.FormatInt(m.Unavailable, 10),
			(time.Duration(m.AvgDurationMs) * time.Millisecond).Round(time.Second).String(),
		}
	}))
	table.Render()
}

func renderLanguages(w io.Writer, langs []language.Language) {
	table := newTable(w, []string{"Code", "Name", "Locale"})
	table.AppendBulk(lo.Map(langs, func(l language.Language, _ int) []string {
		return []string{l.Code, l.Name, l.Locale}
	}))
	table.Render()
}
