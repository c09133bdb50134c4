package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/odyssey-erp/odyssey-invoicing/internal/fiscal"
)

// FiscalService is the part of the financial year service the CLI drives.
type FiscalService interface {
	List(ctx context.Context) ([]fiscal.FinancialYear, error)
	Close(ctx context.Context, id string) (fiscal.CloseResult, error)
}

// FiscalCLI manages financial years from the command line.
type FiscalCLI struct {
	service FiscalService
}

// NewFiscalCLI builds the helper.
func NewFiscalCLI(service FiscalService) *FiscalCLI {
	return &FiscalCLI{service: service}
}

// FiscalOptions carries output settings shared by the fiscal commands.
type FiscalOptions struct {
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// ListCommand prints every financial year.
func (c *FiscalCLI) ListCommand(ctx context.Context, opts FiscalOptions) int {
	stdout, stderr := writers(opts.Stdout, opts.Stderr)
	if c == nil || c.service == nil {
		_, _ = fmt.Fprintln(stderr, "fiscal list: service not configured")
		return 1
	}
	years, err := c.service.List(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "fiscal list: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		if years == nil {
			years = []fiscal.FinancialYear{}
		}
		if err := json.NewEncoder(stdout).Encode(years); err != nil {
			_, _ = fmt.Fprintf(stderr, "fiscal list: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "YEAR\tSTART\tEND\tSTATUS\tID")
	for _, fy := range years {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			fy.Year,
			fy.StartDate.Format("2006-01-02"),
			fy.EndDate.Format("2006-01-02"),
			fy.Status,
			fy.ID,
		)
	}
	_ = tw.Flush()
	return 0
}

// CloseCommand closes a financial year and reports the year opened in its
// place, if any.
func (c *FiscalCLI) CloseCommand(ctx context.Context, id string, opts FiscalOptions) int {
	stdout, stderr := writers(opts.Stdout, opts.Stderr)
	if c == nil || c.service == nil {
		_, _ = fmt.Fprintln(stderr, "fiscal close: service not configured")
		return 1
	}
	id = strings.TrimSpace(id)
	if id == "" {
		_, _ = fmt.Fprintln(stderr, "fiscal close: year id is required")
		return 1
	}
	result, err := c.service.Close(ctx, id)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "fiscal close: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(stdout).Encode(result); err != nil {
			_, _ = fmt.Fprintf(stderr, "fiscal close: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	_, _ = fmt.Fprintf(stdout, "Closed financial year %d.\n", result.Closed.Year)
	if result.Created != nil {
		_, _ = fmt.Fprintf(stdout, "Opened financial year %d (%s to %s).\n",
			result.Created.Year,
			result.Created.StartDate.Format("2006-01-02"),
			result.Created.EndDate.Format("2006-01-02"),
		)
	}
	return 0
}
