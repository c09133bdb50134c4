package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/odyssey-erp/odyssey-invoicing/internal/sales/invoices"
	"github.com/odyssey-erp/odyssey-invoicing/internal/sales/sequence"
)

// InvoiceLedger is the read side of the invoice repository the sequence
// commands need.
type InvoiceLedger interface {
	sequence.DocumentCounter
	FindDuplicateNumbers(ctx context.Context, branchID string, year int) ([]invoices.DuplicateNumber, error)
}

// SequenceCLI inspects issued document numbers.
type SequenceCLI struct {
	ledger   InvoiceLedger
	branches sequence.BranchResolver
}

// NewSequenceCLI builds the helper. branches may be nil.
func NewSequenceCLI(ledger InvoiceLedger, branches sequence.BranchResolver) *SequenceCLI {
	return &SequenceCLI{ledger: ledger, branches: branches}
}

// DuplicatesOptions defines the flags of the sequence duplicates command.
type DuplicatesOptions struct {
	BranchID   string
	Year       int
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// DuplicatesSummary is the JSON output of the duplicates command.
type DuplicatesSummary struct {
	OK         bool                       `json:"ok"`
	BranchID   string                     `json:"branch_id,omitempty"`
	Year       int                        `json:"year,omitempty"`
	Duplicates []invoices.DuplicateNumber `json:"duplicates"`
}

// DuplicatesCommand lists invoice numbers issued more than once. It returns 10
// when duplicates exist so scripts can alert on the exit code.
func (c *SequenceCLI) DuplicatesCommand(ctx context.Context, opts DuplicatesOptions) int {
	stdout, stderr := writers(opts.Stdout, opts.Stderr)
	if c == nil || c.ledger == nil {
		_, _ = fmt.Fprintln(stderr, "sequence duplicates: ledger not configured")
		return 1
	}
	if opts.Year < 0 {
		_, _ = fmt.Fprintln(stderr, "sequence duplicates: --year must not be negative")
		return 1
	}
	branchID := strings.TrimSpace(opts.BranchID)
	dups, err := c.ledger.FindDuplicateNumbers(ctx, branchID, opts.Year)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "sequence duplicates: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		if dups == nil {
			dups = []invoices.DuplicateNumber{}
		}
		summary := DuplicatesSummary{OK: len(dups) == 0, BranchID: branchID, Year: opts.Year, Duplicates: dups}
		if err := json.NewEncoder(stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(stderr, "sequence duplicates: encode json: %v\n", err)
			return 1
		}
	} else if len(dups) == 0 {
		_, _ = fmt.Fprintln(stdout, "No duplicate invoice numbers found.")
	} else {
		_, _ = fmt.Fprintf(stdout, "%d duplicate invoice number(s):\n", len(dups))
		for _, d := range dups {
			_, _ = fmt.Fprintf(stdout, " - %s used by %s\n", d.Number, strings.Join(d.IDs, ", "))
		}
	}
	if len(dups) > 0 {
		return 10
	}
	return 0
}

// StatusOptions defines the flags of the sequence status command.
type StatusOptions struct {
	BranchID   string
	Year       int
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// SequenceStatus reports how many numbers exist for a branch and year and the
// numbers the counting source would issue next.
type SequenceStatus struct {
	BranchID    string `json:"branch_id"`
	Year        int    `json:"year"`
	Invoices    int    `json:"invoices"`
	Entries     int    `json:"entries"`
	NextInvoice string `json:"next_invoice"`
	NextEntry   string `json:"next_entry"`
}

// StatusCommand prints the numbering state of one branch and year.
func (c *SequenceCLI) StatusCommand(ctx context.Context, opts StatusOptions) int {
	stdout, stderr := writers(opts.Stdout, opts.Stderr)
	if c == nil || c.ledger == nil {
		_, _ = fmt.Fprintln(stderr, "sequence status: ledger not configured")
		return 1
	}
	branchID := strings.TrimSpace(opts.BranchID)
	if branchID == "" {
		_, _ = fmt.Fprintln(stderr, "sequence status: --branch is required")
		return 1
	}
	if opts.Year <= 0 {
		_, _ = fmt.Fprintln(stderr, "sequence status: --year is required and must be positive")
		return 1
	}
	status, err := c.status(ctx, branchID, opts.Year)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "sequence status: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(stdout).Encode(status); err != nil {
			_, _ = fmt.Fprintf(stderr, "sequence status: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	_, _ = fmt.Fprintf(stdout, "Branch %s, year %d\n", status.BranchID, status.Year)
	_, _ = fmt.Fprintf(stdout, "  invoices: %d (next %s)\n", status.Invoices, status.NextInvoice)
	_, _ = fmt.Fprintf(stdout, "  entries:  %d (next %s)\n", status.Entries, status.NextEntry)
	return 0
}

func (c *SequenceCLI) status(ctx context.Context, branchID string, year int) (SequenceStatus, error) {
	invoiceCount, err := c.ledger.CountByBranchAndYear(ctx, sequence.DomainInvoice, branchID, year)
	if err != nil {
		return SequenceStatus{}, err
	}
	entryCount, err := c.ledger.CountByBranchAndYear(ctx, sequence.DomainEntry, branchID, year)
	if err != nil {
		return SequenceStatus{}, err
	}
	number := sequence.DefaultBranchNumber
	if c.branches != nil {
		if resolved, err := c.branches.BranchNumber(ctx, branchID); err == nil {
			if resolved = sequence.NormalizeBranchNumber(resolved); resolved != "" {
				number = resolved
			}
		}
	}
	return SequenceStatus{
		BranchID:    branchID,
		Year:        year,
		Invoices:    invoiceCount,
		Entries:     entryCount,
		NextInvoice: sequence.FormatInvoiceNumber(number, year, int64(invoiceCount)+1),
		NextEntry:   sequence.FormatEntryNumber(number, year, int64(entryCount)+1),
	}, nil
}

func writers(stdout, stderr io.Writer) (io.Writer, io.Writer) {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return stdout, stderr
}
