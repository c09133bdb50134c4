package sequence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/width"
)

// ErrBranchRequired is returned when numbering is requested without a branch.
var ErrBranchRequired = errors.New("sequence: branch is required")

// DefaultBranchNumber is used when a branch has no number of its own.
const DefaultBranchNumber = "1"

// EntryFormat selects how journal entry numbers look.
type EntryFormat string

const (
	// EntryFormatSequential yields ENT-{branch}-{year}-{serial}.
	EntryFormatSequential EntryFormat = "sequential"
	// EntryFormatRandom yields EN-###### with a random six digit token.
	EntryFormatRandom EntryFormat = "random"
)

// Valid reports whether f is a known format.
func (f EntryFormat) Valid() bool {
	return f == EntryFormatSequential || f == EntryFormatRandom
}

// BranchResolver looks up the short number printed in document numbers.
type BranchResolver interface {
	BranchNumber(ctx context.Context, branchID string) (string, error)
}

// FallbackRecorder observes numbers issued without a successful source read.
type FallbackRecorder interface {
	RecordSequenceFallback(domain string)
}

// Generator formats document numbers. It never blocks a sale on an
// infrastructure failure: source or branch lookup errors are logged and a
// random serial is used instead.
type Generator struct {
	source      Source
	branches    BranchResolver
	entryFormat EntryFormat
	logger      *slog.Logger
	recorder    FallbackRecorder
	now         func() time.Time
	intn        func(n int) int
}

// NewGenerator wires a generator. An unknown entry format falls back to sequential.
func NewGenerator(source Source, branches BranchResolver, entryFormat EntryFormat, logger *slog.Logger) *Generator {
	if !entryFormat.Valid() {
		entryFormat = EntryFormatSequential
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		source:      source,
		branches:    branches,
		entryFormat: entryFormat,
		logger:      logger,
		now:         time.Now,
		intn:        rand.IntN,
	}
}

// WithNow overrides the clock for deterministic tests.
func (g *Generator) WithNow(now func() time.Time) {
	if now != nil {
		g.now = now
	}
}

// WithRand overrides the random source used for fallbacks and random entries.
func (g *Generator) WithRand(intn func(n int) int) {
	if intn != nil {
		g.intn = intn
	}
}

// WithRecorder attaches a fallback observer.
func (g *Generator) WithRecorder(r FallbackRecorder) {
	g.recorder = r
}

// EntryFormat reports the configured entry number format.
func (g *Generator) EntryFormat() EntryFormat {
	return g.entryFormat
}

// NextInvoiceNumber issues INV-{branchNumber}-{year}-{serial} for the
// current calendar year and consumes the serial.
func (g *Generator) NextInvoiceNumber(ctx context.Context, branchID string) (string, error) {
	return g.invoiceNumber(ctx, branchID, true)
}

// PeekInvoiceNumber returns the invoice number NextInvoiceNumber would issue
// now, leaving the counter untouched.
func (g *Generator) PeekInvoiceNumber(ctx context.Context, branchID string) (string, error) {
	return g.invoiceNumber(ctx, branchID, false)
}

// NextEntryNumber issues the journal entry reference in the configured format.
func (g *Generator) NextEntryNumber(ctx context.Context, branchID string) (string, error) {
	return g.entryNumber(ctx, branchID, true)
}

// PeekEntryNumber returns the entry reference NextEntryNumber would issue now.
// Random references are fresh on every call.
func (g *Generator) PeekEntryNumber(ctx context.Context, branchID string) (string, error) {
	return g.entryNumber(ctx, branchID, false)
}

func (g *Generator) invoiceNumber(ctx context.Context, branchID string, consume bool) (string, error) {
	if branchID == "" {
		return "", ErrBranchRequired
	}
	year := g.now().Year()
	branchNumber := g.branchNumber(ctx, branchID)
	serial := g.serial(ctx, Key{Domain: DomainInvoice, BranchID: branchID, Year: year}, consume)
	return FormatInvoiceNumber(branchNumber, year, serial), nil
}

func (g *Generator) entryNumber(ctx context.Context, branchID string, consume bool) (string, error) {
	if g.entryFormat == EntryFormatRandom {
		return fmt.Sprintf("EN-%06d", 100000+g.intn(900000)), nil
	}
	if branchID == "" {
		return "", ErrBranchRequired
	}
	year := g.now().Year()
	branchNumber := g.branchNumber(ctx, branchID)
	serial := g.serial(ctx, Key{Domain: DomainEntry, BranchID: branchID, Year: year}, consume)
	return FormatEntryNumber(branchNumber, year, serial), nil
}

func (g *Generator) serial(ctx context.Context, key Key, consume bool) int64 {
	if g.source != nil {
		read := g.source.Peek
		if consume {
			read = g.source.Next
		}
		n, err := read(ctx, key)
		if err == nil && n > 0 {
			return n
		}
		if err == nil {
			err = fmt.Errorf("sequence: source returned serial %d", n)
		}
		g.logger.Warn("sequence source failed, using random serial",
			slog.String("domain", string(key.Domain)),
			slog.String("branch_id", key.BranchID),
			slog.Int("year", key.Year),
			slog.Bool("consume", consume),
			slog.Any("error", err),
		)
	} else {
		g.logger.Warn("sequence source not configured, using random serial", slog.String("domain", string(key.Domain)))
	}
	if consume && g.recorder != nil {
		g.recorder.RecordSequenceFallback(string(key.Domain))
	}
	return int64(1000 + g.intn(9000))
}

func (g *Generator) branchNumber(ctx context.Context, branchID string) string {
	if g.branches == nil {
		return DefaultBranchNumber
	}
	number, err := g.branches.BranchNumber(ctx, branchID)
	if err != nil {
		g.logger.Warn("resolve branch number", slog.String("branch_id", branchID), slog.Any("error", err))
		return DefaultBranchNumber
	}
	if number = NormalizeBranchNumber(number); number == "" {
		return DefaultBranchNumber
	}
	return number
}

// FormatInvoiceNumber renders an invoice number.
func FormatInvoiceNumber(branchNumber string, year int, serial int64) string {
	return fmt.Sprintf("INV-%s-%d-%d", branchNumber, year, serial)
}

// IsSequentialEntry reports whether number has the ENT-{branch}-{year}-{serial}
// shape issued from a counter.
func IsSequentialEntry(number string) bool {
	return strings.HasPrefix(number, "ENT-")
}

// FormatEntryNumber renders a sequential journal entry number.
func FormatEntryNumber(branchNumber string, year int, serial int64) string {
	return fmt.Sprintf("ENT-%s-%d-%d", branchNumber, year, serial)
}

var foldArabicDigits = runes.Map(func(r rune) rune {
	switch {
	case r >= '٠' && r <= '٩':
		return '0' + (r - '٠')
	case r >= '۰' && r <= '۹':
		return '0' + (r - '۰')
	}
	return r
})

// NormalizeBranchNumber folds Arabic-Indic and full-width digits to ASCII and
// strips whitespace so the number is safe inside a document number.
func NormalizeBranchNumber(number string) string {
	// Chain keeps per-use buffers, so it is built per call.
	t := transform.Chain(width.Narrow, foldArabicDigits, runes.Remove(runes.In(unicode.White_Space)))
	out, _, err := transform.String(t, number)
	if err != nil {
		return number
	}
	return out
}
