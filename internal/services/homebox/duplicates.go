package homebox

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/Duelion/homebox-companion-sub001/internal/logging"
	"github.com/Duelion/homebox-companion-sub001/internal/scan"
)

// maxDuplicateCandidates bounds the per-check item fetches; search results
// do not carry serial numbers.
const maxDuplicateCandidates = 10

// TokenProvider supplies a bearer token.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// DuplicateChecker finds existing items sharing a serial number.
type DuplicateChecker struct {
	client *Client
	tokens TokenProvider
	logger *slog.Logger
	upper  cases.Caser
}

// NewDuplicateChecker builds a checker.
func NewDuplicateChecker(client *Client, tokens TokenProvider, logger *slog.Logger) *DuplicateChecker {
	return &DuplicateChecker{
		client: client,
		tokens: tokens,
		logger: logging.NewComponentLogger(logger, "duplicates"),
		upper:  cases.Upper(language.Und),
	}
}

// CheckSerial returns the first existing item whose serial matches serial
// after trimming and case folding. Lookup failures are logged and reported
// as no match.
func (d *DuplicateChecker) CheckSerial(ctx context.Context, serial string) (*scan.DuplicateMatch, error) {
	normalized := d.normalize(serial)
	if normalized == "" {
		return nil, nil
	}
	token, err := d.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	results, err := d.client.SearchItems(ctx, token, normalized)
	if err != nil {
		logging.WarnWithContext(d.logger, "duplicate search failed", "duplicate_search_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "item not checked for duplicates"),
		)
		return nil, nil
	}
	if len(results) > maxDuplicateCandidates {
		results = results[:maxDuplicateCandidates]
	}
	for _, summary := range results {
		item, err := d.client.GetItem(ctx, token, summary.ID)
		if err != nil {
			d.logger.Debug("duplicate candidate fetch failed", logging.String(logging.FieldItemID, summary.ID), logging.Error(err))
			continue
		}
		if d.normalize(item.SerialNumber) != normalized {
			continue
		}
		match := &scan.DuplicateMatch{
			ItemID:       item.ID,
			ItemName:     item.Name,
			SerialNumber: item.SerialNumber,
		}
		if item.Location != nil {
			match.LocationName = item.Location.Name
		}
		d.logger.Info("duplicate serial found",
			logging.String("serial", normalized),
			logging.String(logging.FieldItemID, item.ID),
		)
		return match, nil
	}
	return nil, nil
}

func (d *DuplicateChecker) normalize(serial string) string {
	return d.upper.String(strings.TrimSpace(serial))
}
