// Package google mirrors the ledger into a Google Sheets spreadsheet.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"budgetnest/internal/log"
	ports "budgetnest/internal/sheets"
)

// DefaultSheetName is the tab rows are appended to.
const DefaultSheetName = "Ledger"

const lastColumn = "J"

// jsonUnmarshal is indirected so tests can exercise token decoding.
var jsonUnmarshal = json.Unmarshal

// Credentials holds one of the two supported auth modes: a service account
// key, or an OAuth client plus a stored token.
type Credentials struct {
	ServiceAccountJSON []byte
	OAuthClientJSON    []byte
	OAuthTokenJSON     []byte
}

type Options struct {
	SpreadsheetID string
	SheetName     string
	Credentials   Credentials
	// ClientOptions are passed through to the Sheets service; when set
	// without credentials, authentication is left to them.
	ClientOptions []goption.ClientOption
	Logger        *log.Logger
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	logger        *log.Logger
}

// Ensure interface conformance
var _ ports.Ledger = (*Client)(nil)

func New(ctx context.Context, opts Options) (*Client, error) {
	spreadsheetID := strings.TrimSpace(opts.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	sheetName := strings.TrimSpace(opts.SheetName)
	if sheetName == "" {
		sheetName = DefaultSheetName
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.FromContext(ctx)
	}
	logger = logger.WithComponent(log.ComponentSheets)

	svc, err := newSheetsService(ctx, opts.Credentials, logger, opts.ClientOptions...)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		logger:        logger,
	}, nil
}

// newSheetsService initializes a Sheets service from a service account key
// or an OAuth client and token.
func newSheetsService(ctx context.Context, creds Credentials, logger *log.Logger, extra ...goption.ClientOption) (*gsheet.Service, error) {
	hasServiceAccount := len(creds.ServiceAccountJSON) > 0
	hasOAuthClient := len(creds.OAuthClientJSON) > 0

	opts := append([]goption.ClientOption(nil), extra...)

	switch {
	case hasServiceAccount:
		logger.InfoContext(ctx, "Using service account credentials", "credentials_size", len(creds.ServiceAccountJSON))
		opts = append(opts,
			goption.WithCredentialsJSON(creds.ServiceAccountJSON),
			goption.WithScopes(gsheet.SpreadsheetsScope))
	case hasOAuthClient:
		if len(creds.OAuthTokenJSON) == 0 {
			return nil, errors.New("missing oauth token (set GOOGLE_OAUTH_TOKEN_JSON or GOOGLE_OAUTH_TOKEN_FILE)")
		}
		config, err := googleoauth.ConfigFromJSON(creds.OAuthClientJSON, gsheet.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("oauth config: %w", err)
		}
		var token oauth2.Token
		if err := jsonUnmarshal(creds.OAuthTokenJSON, &token); err != nil {
			return nil, fmt.Errorf("oauth token: %w", err)
		}
		logger.InfoContext(ctx, "Using OAuth client credentials")
		httpCtx := context.WithValue(ctx, oauth2.HTTPClient, newHTTPClientWithPooling())
		opts = append(opts, goption.WithHTTPClient(config.Client(httpCtx, &token)))
	case len(extra) == 0:
		return nil, errors.New("missing credentials (set GOOGLE_SERVICE_ACCOUNT_JSON/FILE or GOOGLE_OAUTH_CLIENT_JSON/FILE)")
	}

	service, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// newHTTPClientWithPooling creates an HTTP client tuned for the Sheets API:
// pooled keep-alive connections and bounded timeouts.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}

// valueInputRaw stores cells exactly as sent. Descriptions are user text, so
// they must never be parsed as formulas, and dates and amounts must read
// back as the strings parseLedger expects.
const valueInputRaw = "RAW"

func (c *Client) columnRange(from, to string) string {
	return fmt.Sprintf("%s!%s:%s", c.sheetName, from, to)
}

// EnsureHeader writes the header row when the ledger tab is empty.
func (c *Client) EnsureHeader(ctx context.Context) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	rng := c.columnRange("A1", lastColumn+"1")
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read %s: %w", rng, err)
	}
	if len(resp.Values) > 0 && len(resp.Values[0]) > 0 {
		return nil
	}

	header := make([]any, len(ports.LedgerHeader))
	for i, h := range ports.LedgerHeader {
		header[i] = h
	}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: [][]any{header}}).
		ValueInputOption(valueInputRaw).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write header to %s: %w", c.sheetName, err)
	}
	c.logger.InfoContext(ctx, "Ledger header written", "sheet", c.sheetName)
	return nil
}

func (c *Client) AppendRow(ctx context.Context, row ports.LedgerRow) (string, error) {
	if row.RecordID == "" {
		return "", errors.New("ledger row needs a record id")
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	rng := c.columnRange("A", lastColumn)
	vr := &gsheet.ValueRange{Values: [][]any{row.Cells()}}
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption(valueInputRaw).
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to %s: %w", c.sheetName, err)
	}

	ref := rng
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	c.logger.DebugContext(ctx, "Ledger row appended", log.FieldSheetsRef, ref, log.FieldRecordID, row.RecordID)
	return ref, nil
}

func (c *Client) HasEvent(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, nil
	}
	if c.svc == nil {
		return false, errors.New("sheets service not initialized")
	}
	rng := c.columnRange(lastColumn, lastColumn)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return false, fmt.Errorf("read %s: %w", rng, err)
	}
	for _, row := range resp.Values {
		if len(row) > 0 && strings.TrimSpace(fmt.Sprint(row[0])) == eventID {
			return true, nil
		}
	}
	return false, nil
}

func (c *Client) ListRows(ctx context.Context) ([]ports.LedgerRow, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	rng := c.columnRange("A", lastColumn)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return parseLedger(resp.Values), nil
}
