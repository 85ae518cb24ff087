// Package export writes categorized race results to a Google Sheet.
package export

import (
	"context"
	"fmt"
	"os"

	"google.golang.org/api/option"
	sheetsv4 "google.golang.org/api/sheets/v4"
)

// ValuesWriter is the part of the Sheets values API the exporter uses.
type ValuesWriter interface {
	Clear(ctx context.Context, rng string) error
	Update(ctx context.Context, rng string, rows [][]interface{}) error
}

// SheetsClient writes to one spreadsheet.
type SheetsClient struct {
	srv           *sheetsv4.Service
	spreadsheetID string
}

func NewSheetsClient(ctx context.Context, credentialsFile, spreadsheetID string) (*SheetsClient, error) {
	if _, err := os.Stat(credentialsFile); err != nil {
		return nil, fmt.Errorf("service account json: %w", err)
	}
	srv, err := sheetsv4.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(sheetsv4.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return &SheetsClient{srv: srv, spreadsheetID: spreadsheetID}, nil
}

func (c *SheetsClient) SpreadsheetID() string { return c.spreadsheetID }

func (c *SheetsClient) Clear(ctx context.Context, rng string) error {
	_, err := c.srv.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &sheetsv4.ClearValuesRequest{}).
		Context(ctx).
		Do()
	return err
}

func (c *SheetsClient) Update(ctx context.Context, rng string, rows [][]interface{}) error {
	vr := &sheetsv4.ValueRange{Values: rows}
	_, err := c.srv.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}
