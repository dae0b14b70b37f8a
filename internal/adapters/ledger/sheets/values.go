package sheets

import (
	"context"

	gsheets "google.golang.org/api/sheets/v4"
)

type serviceValues struct {
	values *gsheets.SpreadsheetsValuesService
}

func (v serviceValues) Get(ctx context.Context, spreadsheetID, readRange string) ([][]any, error) {
	resp, err := v.values.Get(spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return nil, err
	}

	return resp.Values, nil
}

func (v serviceValues) Update(ctx context.Context, spreadsheetID, writeRange string, values [][]any) error {
	_, err := v.values.Update(spreadsheetID, writeRange, &gsheets.ValueRange{Values: values}).
		ValueInputOption(valueInputOption).
		Context(ctx).
		Do()
	return err
}
