package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/gosuri/uitable"
)

const (
	outputTable = "table"
	outputJSON  = "json"
)

func validateOutputFormat(format string) error {
	switch strings.ToLower(format) {
	case outputTable, outputJSON:
		return nil
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

// render writes v as indented JSON, or as the table built by rows.
func render(w io.Writer, format string, v any, header []any, rows func(t *uitable.Table)) error {
	if strings.ToLower(format) == outputJSON {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("formatting output: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
	table := uitable.New()
	table.MaxColWidth = 48
	table.AddRow(header...)
	rows(table)
	_, err := fmt.Fprintln(w, table)
	return err
}

func formatPrice(amount int64) string {
	s := fmt.Sprintf("%d", amount)
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return "$" + b.String()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
