package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"rmr/internal/ledger/models"
	"rmr/pkg/domain"
	dErrors "rmr/pkg/domain-errors"
)

var requiredColumns = []string{"email", "amount", "effective_date"}

// Import ingests a CSV export with source=import. The first row must be a
// header naming at least email, amount and effective_date; other columns are
// ignored. Bad rows are reported and skipped, they never abort the import.
func (s *Service) Import(ctx context.Context, r io.Reader) (*models.ImportReport, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, dErrors.New(dErrors.CodeValidation, "csv is empty")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "unreadable csv header")
	}
	cols, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	report := &models.ImportReport{Rows: []models.ImportRow{}}
	for {
		if err := ctx.Err(); err != nil {
			return report, dErrors.Wrap(err, dErrors.CodeTimeout, "import interrupted")
		}
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if !errors.As(err, &perr) {
				return report, dErrors.Wrap(err, dErrors.CodeBadRequest, "unreadable csv")
			}
			report.Add(models.ImportRow{Line: perr.Line, Outcome: models.ImportInvalid, Error: perr.Err.Error()})
			continue
		}
		line, _ := reader.FieldPos(0)
		cmd := models.IngestCommand{
			Email:         field(row, cols["email"]),
			Amount:        field(row, cols["amount"]),
			EffectiveDate: field(row, cols["effective_date"]),
			Source:        string(domain.SourceImport),
		}
		report.Add(s.importRow(ctx, line, cmd))
	}

	s.log(ctx, levelFor(report), "ledger import finished",
		"created", report.Created, "duplicate", report.Duplicate, "invalid", report.Invalid)
	return report, nil
}

func (s *Service) importRow(ctx context.Context, line int, cmd models.IngestCommand) models.ImportRow {
	row := models.ImportRow{Line: line, Email: cmd.Email}
	res, err := s.Ingest(ctx, cmd)
	if err != nil {
		row.Outcome = models.ImportInvalid
		row.Error = dErrors.Message(err)
		if row.Error == "" {
			row.Error = err.Error()
		}
		return row
	}
	id := res.Record.ID
	row.RecordID = &id
	row.Outcome = models.ImportCreated
	if res.Duplicate {
		row.Outcome = models.ImportDuplicate
	}
	return row
}

func columnIndex(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("csv header is missing column %q", c))
		}
	}
	return cols, nil
}

func field(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

func levelFor(r *models.ImportReport) slog.Level {
	if r.Invalid > 0 {
		return slog.LevelWarn
	}
	return slog.LevelInfo
}
