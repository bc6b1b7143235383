package service

import (
	"context"
	"encoding/csv"
	"examhub_backend/internal/util"
	"io"
	"strconv"

	"github.com/pkg/errors"
)

var resultsCSVHeader = []string{"Name", "DNI", "Exam", "Score", "Correct", "Incorrect", "Unanswered", "Time (s)", "Date", "Note"}

// ExportResults 全部已完成记录写为 CSV
func (s *AdminService) ExportResults(ctx context.Context, w io.Writer) error {
	rows, err := s.completedRows(ctx, 0)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(resultsCSVHeader); err != nil {
		return errors.Wrap(err, "write csv header")
	}
	for _, r := range rows {
		date := ""
		if r.FinishedAt != nil {
			date = r.FinishedAt.Format(util.TimeFormat)
		}
		note := ""
		if r.StudentNote != nil {
			note = *r.StudentNote
		}
		record := []string{
			r.Name,
			r.Code,
			r.ExamTitle,
			strconv.FormatFloat(r.Score, 'f', 1, 64),
			strconv.Itoa(r.Correct),
			strconv.Itoa(r.Incorrect),
			strconv.Itoa(r.Unanswered),
			strconv.Itoa(r.TimeSpent),
			date,
			note,
		}
		if err := cw.Write(record); err != nil {
			return errors.Wrap(err, "write csv record")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flush csv")
}
