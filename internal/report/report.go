// Package report renders survey responses as spreadsheets.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"surveydesk/internal/domain"
	"surveydesk/internal/survey"
)

const (
	ResponsesSheet = "Responses"
	AnalyticsSheet = "Analytics"

	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var fixedHeaders = []string{"Response ID", "Respondent", "Email", "Started", "Completed", "Complete", "Seconds"}

// ResponsesWorkbook builds a workbook with one row per response and a
// second sheet with the survey analytics.
func ResponsesWorkbook(sv domain.Survey, responses []domain.SurveyResponse) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", ResponsesSheet); err != nil {
		return nil, err
	}
	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "#000000", Style: 1},
		},
	})
	if err != nil {
		return nil, err
	}

	questions := sv.OrderedQuestions()
	headers := append([]string{}, fixedHeaders...)
	for _, q := range questions {
		headers = append(headers, q.Title)
	}
	if err := writeRow(f, ResponsesSheet, 1, toAny(headers)); err != nil {
		return nil, err
	}
	last, _ := excelize.ColumnNumberToName(len(headers))
	if err := f.SetCellStyle(ResponsesSheet, "A1", last+"1", header); err != nil {
		return nil, err
	}

	for i, r := range responses {
		row := []any{r.ID, r.RespondentID, r.Email, stamp(r.StartedAt), "", r.IsComplete, ""}
		if r.CompletedAt != nil {
			row[4] = stamp(*r.CompletedAt)
		}
		if d := r.Duration(); d > 0 {
			row[6] = d.Seconds()
		}
		answers := r.AnswerMap()
		for _, q := range questions {
			row = append(row, cellValue(answers[q.ID]))
		}
		if err := writeRow(f, ResponsesSheet, i+2, row); err != nil {
			return nil, err
		}
	}
	for i := range headers {
		col, _ := excelize.ColumnNumberToName(i + 1)
		width := 18.0
		if i == 0 {
			width = 38
		}
		f.SetColWidth(ResponsesSheet, col, col, width)
	}

	if err := writeAnalytics(f, survey.ComputeAnalytics(&sv, responses), header); err != nil {
		return nil, err
	}
	return f, nil
}

// Write streams the workbook for sv to w.
func Write(w io.Writer, sv domain.Survey, responses []domain.SurveyResponse) error {
	f, err := ResponsesWorkbook(sv, responses)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteTo(w)
	return err
}

func writeAnalytics(f *excelize.File, a survey.Analytics, header int) error {
	if _, err := f.NewSheet(AnalyticsSheet); err != nil {
		return err
	}
	rows := [][]any{
		{"Metric", "Value"},
		{"Total responses", a.TotalResponses},
		{"Completed responses", a.CompletedResponses},
		{"Completion rate (%)", a.CompletionRate},
		{"Average time to complete (ms)", a.AvgTimeToComplete},
		{},
		{"Question", "Type", "Answered", "Average", "Breakdown"},
	}
	for _, q := range a.Questions {
		var avg any = ""
		if q.Average != nil {
			avg = *q.Average
		}
		rows = append(rows, []any{q.Title, string(q.Type), q.Answered, avg, breakdown(q.Options)})
	}
	rows = append(rows, []any{}, []any{"Date", "Responses"})
	dates := make([]string, 0, len(a.ResponsesByDate))
	for d := range a.ResponsesByDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	for _, d := range dates {
		rows = append(rows, []any{d, a.ResponsesByDate[d]})
	}

	for i, row := range rows {
		if err := writeRow(f, AnalyticsSheet, i+1, row); err != nil {
			return err
		}
		if len(row) > 0 {
			if s, ok := row[0].(string); ok && (s == "Metric" || s == "Question" || s == "Date") {
				last, _ := excelize.ColumnNumberToName(len(row))
				f.SetCellStyle(AnalyticsSheet, fmt.Sprintf("A%d", i+1), fmt.Sprintf("%s%d", last, i+1), header)
			}
		}
	}
	f.SetColWidth(AnalyticsSheet, "A", "A", 32)
	f.SetColWidth(AnalyticsSheet, "E", "E", 40)
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	if len(values) == 0 {
		return nil
	}
	return f.SetSheetRow(sheet, fmt.Sprintf("A%d", row), &values)
}

func toAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// cellValue flattens an answer into something a cell can hold.
func cellValue(v any) any {
	switch x := v.(type) {
	case nil:
		return ""
	case string, bool, float64, int, int64:
		return x
	}
	if picks := domain.Selected(v); len(picks) > 0 {
		return strings.Join(picks, ", ")
	}
	return fmt.Sprint(v)
}

func breakdown(options map[string]int) string {
	if len(options) == 0 {
		return ""
	}
	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %d", k, options[k])
	}
	return strings.Join(parts, "; ")
}
