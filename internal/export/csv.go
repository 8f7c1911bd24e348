// Package export renders survey answers as CSV and ships them to object
// storage.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/goliatone/go-survey-service/internal/store"
)

const (
	// KeyPrefix is the object key prefix of every export.
	KeyPrefix = "survey_exports/"

	ContentType = "text/csv"

	filenameLayout  = "20060102_150405"
	timestampLayout = "2006-01-02 15:04:05.999999"

	// StatusCompleted is reported by a finished export.
	StatusCompleted = "Export completed"
)

// Header is the CSV column order.
var Header = []string{"question_id", "question_text", "answer_text", "is_correct", "user_id", "timestamp"}

// Result describes a finished export.
type Result struct {
	Status   string `json:"status"`
	Filename string `json:"filename"`
	S3Path   string `json:"s3_path"`
	Location string `json:"location,omitempty"`
	Rows     int    `json:"rows"`
}

// Filename returns survey_<id>_<YYYYmmdd_HHMMSS>.csv for the given time.
func Filename(surveyID int64, at time.Time) string {
	return fmt.Sprintf("survey_%d_%s.csv", surveyID, at.Format(filenameLayout))
}

// ObjectKey returns the storage key of an export file.
func ObjectKey(filename string) string {
	return KeyPrefix + filename
}

// WriteCSV writes the header followed by one record per answer.
func WriteCSV(w io.Writer, rows []store.AnswerRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("export: write header: %w", err)
	}

	for _, row := range rows {
		record := []string{
			strconv.FormatInt(row.QuestionID, 10),
			row.QuestionText,
			row.AnswerText,
			formatBool(row.IsCorrect),
			strconv.FormatInt(row.UserID, 10),
			row.CreatedAt.UTC().Format(timestampLayout),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("export: write row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
