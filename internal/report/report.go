// Package report computes survey statistics from stored answers.
package report

import "github.com/goliatone/go-survey-service/internal/store"

// Stats summarizes every answer given to a survey.
type Stats struct {
	SurveyID       int64                   `json:"survey_id"`
	TotalResponses int                     `json:"total_responses"`
	Questions      map[int64]QuestionStats `json:"questions"`
}

// QuestionStats summarizes the answers to one question.
type QuestionStats struct {
	QuestionText       string         `json:"question_text"`
	TotalAnswers       int            `json:"total_answers"`
	CorrectAnswers     int            `json:"correct_answers"`
	AnswerDistribution map[string]int `json:"answer_distribution"`
}

// Compute builds the statistics for a survey. TotalResponses counts distinct
// users; the distribution maps each answer text to its number of occurrences.
// The result depends only on the input rows, so re-running a report over
// unchanged data yields equal stats.
func Compute(surveyID int64, rows []store.AnswerRow) *Stats {
	stats := &Stats{
		SurveyID:  surveyID,
		Questions: make(map[int64]QuestionStats),
	}

	users := make(map[int64]struct{})
	for _, row := range rows {
		users[row.UserID] = struct{}{}

		qs, ok := stats.Questions[row.QuestionID]
		if !ok {
			qs = QuestionStats{
				QuestionText:       row.QuestionText,
				AnswerDistribution: make(map[string]int),
			}
		}
		qs.TotalAnswers++
		if row.IsCorrect {
			qs.CorrectAnswers++
		}
		qs.AnswerDistribution[row.AnswerText]++
		stats.Questions[row.QuestionID] = qs
	}
	stats.TotalResponses = len(users)

	return stats
}
