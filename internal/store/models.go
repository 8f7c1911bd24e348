package store

import (
	"time"

	"github.com/uptrace/bun"
)

// Question types accepted by the API.
const (
	QuestionMultipleChoice = "multiple_choice"
	QuestionOpenEnded      = "open_ended"
	QuestionYesNo          = "yes_no"
)

// QuestionTypes lists every valid question type.
var QuestionTypes = []string{QuestionMultipleChoice, QuestionOpenEnded, QuestionYesNo}

type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID             int64     `bun:"id,pk,autoincrement" json:"id"`
	Email          string    `bun:"email,notnull,unique" json:"email"`
	Username       string    `bun:"username,notnull,unique" json:"username"`
	HashedPassword string    `bun:"hashed_password,notnull" json:"-"`
	IsActive       bool      `bun:"is_active,notnull" json:"is_active"`
	CreatedAt      time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

type Category struct {
	bun.BaseModel `bun:"table:categories,alias:c"`

	ID          int64  `bun:"id,pk,autoincrement" json:"id"`
	Name        string `bun:"name,notnull,unique" json:"name"`
	Description string `bun:"description" json:"description,omitempty"`
}

// Survey is the cached survey document: the survey row with its category and
// questions ordered by OrderNumber.
type Survey struct {
	bun.BaseModel `bun:"table:surveys,alias:s"`

	ID          int64     `bun:"id,pk,autoincrement" json:"id"`
	Title       string    `bun:"title,notnull" json:"title"`
	Description string    `bun:"description" json:"description,omitempty"`
	UserID      int64     `bun:"user_id,notnull" json:"user_id"`
	CategoryID  int64     `bun:"category_id,notnull" json:"category_id"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`

	Category  *Category   `bun:"rel:belongs-to,join:category_id=id" json:"category,omitempty"`
	Questions []*Question `bun:"rel:has-many,join:id=survey_id" json:"questions"`
}

type Question struct {
	bun.BaseModel `bun:"table:questions,alias:q"`

	ID           int64  `bun:"id,pk,autoincrement" json:"id"`
	SurveyID     int64  `bun:"survey_id,notnull" json:"survey_id"`
	Text         string `bun:"text,notnull" json:"text"`
	QuestionType string `bun:"question_type,notnull" json:"question_type"`
	OrderNumber  int    `bun:"order_number,notnull" json:"order_number"`
}

type Answer struct {
	bun.BaseModel `bun:"table:answers,alias:a"`

	ID         int64     `bun:"id,pk,autoincrement" json:"id"`
	QuestionID int64     `bun:"question_id,notnull" json:"question_id"`
	UserID     int64     `bun:"user_id,notnull" json:"user_id"`
	Text       string    `bun:"text,notnull" json:"text"`
	IsCorrect  bool      `bun:"is_correct,notnull" json:"is_correct"`
	CreatedAt  time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`

	Question *Question `bun:"rel:belongs-to,join:question_id=id" json:"-"`
}

type Result struct {
	bun.BaseModel `bun:"table:results,alias:r"`

	ID              int64     `bun:"id,pk,autoincrement" json:"id"`
	UserID          int64     `bun:"user_id,notnull" json:"user_id"`
	SurveyID        int64     `bun:"survey_id,notnull" json:"survey_id"`
	SubmittedAt     time.Time `bun:"submitted_at,notnull,default:current_timestamp" json:"submitted_at"`
	ResponsesNumber int       `bun:"responses_number,notnull" json:"responses_number"`

	ResultAnswers []*ResultAnswer `bun:"rel:has-many,join:id=result_id" json:"result_answers"`
}

type ResultAnswer struct {
	bun.BaseModel `bun:"table:result_answers,alias:ra"`

	ID         int64  `bun:"id,pk,autoincrement" json:"id"`
	ResultID   int64  `bun:"result_id,notnull" json:"result_id"`
	QuestionID int64  `bun:"question_id,notnull" json:"question_id"`
	AnswerID   int64  `bun:"answer_id,notnull" json:"answer_id"`
	AnswerText string `bun:"answer_text" json:"answer_text"`
}

// AnswerRow is an answer joined with its question text, as consumed by the
// report and export jobs.
type AnswerRow struct {
	QuestionID   int64
	QuestionText string
	AnswerText   string
	IsCorrect    bool
	UserID       int64
	CreatedAt    time.Time
}

// models lists every table in creation order.
var models = []any{
	(*User)(nil),
	(*Category)(nil),
	(*Survey)(nil),
	(*Question)(nil),
	(*Answer)(nil),
	(*Result)(nil),
	(*ResultAnswer)(nil),
}
