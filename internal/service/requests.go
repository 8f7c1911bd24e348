package service

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/goliatone/go-survey-service/internal/store"
)

// UserCreate registers an account.
type UserCreate struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r UserCreate) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.EmailFormat),
		validation.Field(&r.Username, validation.Required, validation.Length(1, 64)),
		validation.Field(&r.Password, validation.Required, validation.Length(1, 72)),
	)
}

type CategoryCreate struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (r CategoryCreate) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 128)),
	)
}

type QuestionCreate struct {
	Text         string `json:"text"`
	QuestionType string `json:"question_type"`
	OrderNumber  int    `json:"order_number"`
}

func (r QuestionCreate) Validate() error {
	types := make([]any, len(store.QuestionTypes))
	for i, t := range store.QuestionTypes {
		types[i] = t
	}
	return validation.ValidateStruct(&r,
		validation.Field(&r.Text, validation.Required),
		validation.Field(&r.QuestionType, validation.Required, validation.In(types...)),
		validation.Field(&r.OrderNumber, validation.Min(0)),
	)
}

type SurveyCreate struct {
	Title       string           `json:"title"`
	Description string           `json:"description"`
	CategoryID  int64            `json:"category_id"`
	Questions   []QuestionCreate `json:"questions"`
}

func (r SurveyCreate) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.Required, validation.Length(1, 256)),
		validation.Field(&r.CategoryID, validation.Required, validation.Min(int64(1))),
		validation.Field(&r.Questions),
	)
}

// SurveyUpdate changes the fields that are set.
type SurveyUpdate struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	CategoryID  *int64  `json:"category_id"`
}

func (r SurveyUpdate) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.NilOrNotEmpty, validation.Length(1, 256)),
		validation.Field(&r.CategoryID, validation.NilOrNotEmpty, validation.Min(int64(1))),
	)
}

type AnswerCreate struct {
	QuestionID int64  `json:"question_id"`
	Text       string `json:"text"`
	IsCorrect  bool   `json:"is_correct"`
}

func (r AnswerCreate) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.QuestionID, validation.Required, validation.Min(int64(1))),
		validation.Field(&r.Text, validation.Required),
	)
}

type ResultAnswerCreate struct {
	QuestionID int64  `json:"question_id"`
	AnswerID   int64  `json:"answer_id"`
	AnswerText string `json:"answer_text"`
}

func (r ResultAnswerCreate) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.QuestionID, validation.Required, validation.Min(int64(1))),
		validation.Field(&r.AnswerID, validation.Required, validation.Min(int64(1))),
	)
}

type ResultCreate struct {
	SurveyID        int64                `json:"survey_id"`
	ResponsesNumber int                  `json:"responses_number"`
	ResultAnswers   []ResultAnswerCreate `json:"result_answers"`
}

func (r ResultCreate) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.SurveyID, validation.Required, validation.Min(int64(1))),
		validation.Field(&r.ResponsesNumber, validation.Min(0)),
		validation.Field(&r.ResultAnswers),
	)
}

// TaskAccepted is returned by operations that hand work to the task queue.
type TaskAccepted struct {
	Message string `json:"message"`
	TaskID  string `json:"task_id"`
}
