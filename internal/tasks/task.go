package tasks

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Background job names. Each takes a fixed number of integer arguments.
const (
	GenerateSurveyReport   = "generate_survey_report"
	SendSurveyNotification = "send_survey_notification"
	ExportSurveyData       = "export_survey_data"
)

var arity = map[string]int{
	GenerateSurveyReport:   1,
	SendSurveyNotification: 2,
	ExportSurveyData:       1,
}

// Known reports whether name is a registered job name.
func Known(name string) bool {
	_, ok := arity[name]
	return ok
}

// Task is an immutable (name, arguments) pair.
type Task struct {
	name string
	args []int64
}

// New builds a task and checks its arity.
func New(name string, args ...int64) (Task, error) {
	t := Task{name: name, args: slices.Clone(args)}
	if err := t.Validate(); err != nil {
		return Task{}, err
	}
	return t, nil
}

// ReportTask is generate_survey_report(surveyID).
func ReportTask(surveyID int64) Task {
	return Task{name: GenerateSurveyReport, args: []int64{surveyID}}
}

// NotificationTask is send_survey_notification(surveyID, userID).
func NotificationTask(surveyID, userID int64) Task {
	return Task{name: SendSurveyNotification, args: []int64{surveyID, userID}}
}

// ExportTask is export_survey_data(surveyID).
func ExportTask(surveyID int64) Task {
	return Task{name: ExportSurveyData, args: []int64{surveyID}}
}

func (t Task) Name() string {
	return t.name
}

// Args returns a copy of the positional arguments.
func (t Task) Args() []int64 {
	return slices.Clone(t.args)
}

// Arg returns the i-th argument or 0 when out of range.
func (t Task) Arg(i int) int64 {
	if i < 0 || i >= len(t.args) {
		return 0
	}
	return t.args[i]
}

func (t Task) String() string {
	return fmt.Sprintf("%s%v", t.name, t.args)
}

// Validate checks the task name and argument count.
func (t Task) Validate() error {
	want, ok := arity[t.name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTask, t.name)
	}
	if len(t.args) != want {
		return fmt.Errorf("%w: %s takes %d argument(s), got %d", ErrInvalidArgs, t.name, want, len(t.args))
	}
	return nil
}

type payload struct {
	Args []int64 `json:"args"`
}

// Payload encodes the task arguments for the queue.
func (t Task) Payload() ([]byte, error) {
	return json.Marshal(payload{Args: t.args})
}

// Decode rebuilds a task from its queue name and payload.
func Decode(name string, data []byte) (Task, error) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Task{}, fmt.Errorf("%w: decode %s payload: %v", ErrInvalidArgs, name, err)
	}
	return New(name, p.Args...)
}
