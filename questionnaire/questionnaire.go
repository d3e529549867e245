// Package questionnaire defines the NASA-TLX workload questionnaire
// presented after analysis: six dimensions scored on a 0-20 scale plus
// free-text comments.
package questionnaire

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"odescreen/types"
)

// Dimension is one NASA-TLX workload dimension.
type Dimension struct {
	Key    string
	Name   string
	Prompt string
}

// ScaleMin and ScaleMax bound the per-dimension integer score.
const (
	ScaleMin = 0
	ScaleMax = 20
)

// Dimensions is the official NASA-TLX dimension set, in presentation order.
var Dimensions = []Dimension{
	{Key: "q1_MentalDemand", Name: "Mental Demand", Prompt: "How mentally demanding was the task?"},
	{Key: "q2_PhysicalDemand", Name: "Physical Demand", Prompt: "How physically demanding was the task?"},
	{Key: "q3_TemporalDemand", Name: "Temporal Demand", Prompt: "How hurried or rushed was the pace of the task?"},
	{Key: "q4_Performance", Name: "Performance", Prompt: "How successful were you in accomplishing what you were asked to do?"},
	{Key: "q5_Effort", Name: "Effort", Prompt: "How hard did you have to work to accomplish your level of performance?"},
	{Key: "q6_Frustration", Name: "Frustration", Prompt: "How insecure, discouraged, irritated, stressed, or annoyed were you?"},
}

// Validate checks that every dimension is answered and each score is on the
// 0-20 scale.
func Validate(answers types.QuestionnaireAnswers) error {
	for _, dim := range Dimensions {
		score, ok := answers[dim.Key]
		if !ok {
			return fmt.Errorf("missing answer for %s", dim.Name)
		}
		if score < ScaleMin || score > ScaleMax {
			return fmt.Errorf("answer for %s out of range: %d", dim.Name, score)
		}
	}
	return nil
}

// answersFile is the on-disk shape of a headless-run answers file.
type answersFile struct {
	Answers  map[string]int `yaml:"answers"`
	Comments string         `yaml:"comments"`
}

// LoadAnswersFile reads questionnaire answers from a YAML file for headless
// runs. The file maps dimension keys to scores and may carry comments.
func LoadAnswersFile(path string) (types.QuestionnaireAnswers, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("cannot read answers file %s: %v", path, err)
	}

	var f answersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, "", fmt.Errorf("cannot parse answers file %s: %v", path, err)
	}

	answers := types.QuestionnaireAnswers(f.Answers)
	if err := Validate(answers); err != nil {
		return nil, "", err
	}
	return answers, f.Comments, nil
}

// Neutral returns a fully answered questionnaire with midpoint scores.
func Neutral() types.QuestionnaireAnswers {
	answers := make(types.QuestionnaireAnswers, len(Dimensions))
	for _, dim := range Dimensions {
		answers[dim.Key] = (ScaleMin + ScaleMax) / 2
	}
	return answers
}
