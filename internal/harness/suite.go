package harness

import (
	"fmt"
)

// SuiteResult summarizes a directory of scenarios.
type SuiteResult struct {
	TotalScenarios int               `json:"total_scenarios"`
	Passed         int               `json:"passed"`
	Failed         int               `json:"failed"`
	Failures       []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioFailure represents a failed scenario.
type ScenarioFailure struct {
	Scenario string `json:"scenario"`
	Error    string `json:"error"`
}

// RunSuite loads every scenario in dir and runs them in file name order.
// A load failure is returned as an error; an execution or assertion failure
// is recorded in the result.
func RunSuite(dir string) (*SuiteResult, error) {
	scenarios, err := LoadScenarios(dir)
	if err != nil {
		return nil, err
	}

	result := &SuiteResult{}
	for _, scenario := range scenarios {
		result.TotalScenarios++

		runResult, err := Run(scenario)
		if err != nil {
			result.Failed++
			result.Failures = append(result.Failures, ScenarioFailure{
				Scenario: scenario.Name,
				Error:    fmt.Sprintf("scenario execution failed: %v", err),
			})
			continue
		}

		if !runResult.Pass {
			result.Failed++
			result.Failures = append(result.Failures, ScenarioFailure{
				Scenario: scenario.Name,
				Error:    fmt.Sprintf("scenario assertions failed: %v", runResult.Errors),
			})
			continue
		}

		result.Passed++
	}

	return result, nil
}
