package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/jobtrail/internal/model"
	"github.com/roach88/jobtrail/internal/testutil"
)

func assertionContext(rows ...model.Row) *AssertionContext {
	return &AssertionContext{
		Ctx:      context.Background(),
		Rows:     rows,
		Enricher: testutil.NewScriptedEnricher(),
	}
}

func TestAssertRowState(t *testing.T) {
	done := testutil.Done(testutil.Mail("m1", "Interview"), "schedule")
	actx := assertionContext(done, testutil.Mail("m2", "Offer"))

	tests := []struct {
		name    string
		a       Assertion
		wantErr string
	}{
		{
			name: "match",
			a:    Assertion{Type: AssertRowState, Where: map[string]string{"message_id": "m1"}, Expect: map[string]string{"llm_status": "DONE", "next_action": "schedule"}},
		},
		{
			name:    "no row",
			a:       Assertion{Type: AssertRowState, Where: map[string]string{"message_id": "m9"}, Expect: map[string]string{"llm_status": "DONE"}},
			wantErr: "no matching row",
		},
		{
			name:    "mismatch",
			a:       Assertion{Type: AssertRowState, Where: map[string]string{"message_id": "m2"}, Expect: map[string]string{"llm_status": "DONE"}},
			wantErr: `Actual: llm_status = "NEW"`,
		},
		{
			name: "identity key column",
			a:    Assertion{Type: AssertRowState, Where: map[string]string{"identity_key": done.Key()}, Expect: map[string]string{"subject": "Interview"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := EvaluateAssertions([]Assertion{tt.a}, actx)
			if tt.wantErr == "" {
				assert.Empty(t, errs)
				return
			}
			require.Len(t, errs, 1)
			assert.Contains(t, errs[0], tt.wantErr)
			assert.Contains(t, errs[0], "Local rows:")
		})
	}
}

func TestAssertCounts(t *testing.T) {
	actx := assertionContext(testutil.Mails(3)...)

	errs := EvaluateAssertions([]Assertion{
		{Type: AssertRowCount, Count: 3},
		{Type: AssertRowCount, Where: map[string]string{"llm_status": "NEW"}, Count: 3},
		{Type: AssertRecordCount, Count: 0},
		{Type: AssertEnrichCalls, Count: 0},
	}, actx)
	assert.Empty(t, errs)

	errs = EvaluateAssertions([]Assertion{{Type: AssertRecordCount, Count: 1}}, actx)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "Expected: 1 external records")
	assert.Contains(t, errs[0], "Actual: 0")
}

func TestAssertionError_Format(t *testing.T) {
	err := &AssertionError{
		Type:     AssertRowCount,
		Expected: "2 local rows",
		Actual:   "1",
		Rows:     []model.Row{testutil.Mail("m1", "Hello")},
	}

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: row_count")
	assert.Contains(t, msg, "Expected: 2 local rows")
	assert.Contains(t, msg, `[0] m1 NEW "Hello"`)
}

func TestDescribe_Sorted(t *testing.T) {
	assert.Equal(t, `a="1" b="2"`, describe(map[string]string{"b": "2", "a": "1"}))
}
