package enrich_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/jobtrail/internal/enrich"
	"github.com/roach88/jobtrail/internal/model"
	"github.com/roach88/jobtrail/internal/schema"
	"github.com/roach88/jobtrail/internal/testutil"
)

func newDriver(e enrich.Enricher) *enrich.Driver {
	clock := testutil.NewStepClock(time.Time{}, time.Second)
	return enrich.New(e, schema.MustLoad(), enrich.WithClock(clock))
}

func TestRun_AllSucceed(t *testing.T) {
	e := testutil.NewScriptedEnricher().On("m2", testutil.Response{Fields: map[string]any{
		"next_action": "schedule",
		"priority":    float64(2),
		"category":    "interview",
	}})
	rows := testutil.Mails(3)
	rows[1].ErrorMsg = "left over from a reset"

	out, outcomes := newDriver(e).Run(context.Background(), rows)

	require.Len(t, outcomes, 3)
	for i, o := range outcomes {
		assert.True(t, o.OK(), "row %d", i)
		assert.Equal(t, i, o.Index)
		assert.Equal(t, rows[i].Key(), o.Key)
		assert.Equal(t, model.StatusDone, out[i].Status)
	}
	assert.Equal(t, "2026-03-01T09:00:00Z", out[0].ProcessedUTC)
	assert.Equal(t, "2026-03-01T09:00:01Z", out[1].ProcessedUTC)
	assert.Equal(t, "schedule", out[1].Enrichment["next_action"])
	assert.Equal(t, "2", out[1].Enrichment["priority"])
	assert.Equal(t, "interview", out[1].Enrichment["category"])
	assert.Empty(t, out[1].ErrorMsg)
	assert.Equal(t, 3, e.CallCount())
}

func TestRun_InvalidNextAction(t *testing.T) {
	e := testutil.NewScriptedEnricher().On("m2", testutil.Response{Fields: map[string]any{"next_action": "banana"}})
	rows := testutil.Mails(3)

	out, outcomes := newDriver(e).Run(context.Background(), rows)

	assert.Equal(t, model.StatusError, out[1].Status)
	assert.Contains(t, out[1].ErrorMsg, "next_action invalid: banana")
	assert.NotEmpty(t, out[1].ProcessedUTC)
	assert.Empty(t, out[1].Enrichment, "rejected result is not merged")

	require.Len(t, outcomes, 3)
	require.NotNil(t, outcomes[1].Err)
	assert.Equal(t, model.KindValidation, outcomes[1].Err.Kind)

	assert.Equal(t, model.StatusDone, out[0].Status)
	assert.Equal(t, model.StatusDone, out[2].Status)
}

func TestRun_InvalidFieldNamesFieldAndValue(t *testing.T) {
	e := testutil.NewScriptedEnricher().On("m1", testutil.Response{Fields: map[string]any{
		"next_action": "reply",
		"category":    "spam",
	}})

	out, outcomes := newDriver(e).Run(context.Background(), testutil.Mails(1))

	assert.Equal(t, model.StatusError, out[0].Status)
	assert.Equal(t, "category invalid: spam", out[0].ErrorMsg)
	assert.Empty(t, out[0].Enrichment)
	require.NotNil(t, outcomes[0].Err)
	assert.Equal(t, model.KindValidation, outcomes[0].Err.Kind)
}

func TestRun_LooseValuesAreNormalized(t *testing.T) {
	e := testutil.NewScriptedEnricher().On("m1", testutil.Response{Fields: map[string]any{
		"next_action": "schedule",
		"priority":    "2",
		"category":    "Interview",
	}}).On("m2", testutil.Response{Fields: map[string]any{
		"next_action": "reply",
		"priority":    2.5,
	}})

	out, outcomes := newDriver(e).Run(context.Background(), testutil.Mails(2))

	for i, o := range outcomes {
		require.True(t, o.OK(), "row %d: %v", i, o.Err)
	}
	assert.Equal(t, "2", out[0].Enrichment["priority"])
	assert.Equal(t, "interview", out[0].Enrichment["category"])
	assert.Equal(t, "3", out[1].Enrichment["priority"])
}

func TestRun_FailureIsolation(t *testing.T) {
	e := testutil.NewScriptedEnricher().
		On("m2", testutil.Response{Err: errors.New("rate limited")}).
		On("m3", testutil.Response{Panic: "nil map write"}).
		On("m4", testutil.Response{Fields: map[string]any{"summary": "no action"}})
	rows := testutil.Mails(6)

	out, outcomes := newDriver(e).Run(context.Background(), rows)

	require.Len(t, outcomes, 6)
	for i := range out {
		assert.Contains(t, []model.Status{model.StatusDone, model.StatusError}, out[i].Status, "row %d", i)
	}

	assert.Equal(t, model.KindCollaborator, outcomes[1].Err.Kind)
	assert.Equal(t, "rate limited", out[1].ErrorMsg)

	assert.Equal(t, model.KindPanic, outcomes[2].Err.Kind)
	assert.Equal(t, "panic: nil map write", out[2].ErrorMsg)

	assert.Equal(t, model.KindValidation, outcomes[3].Err.Kind)
	assert.Equal(t, "next_action invalid: <missing>", out[3].ErrorMsg)

	assert.Equal(t, model.StatusDone, out[4].Status)
	assert.Equal(t, model.StatusDone, out[5].Status)
	assert.Equal(t, 6, e.CallCount())
}

func TestRun_SelectsNewAndEmptyOnly(t *testing.T) {
	rows := testutil.Mails(5)
	rows[0].Status = ""
	rows[1] = testutil.Done(rows[1], "archive")
	rows[2].Status = model.StatusError
	rows[2].ErrorMsg = "old failure"
	rows[3].Status = model.StatusPending
	rows[4].Status = "new"

	e := testutil.NewScriptedEnricher()
	out, outcomes := newDriver(e).Run(context.Background(), rows)

	assert.Equal(t, []int{0, 4}, enrich.Selected(rows))
	require.Len(t, outcomes, 2)
	assert.Equal(t, 0, outcomes[0].Index)
	assert.Equal(t, 4, outcomes[1].Index)

	assert.Equal(t, rows[1], out[1])
	assert.Equal(t, rows[2], out[2])
	assert.Equal(t, rows[3], out[3])
	assert.Equal(t, model.StatusDone, out[4].Status)
}

func TestRun_DoesNotMutateInput(t *testing.T) {
	rows := testutil.Mails(2)
	e := testutil.NewScriptedEnricher()

	out, _ := newDriver(e).Run(context.Background(), rows)

	assert.Equal(t, model.StatusNew, rows[0].Status)
	assert.Nil(t, rows[0].Enrichment)
	assert.Equal(t, model.StatusDone, out[0].Status)
}

func TestRun_IgnoresReservedFields(t *testing.T) {
	e := testutil.NewScriptedEnricher().Default(testutil.Response{Fields: map[string]any{
		"next_action":        "reply",
		"subject":            "rewritten by the model",
		"llm_status":         "NEW",
		"external_record_id": "page-x",
		"sentiment":          "positive",
	}})
	rows := testutil.Mails(1)

	out, _ := newDriver(e).Run(context.Background(), rows)

	assert.Equal(t, "Subject 1", out[0].Intrinsic.Subject)
	assert.Equal(t, model.StatusDone, out[0].Status)
	assert.Empty(t, out[0].ExternalID)
	assert.Equal(t, model.Fields{"next_action": "reply", "sentiment": "positive"}, out[0].Enrichment)
}

func TestRun_InputCarriesSchema(t *testing.T) {
	e := testutil.NewScriptedEnricher()
	rows := testutil.Mails(1)

	newDriver(e).Run(context.Background(), rows)

	calls := e.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, rows[0].Key(), calls[0].Key)
	assert.Equal(t, rows[0].Intrinsic, calls[0].Intrinsic)
	assert.Equal(t, schema.MustLoad().FieldNames()[0], calls[0].Fields[0].Name)
	assert.Contains(t, calls[0].NextActions, "escalate")
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rows := testutil.Mails(3)
	e := testutil.NewScriptedEnricher()

	out, outcomes := newDriver(e).Run(ctx, rows)

	assert.Empty(t, outcomes)
	assert.Zero(t, e.CallCount())
	for _, r := range out {
		assert.Equal(t, model.StatusNew, r.Status)
	}
}

func TestRun_Empty(t *testing.T) {
	out, outcomes := newDriver(testutil.NewScriptedEnricher()).Run(context.Background(), nil)

	assert.Empty(t, out)
	assert.Empty(t, outcomes)
}
