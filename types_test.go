package crm

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Ref
		wantErr bool
	}{
		{name: "null", input: `null`, want: Ref{}},
		{name: "id", input: `7`, want: RefTo(7)},
		{name: "zero", input: `0`, wantErr: true},
		{name: "string", input: `"7"`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Ref
			err := json.Unmarshal([]byte(tt.input), &got)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	data, err := json.Marshal(struct {
		A Ref `json:"a"`
		B Ref `json:"b"`
	}{A: RefTo(3)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":3,"b":null}`, string(data))
}

func TestRefTo(t *testing.T) {
	_, ok := RefTo(0).Get()
	assert.False(t, ok)
	id, ok := RefTo(5).Get()
	assert.True(t, ok)
	assert.Equal(t, int64(5), id)
	assert.Equal(t, "none", Ref{}.String())
	assert.Equal(t, "5", RefTo(5).String())
}

func TestStageStates(t *testing.T) {
	for _, s := range []Stage{StageLead, StageQualified, StageProposal, StageNegotiation} {
		assert.True(t, s.IsOpen(), s)
		assert.False(t, s.IsTerminal(), s)
	}
	assert.True(t, StageClosedWon.IsTerminal())
	assert.True(t, StageClosedLost.IsTerminal())
}

func TestDealPatchDistinguishesAbsentFromNull(t *testing.T) {
	deal := Deal{ID: 1, Title: "Pilot", ContactID: RefTo(2), Value: 100, Stage: StageLead}

	var keep DealPatch
	require.NoError(t, json.Unmarshal([]byte(`{"value":250}`), &keep))
	keep.Apply(&deal)
	assert.Equal(t, 250.0, deal.Value)
	assert.Equal(t, RefTo(2), deal.ContactID)
	assert.Equal(t, "Pilot", deal.Title)

	var clear DealPatch
	require.NoError(t, json.Unmarshal([]byte(`{"contactId":null}`), &clear))
	assert.True(t, clear.ContactID.Set)
	clear.Apply(&deal)
	assert.Equal(t, Ref{}, deal.ContactID)
}

func TestPatchIgnoresID(t *testing.T) {
	contact := Contact{ID: 4, Name: "Old"}
	var patch ContactPatch
	require.NoError(t, json.Unmarshal([]byte(`{"id":99,"name":"New"}`), &patch))
	patch.Apply(&contact)
	assert.Equal(t, int64(4), contact.ID)
	assert.Equal(t, "New", contact.Name)
}

func TestActivityPatchDuration(t *testing.T) {
	d := 30
	activity := Activity{ID: 1, Duration: &d}

	var patch ActivityPatch
	require.NoError(t, json.Unmarshal([]byte(`{"duration":null,"date":"2024-02-01T10:00:00Z"}`), &patch))
	patch.Apply(&activity)
	assert.Nil(t, activity.Duration)
	assert.Equal(t, time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC), activity.Date)
}

func TestTaskPatchApply(t *testing.T) {
	task := Task{ID: 1, Status: TaskPending, Priority: PriorityLow}
	TaskPatch{Status: Some(TaskCompleted), Priority: Some(PriorityHigh)}.Apply(&task)
	assert.Equal(t, TaskCompleted, task.Status)
	assert.Equal(t, PriorityHigh, task.Priority)
}

func TestDeleteResultSuccess(t *testing.T) {
	var nilResult *DeleteResult
	assert.False(t, nilResult.Success())
	assert.True(t, (&DeleteResult{Requested: []int64{1}, Deleted: []int64{1}}).Success())
	assert.False(t, (&DeleteResult{
		Requested: []int64{1, 2},
		Deleted:   []int64{1},
		Failed:    []DeleteFailure{{ID: 2, Code: ErrCodeRecordNotFound}},
	}).Success())
}
