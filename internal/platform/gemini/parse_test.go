package gemini

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/taskflow-api/internal/domain"
	"github.com/phrazzld/taskflow-api/internal/service/command"
)

func TestParseCreateCommand(t *testing.T) {
	raw := `{
		"action": "create",
		"title": "Water the plants",
		"priority": "low",
		"tags": ["home"],
		"due_at": "2025-03-01T17:00:00Z",
		"remind_at": "2025-03-01T16:00:00Z",
		"recurrence": {"pattern": "weekly"}
	}`

	cmd, clarification, err := parseCommand(raw)
	require.NoError(t, err)
	require.Nil(t, clarification)

	create, ok := cmd.(command.CreateCommand)
	require.True(t, ok)
	assert.Equal(t, "Water the plants", create.Title)
	assert.Equal(t, domain.PriorityLow, create.Priority)
	assert.Equal(t, []string{"home"}, create.Tags)
	require.NotNil(t, create.DueAt)
	assert.True(t, create.DueAt.Equal(time.Date(2025, 3, 1, 17, 0, 0, 0, time.UTC)))
	require.NotNil(t, create.Recurrence)
	assert.Equal(t, domain.RecurWeekly, create.Recurrence.Pattern)
}

func TestParseCompleteCommand(t *testing.T) {
	id := uuid.New()
	cmd, _, err := parseCommand(`{"action":"complete","task_id":"` + id.String() + `","version":3}`)
	require.NoError(t, err)

	complete, ok := cmd.(command.CompleteCommand)
	require.True(t, ok)
	assert.Equal(t, id, complete.TaskID)
	assert.Equal(t, int64(3), complete.Version)
}

func TestParseUpdateCommandPartialPatch(t *testing.T) {
	id := uuid.New()
	raw := `{"action":"update","task_id":"` + id.String() + `","version":2,
		"title":"Renamed","clear_remind_at":true}`

	cmd, _, err := parseCommand(raw)
	require.NoError(t, err)

	update, ok := cmd.(command.UpdateCommand)
	require.True(t, ok)
	require.NotNil(t, update.Patch.Title)
	assert.Equal(t, "Renamed", *update.Patch.Title)
	assert.Nil(t, update.Patch.Description)
	assert.Nil(t, update.Patch.Priority)
	assert.True(t, update.Patch.ClearRemindAt)
}

func TestParseClarification(t *testing.T) {
	cmd, clarification, err := parseCommand(`{"action":"clarify","question":"Which task do you mean?"}`)
	require.NoError(t, err)
	assert.Nil(t, cmd)
	require.NotNil(t, clarification)
	assert.Equal(t, "Which task do you mean?", clarification.Question)
}

func TestParseListWithFilters(t *testing.T) {
	cmd, _, err := parseCommand(`{"action":"list","status":"pending","priority":"high","tags":["work"]}`)
	require.NoError(t, err)

	list, ok := cmd.(command.ListCommand)
	require.True(t, ok)
	assert.Equal(t, domain.StatusPending, list.Query.Status)
	assert.Equal(t, domain.PriorityHigh, list.Query.Priority)
	assert.Equal(t, []string{"work"}, list.Query.Tags)
}

func TestParseSearch(t *testing.T) {
	cmd, _, err := parseCommand(`{"action":"search","query":"dentist"}`)
	require.NoError(t, err)

	search, ok := cmd.(command.SearchCommand)
	require.True(t, ok)
	assert.Equal(t, "dentist", search.Term)
}

func TestParseStripsCodeFences(t *testing.T) {
	raw := "```json\n{\"action\":\"search\",\"query\":\"dentist\"}\n```"
	cmd, _, err := parseCommand(raw)
	require.NoError(t, err)
	_, ok := cmd.(command.SearchCommand)
	assert.True(t, ok)
}

func TestParseRejectsUnknownAction(t *testing.T) {
	_, _, err := parseCommand(`{"action":"explode"}`)
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestParseRejectsBadTaskID(t *testing.T) {
	_, _, err := parseCommand(`{"action":"delete","task_id":"not-a-uuid","version":1}`)
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	_, _, err := parseCommand(`complete the dentist task`)
	assert.ErrorIs(t, err, ErrInvalidResponse)
}
