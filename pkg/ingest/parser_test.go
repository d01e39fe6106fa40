package ingest

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func outputLine(t *testing.T, customID string, statusCode int, text string) string {
	t.Helper()
	body := responsesBody{Output: []responsesOutputItem{{
		Type:    "message",
		Content: []responsesContentPart{{Type: "output_text", Text: text}},
	}}}
	rawBody, err := json.Marshal(body)
	require.NoError(t, err)
	line, err := json.Marshal(map[string]any{
		"custom_id": customID,
		"response":  map[string]any{"status_code": statusCode, "body": json.RawMessage(rawBody)},
	})
	require.NoError(t, err)
	return string(line)
}

func labelCSV() string {
	return "7,8,5,2,Portugal,unknown,25-34,model,beauty,skincare,travel,fashion,fitness,food,makeup,style,selfcare,wellness"
}

func TestParseBatchOutputHappyPath(t *testing.T) {
	content := outputLine(t, "profile-insta_000001", 200, "Here are the labels:\n"+labelCSV())

	rows := ParseBatchOutput([]byte(content))
	require.Len(t, rows, 1)
	r := rows[0]

	assert.Equal(t, "insta_000001", r.LanceDBID)
	assert.Empty(t, r.ProcessingError)

	score, ok := r.IndividualVsOrg.Get()
	require.True(t, ok)
	assert.Equal(t, 7, score)
	score, ok = r.RelationshipStatus.Get()
	require.True(t, ok)
	assert.Equal(t, 2, score)

	assert.Equal(t, "Portugal", r.Location)
	assert.Equal(t, "model", r.Occupation)
	assert.Equal(t, "beauty", r.Keywords[0])
	assert.Equal(t, "wellness", r.Keywords[9])
	assert.NotEmpty(t, r.RawResponse)
}

func TestParseBatchOutputClampsScores(t *testing.T) {
	fields := []string{"15", "-4", "3.6", "not-a-number"}
	fields = append(fields, "loc", "eth", "age", "occ")
	for i := 0; i < 10; i++ {
		fields = append(fields, fmt.Sprintf("kw%d", i))
	}
	content := outputLine(t, "profile-x_000001", 200, strings.Join(fields, ","))

	rows := ParseBatchOutput([]byte(content))
	require.Len(t, rows, 1)
	r := rows[0]
	assert.Empty(t, r.ProcessingError)

	v, _ := r.IndividualVsOrg.Get()
	assert.Equal(t, 10, v)
	v, _ = r.GenerationalAppeal.Get()
	assert.Equal(t, 0, v)
	v, _ = r.Professionalization.Get()
	assert.Equal(t, 4, v)
	assert.False(t, r.RelationshipStatus.Valid)
}

func TestParseBatchOutputFieldDeficit(t *testing.T) {
	content := outputLine(t, "profile-x_000001", 200, "1,2,3")
	rows := ParseBatchOutput([]byte(content))
	require.Len(t, rows, 1)
	assert.Contains(t, rows[0].ProcessingError, "field_deficit")
	assert.NotEmpty(t, rows[0].RawResponse)
}

func TestParseBatchOutputNonOKStatus(t *testing.T) {
	content := outputLine(t, "profile-x_000002", 429, labelCSV())
	rows := ParseBatchOutput([]byte(content))
	require.Len(t, rows, 1)
	assert.Equal(t, "status_429", rows[0].ProcessingError)
	assert.Equal(t, "x_000002", rows[0].LanceDBID)
}

func TestParseBatchOutputNoCommaLine(t *testing.T) {
	content := outputLine(t, "profile-x_000003", 200, "no structured answer here")
	rows := ParseBatchOutput([]byte(content))
	require.Len(t, rows, 1)
	assert.Equal(t, errNoCSVLine.Error(), rows[0].ProcessingError)
}

func TestParseBatchOutputMalformedLineDoesNotAbortFile(t *testing.T) {
	good := outputLine(t, "profile-a_000001", 200, labelCSV())
	content := "{not json at all\n" + good + "\n"

	rows := ParseBatchOutput([]byte(content))
	require.Len(t, rows, 2)
	assert.Contains(t, rows[0].ProcessingError, "invalid_json")
	assert.Empty(t, rows[1].ProcessingError)
	assert.Equal(t, "a_000001", rows[1].LanceDBID)
}

func TestParseBatchOutputErrorEnvelope(t *testing.T) {
	line, err := json.Marshal(map[string]any{
		"custom_id": "profile-b_000001",
		"error":     map[string]any{"message": "request expired"},
	})
	require.NoError(t, err)

	rows := ParseBatchOutput(line)
	require.Len(t, rows, 1)
	assert.Equal(t, "batch_error: request expired", rows[0].ProcessingError)
}

func TestLabelRowsCSVRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/labels.csv"

	content := outputLine(t, "profile-rt_000001", 200, labelCSV())
	rows := ParseBatchOutput([]byte(content))
	require.NoError(t, writeLabelRowsCSV(path, rows))

	back, err := readLabelRowsCSV(path)
	require.NoError(t, err)
	got, ok := back["rt_000001"]
	require.True(t, ok)
	assert.Equal(t, rows[0].Location, got.Location)
	assert.Equal(t, rows[0].Keywords, got.Keywords)
	v, _ := got.IndividualVsOrg.Get()
	assert.Equal(t, 7, v)
}
