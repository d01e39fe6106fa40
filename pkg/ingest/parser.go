package ingest

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/creatorindex/creatord/pkg/domain"
)

// LabelRow is one parsed output line: the four integer LLM scores, the
// four free-text fields, and up to ten keyword fields, keyed back to its
// originating row by LanceDBID (recovered from custom_id). RawResponse is
// preserved on every row, successful or not.
type LabelRow struct {
	LanceDBID           string
	IndividualVsOrg     domain.Optional[int]
	GenerationalAppeal  domain.Optional[int]
	Professionalization domain.Optional[int]
	RelationshipStatus  domain.Optional[int]
	Location            string
	Ethnicity            string
	Age                  string
	Occupation           string
	Keywords             [10]string
	ProcessingError      string
	RawResponse          string
}

// batchOutputLine is one line of the batch API's output JSONL: the
// `custom_id` the request was submitted with, plus a response envelope
// whose shape follows the OpenAI-batch-API-style `/v1/responses` output
// (status code + a message list with output_text content parts).
type batchOutputLine struct {
	CustomID string              `json:"custom_id"`
	Response *batchOutputResponse `json:"response"`
	Error    *batchOutputError   `json:"error"`
}

type batchOutputResponse struct {
	StatusCode int             `json:"status_code"`
	Body       json.RawMessage `json:"body"`
}

type batchOutputError struct {
	Message string `json:"message"`
}

type responsesBody struct {
	Output []responsesOutputItem `json:"output"`
}

type responsesOutputItem struct {
	Type    string                 `json:"type"`
	Content []responsesContentPart `json:"content"`
}

type responsesContentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

const expectedLabelFields = 18

// ParseBatchOutput parses a completed batch's raw JSONL output content into
// one LabelRow per line. A line that fails to parse at any
// stage still yields a LabelRow with ProcessingError set and RawResponse
// preserved, rather than aborting the whole file — a malformed completion
// for one profile must never lose every other profile's labels.
func ParseBatchOutput(content []byte) []LabelRow {
	var rows []LabelRow
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		rows = append(rows, parseBatchOutputLine(line))
	}
	return rows
}

func parseBatchOutputLine(line []byte) LabelRow {
	raw := string(line)
	var out LabelRow
	out.RawResponse = raw

	var parsed batchOutputLine
	if err := json.Unmarshal(line, &parsed); err != nil {
		out.ProcessingError = "invalid_json: " + err.Error()
		return out
	}
	out.LanceDBID = lanceIDFromCustomID(parsed.CustomID)

	if parsed.Error != nil {
		out.ProcessingError = "batch_error: " + parsed.Error.Message
		return out
	}
	if parsed.Response == nil {
		out.ProcessingError = "missing_response"
		return out
	}
	if parsed.Response.StatusCode != 200 {
		out.ProcessingError = "status_" + strconv.Itoa(parsed.Response.StatusCode)
		return out
	}

	var body responsesBody
	if err := json.Unmarshal(parsed.Response.Body, &body); err != nil {
		out.ProcessingError = "invalid_body: " + err.Error()
		return out
	}
	text := firstOutputText(body)
	if text == "" {
		out.ProcessingError = "empty_output"
		return out
	}

	fields, err := extractCSVFields(text)
	if err != nil {
		out.ProcessingError = err.Error()
		return out
	}
	if len(fields) < expectedLabelFields {
		out.ProcessingError = "field_deficit: got " + strconv.Itoa(len(fields)) + " want " + strconv.Itoa(expectedLabelFields)
		return out
	}

	applyLabelFields(&out, fields)
	return out
}

func lanceIDFromCustomID(customID string) string {
	return strings.TrimPrefix(customID, "profile-")
}

// firstOutputText returns the text of the first message-type output item's
// first output_text content part, the `/v1/responses` shape's analog of
// "the first output message's text".
func firstOutputText(body responsesBody) string {
	for _, item := range body.Output {
		if item.Type != "message" {
			continue
		}
		for _, part := range item.Content {
			if part.Text != "" {
				return part.Text
			}
		}
	}
	return ""
}

// extractCSVFields finds the first line in text containing a comma and
// parses it as one CSV record; the completion's preamble lines (if any)
// carry no fields.
func extractCSVFields(text string) ([]string, error) {
	for _, line := range strings.Split(text, "\n") {
		if !strings.Contains(line, ",") {
			continue
		}
		r := csv.NewReader(strings.NewReader(line))
		r.FieldsPerRecord = -1
		record, err := r.Read()
		if err != nil {
			return nil, err
		}
		return record, nil
	}
	return nil, errNoCSVLine
}

var errNoCSVLine = csvParseError("no comma-containing line found in completion text")

type csvParseError string

func (e csvParseError) Error() string { return string(e) }

// applyLabelFields maps an >=18-field CSV record onto a LabelRow: 4
// integer scores clamped to [0,10], 4 text fields, then 10 keywords.
func applyLabelFields(out *LabelRow, fields []string) {
	scores := [4]domain.Optional[int]{}
	for i := 0; i < 4; i++ {
		scores[i] = parseClampedScore(fields[i])
	}
	out.IndividualVsOrg = scores[0]
	out.GenerationalAppeal = scores[1]
	out.Professionalization = scores[2]
	out.RelationshipStatus = scores[3]

	out.Location = strings.TrimSpace(fields[4])
	out.Ethnicity = strings.TrimSpace(fields[5])
	out.Age = strings.TrimSpace(fields[6])
	out.Occupation = strings.TrimSpace(fields[7])

	for i := 0; i < 10 && 8+i < len(fields); i++ {
		out.Keywords[i] = strings.TrimSpace(fields[8+i])
	}
}

func parseClampedScore(s string) domain.Optional[int] {
	s = strings.TrimSpace(s)
	if s == "" {
		return domain.None[int]()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return domain.None[int]()
	}
	v := int(f + 0.5)
	if v < 0 {
		v = 0
	}
	if v > 10 {
		v = 10
	}
	return domain.Some(v)
}
