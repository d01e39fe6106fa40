package ingest

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/creatorindex/creatord/pkg/domain"
	"github.com/creatorindex/creatord/pkg/fnkit"
	"github.com/creatorindex/creatord/pkg/normalize"
)

// PrepareOptions configures Step 1.
type PrepareOptions struct {
	OutDir     string
	Namespace  string
	ChunkSize  int
	PromptPath string
	Model      string
	Force      bool
}

func (o PrepareOptions) withDefaults() PrepareOptions {
	if o.ChunkSize <= 0 {
		o.ChunkSize = 20000
	}
	if o.Model == "" {
		o.Model = "gpt-4o-mini"
	}
	return o
}

// requestEnvelope is one line of a chunk's newline-delimited JSON request
// file: `{custom_id, method, url, body}`.
type requestEnvelope struct {
	CustomID string          `json:"custom_id"`
	Method   string          `json:"method"`
	URL      string          `json:"url"`
	Body     json.RawMessage `json:"body"`
}

type batchRequestBody struct {
	Model    string              `json:"model"`
	Messages []batchChatMessage  `json:"messages"`
}

type batchChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChunkFile describes one prepared chunk on disk.
type ChunkFile struct {
	ChunkNumber int
	Path        string
	MetadataPath string
	RowCount    int
	CacheHit    bool
}

type chunkMetadata struct {
	RowCount          int    `json:"row_count"`
	SourceHash        string `json:"source_hash"`
	PromptFingerprint string `json:"prompt_fingerprint"`
}

// PrepareResult is Step 1's output: one ChunkFile per partition, plus the
// lance_db_id assignment file covering every English row.
type PrepareResult struct {
	Chunks       []ChunkFile
	AssignedPath string
}

// labeledRow is one English-filtered CSV row with its assigned lance_db_id
// and the profile normalize.Normalize recovered from it, used to build the
// prompt's handle/name/bio/caption-location context.
type labeledRow struct {
	LanceDBID string
	Fields    map[string]string
	Profile   *domain.CanonicalProfile
}

// Prepare assigns stable lance_db_ids to every row of englishCSVPath
// (`{namespace}_000001`, `{namespace}_000002`, ...), partitions them into
// ChunkSize-row groups, and writes one newline-delimited JSON request file
// per chunk built from promptPath's template. A chunk whose
// persisted {row_count, source_hash, prompt_fingerprint} still matches the
// input is left untouched (cache hit).
func Prepare(englishCSVPath string, opts PrepareOptions) (*PrepareResult, error) {
	opts = opts.withDefaults()
	if opts.Namespace == "" {
		opts.Namespace = Namespace(englishCSVPath)
	}
	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	promptTemplate, err := os.ReadFile(opts.PromptPath)
	if err != nil {
		return nil, fmt.Errorf("read prompt template: %w", err)
	}
	fingerprint := promptFingerprint(opts.PromptPath, promptTemplate)

	rows, header, err := readLabeledRows(englishCSVPath, opts.Namespace)
	if err != nil {
		return nil, err
	}

	assignedPath := filepath.Join(opts.OutDir, opts.Namespace+"_with_lance_id.csv")
	if err := writeAssignedCSV(assignedPath, header, rows); err != nil {
		return nil, err
	}

	chunks := fnkit.Chunk(rows, opts.ChunkSize)
	result := &PrepareResult{AssignedPath: assignedPath}
	for i, chunk := range chunks {
		chunkNumber := i + 1
		cf, err := prepareChunk(opts, chunkNumber, chunk, string(promptTemplate), fingerprint)
		if err != nil {
			return nil, fmt.Errorf("prepare chunk %d: %w", chunkNumber, err)
		}
		result.Chunks = append(result.Chunks, *cf)
	}
	return result, nil
}

func readLabeledRows(path, namespace string) ([]labeledRow, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open english csv: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(bufio.NewReader(f))
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read english csv header: %w", err)
	}

	var rows []labeledRow
	seq := 0
	for {
		record, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, nil, fmt.Errorf("read english csv row: %w", err)
		}
		seq++
		fields := rowToStringMap(header, record)
		profile, err := normalize.Normalize(stringMapToAny(fields), "")
		if err != nil {
			profile = &domain.CanonicalProfile{}
		}
		rows = append(rows, labeledRow{
			LanceDBID: fmt.Sprintf("%s_%06d", namespace, seq),
			Fields:    fields,
			Profile:   profile,
		})
	}
	return rows, header, nil
}

func stringMapToAny(fields map[string]string) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func rowToStringMap(header, record []string) map[string]string {
	out := make(map[string]string, len(header))
	for i, h := range header {
		if i < len(record) {
			out[h] = record[i]
		} else {
			out[h] = ""
		}
	}
	return out
}

func writeAssignedCSV(path string, header []string, rows []labeledRow) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create assigned csv: %w", err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	defer w.Flush()

	outHeader := append([]string{"lance_db_id"}, header...)
	if err := w.Write(outHeader); err != nil {
		return err
	}
	for _, row := range rows {
		record := make([]string, 0, len(outHeader))
		record = append(record, row.LanceDBID)
		for _, h := range header {
			record = append(record, row.Fields[h])
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func prepareChunk(opts PrepareOptions, chunkNumber int, rows []labeledRow, promptTemplate, fingerprint string) (*ChunkFile, error) {
	chunkPath := filepath.Join(opts.OutDir, fmt.Sprintf("%s_batch_%03d.jsonl", opts.Namespace, chunkNumber))
	metadataPath := chunkPath + ".metadata.json"

	sourceHash := chunkSourceHash(rows)
	if !opts.Force {
		var meta chunkMetadata
		if ok, _ := readJSON(metadataPath, &meta); ok {
			if meta.RowCount == len(rows) && meta.SourceHash == sourceHash && meta.PromptFingerprint == fingerprint {
				if _, err := os.Stat(chunkPath); err == nil {
					return &ChunkFile{ChunkNumber: chunkNumber, Path: chunkPath, MetadataPath: metadataPath, RowCount: len(rows), CacheHit: true}, nil
				}
			}
		}
	}

	f, err := os.Create(chunkPath)
	if err != nil {
		return nil, fmt.Errorf("create chunk file: %w", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	for _, row := range rows {
		prompt := interpolatePrompt(promptTemplate, row)
		body := batchRequestBody{
			Model: opts.Model,
			Messages: []batchChatMessage{
				{Role: "user", Content: prompt},
			},
		}
		rawBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body for %s: %w", row.LanceDBID, err)
		}
		envelope := requestEnvelope{
			CustomID: "profile-" + row.LanceDBID,
			Method:   "POST",
			URL:      "/v1/responses",
			Body:     rawBody,
		}
		line, err := json.Marshal(envelope)
		if err != nil {
			return nil, fmt.Errorf("marshal envelope for %s: %w", row.LanceDBID, err)
		}
		if _, err := w.Write(line); err != nil {
			return nil, err
		}
		if err := w.WriteByte('\n'); err != nil {
			return nil, err
		}
	}
	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("flush chunk file: %w", err)
	}

	meta := chunkMetadata{RowCount: len(rows), SourceHash: sourceHash, PromptFingerprint: fingerprint}
	if err := writeJSONAtomic(metadataPath, meta); err != nil {
		return nil, fmt.Errorf("write chunk metadata: %w", err)
	}
	return &ChunkFile{ChunkNumber: chunkNumber, Path: chunkPath, MetadataPath: metadataPath, RowCount: len(rows)}, nil
}

func chunkSourceHash(rows []labeledRow) string {
	var b strings.Builder
	for _, row := range rows {
		b.WriteString(row.LanceDBID)
		b.WriteByte(0)
	}
	return contentHash([]byte(b.String()))
}

// interpolatePrompt substitutes per-row context into a template containing
// `{{handle}}`, `{{name}}`, `{{bio}}`, and up to 9 `{{caption_N}}` /
// `{{location_N}}` placeholders drawn from the row's normalized profile —
// a plain string.Replacer rather than a templating library, since none of
// this service's stack pulls one in and the substitution set is small and
// fixed (see DESIGN.md).
func interpolatePrompt(template string, row labeledRow) string {
	p := row.Profile
	replacements := []string{
		"{{handle}}", p.Username,
		"{{name}}", p.DisplayName,
		"{{bio}}", p.Biography,
	}
	for i := 0; i < maxSampleCaptions; i++ {
		var caption, location string
		if i < len(p.Posts) {
			caption = p.Posts[i].Caption
			location = p.Posts[i].LocationName
		}
		replacements = append(replacements,
			fmt.Sprintf("{{caption_%d}}", i+1), caption,
			fmt.Sprintf("{{location_%d}}", i+1), location,
		)
	}
	return strings.NewReplacer(replacements...).Replace(template)
}
