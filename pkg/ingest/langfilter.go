package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/creatorindex/creatord/pkg/langdetect"
	"github.com/creatorindex/creatord/pkg/normalize"
)

const (
	captionTruncateChars = 120
	maxSampleCaptions    = 9
)

// LanguageFilterOptions configures Step 0.
type LanguageFilterOptions struct {
	OutDir       string
	MinTextChars int
	BatchSize    int
	Version      string
	PlatformHint string
	Force        bool
}

func (o LanguageFilterOptions) withDefaults() LanguageFilterOptions {
	if o.MinTextChars <= 0 {
		o.MinTextChars = 40
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 20000
	}
	if o.Version == "" {
		o.Version = "v1"
	}
	return o
}

// LanguageFilterResult summarizes Step 0's output.
type LanguageFilterResult struct {
	EnglishCSVPath  string
	ExcludedCSVPath string
	MetadataPath    string
	EnglishCount    int
	ExcludedCount   int
	TotalRows       int
	CacheHit        bool
}

type languageFilterMetadata struct {
	HashOfInput   string `json:"hash_of_input"`
	Version       string `json:"version"`
	BatchSize     int    `json:"batch_size"`
	TotalRows     int    `json:"total_rows"`
	EnglishCount  int    `json:"english_count"`
	ExcludedCount int    `json:"excluded_count"`
}

// LanguageFilter streams csvPath row-by-row, builds a short "language
// sample" from each row's biography plus up to 9 post captions, and keeps
// rows whose sample is either too short to judge or detected English
// too short to judge or detected English. Results are cached by
// {hash_of_input, version, batch_size}:
// an unchanged re-run reuses the prior english.csv/excluded.csv without
// re-reading the source rows.
func LanguageFilter(_ context.Context, csvPath string, opts LanguageFilterOptions, detector langdetect.Detector) (*LanguageFilterResult, error) {
	opts = opts.withDefaults()
	if detector == nil {
		detector = langdetect.NewHeuristic()
	}
	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	englishPath := filepath.Join(opts.OutDir, "english_profiles_with_lance_id.csv")
	excludedPath := filepath.Join(opts.OutDir, "excluded_profiles.csv")
	metadataPath := filepath.Join(opts.OutDir, "metadata.json")

	hash, err := hashFile(csvPath)
	if err != nil {
		return nil, fmt.Errorf("hash input csv: %w", err)
	}

	if !opts.Force {
		if hit, res := checkLanguageFilterCache(metadataPath, englishPath, excludedPath, hash, opts); hit {
			slog.Info("using cached language filter outputs", "namespace", Namespace(csvPath))
			return res, nil
		}
	}

	in, err := os.Open(csvPath)
	if err != nil {
		return nil, fmt.Errorf("open input csv: %w", err)
	}
	defer in.Close()

	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	englishFile, err := os.Create(englishPath)
	if err != nil {
		return nil, fmt.Errorf("create english csv: %w", err)
	}
	defer englishFile.Close()
	excludedFile, err := os.Create(excludedPath)
	if err != nil {
		return nil, fmt.Errorf("create excluded csv: %w", err)
	}
	defer excludedFile.Close()

	englishWriter := csv.NewWriter(englishFile)
	excludedWriter := csv.NewWriter(excludedFile)
	defer englishWriter.Flush()
	defer excludedWriter.Flush()

	if err := englishWriter.Write(header); err != nil {
		return nil, err
	}
	if err := excludedWriter.Write(header); err != nil {
		return nil, err
	}

	res := &LanguageFilterResult{EnglishCSVPath: englishPath, ExcludedCSVPath: excludedPath, MetadataPath: metadataPath}
	for {
		record, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read csv row %d: %w", res.TotalRows+1, err)
		}
		res.TotalRows++

		row := rowToMap(header, record)
		sample := buildLanguageSample(row, opts.PlatformHint)
		keep := len(sample) < opts.MinTextChars || detector.IsEnglish(sample)

		if keep {
			res.EnglishCount++
			if err := englishWriter.Write(record); err != nil {
				return nil, err
			}
		} else {
			res.ExcludedCount++
			if err := excludedWriter.Write(record); err != nil {
				return nil, err
			}
		}
	}

	englishWriter.Flush()
	excludedWriter.Flush()
	if err := englishWriter.Error(); err != nil {
		return nil, err
	}
	if err := excludedWriter.Error(); err != nil {
		return nil, err
	}

	meta := languageFilterMetadata{
		HashOfInput:   hash,
		Version:       opts.Version,
		BatchSize:     opts.BatchSize,
		TotalRows:     res.TotalRows,
		EnglishCount:  res.EnglishCount,
		ExcludedCount: res.ExcludedCount,
	}
	if err := writeJSONAtomic(metadataPath, meta); err != nil {
		return nil, fmt.Errorf("write metadata: %w", err)
	}
	return res, nil
}

func checkLanguageFilterCache(metadataPath, englishPath, excludedPath, hash string, opts LanguageFilterOptions) (bool, *LanguageFilterResult) {
	var meta languageFilterMetadata
	ok, err := readJSON(metadataPath, &meta)
	if err != nil || !ok {
		return false, nil
	}
	if meta.HashOfInput != hash || meta.Version != opts.Version || meta.BatchSize != opts.BatchSize {
		return false, nil
	}
	if _, err := os.Stat(englishPath); err != nil {
		return false, nil
	}
	if _, err := os.Stat(excludedPath); err != nil {
		return false, nil
	}
	return true, &LanguageFilterResult{
		EnglishCSVPath: englishPath, ExcludedCSVPath: excludedPath, MetadataPath: metadataPath,
		EnglishCount: meta.EnglishCount, ExcludedCount: meta.ExcludedCount, TotalRows: meta.TotalRows,
		CacheHit: true,
	}
}

// buildLanguageSample constructs bio + up to 9 truncated post captions from
// a raw CSV row, reusing the C1 normalizer so the sample reflects the same
// field-priority rules the rest of the pipeline uses rather than a
// bespoke column lookup.
func buildLanguageSample(row map[string]any, platformHint string) string {
	profile, err := normalize.Normalize(row, platformHint)
	if err != nil {
		return ""
	}
	var parts []string
	if profile.Biography != "" {
		parts = append(parts, profile.Biography)
	}
	for i, post := range profile.Posts {
		if i >= maxSampleCaptions {
			break
		}
		if post.Caption == "" {
			continue
		}
		parts = append(parts, truncate(post.Caption, captionTruncateChars))
	}
	return strings.Join(parts, " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func rowToMap(header, record []string) map[string]any {
	out := make(map[string]any, len(header))
	for i, h := range header {
		if i < len(record) {
			out[h] = record[i]
		} else {
			out[h] = ""
		}
	}
	return out
}

