package ingest

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/creatorindex/creatord/pkg/domain"
	"github.com/creatorindex/creatord/pkg/normalize"
)

// canonicalColumns are the flattened CanonicalProfile fields, emitted as
// strings in the CSV stage. The final dataset is written as CSV rather
// than parquet; see DESIGN.md.
var canonicalColumns = []string{
	"lance_id", "platform", "platform_id", "username", "display_name", "biography",
	"external_url", "profile_url", "profile_image_url",
	"followers", "following", "posts_count", "likes_total", "engagement_rate",
	"is_verified", "is_private", "is_commerce_user",
	"reel_post_ratio_last10", "median_view_count_last10", "median_like_count_last10",
	"median_comment_count_last10", "total_img_posts_ig", "total_reels_ig",
	"individual_vs_org", "generational_appeal", "professionalization", "relationship_status",
	"location", "ethnicity", "age", "occupation",
	"keyword1", "keyword2", "keyword3", "keyword4", "keyword5",
	"keyword6", "keyword7", "keyword8", "keyword9", "keyword10",
}

// writeLabelRowsCSV writes one chunk's parsed LabelRows to a fixed-column
// CSV.
func writeLabelRowsCSV(path string, rows []LabelRow) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{
		"lance_db_id", "individual_vs_org", "generational_appeal", "professionalization",
		"relationship_status", "location", "ethnicity", "age", "occupation",
	}
	for i := 1; i <= 10; i++ {
		header = append(header, fmt.Sprintf("keyword%d", i))
	}
	header = append(header, "processing_error", "raw_response")
	if err := w.Write(header); err != nil {
		return err
	}

	for _, r := range rows {
		record := []string{
			r.LanceDBID,
			optionalIntString(r.IndividualVsOrg),
			optionalIntString(r.GenerationalAppeal),
			optionalIntString(r.Professionalization),
			optionalIntString(r.RelationshipStatus),
			r.Location, r.Ethnicity, r.Age, r.Occupation,
		}
		for _, kw := range r.Keywords {
			record = append(record, kw)
		}
		record = append(record, r.ProcessingError, r.RawResponse)
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func optionalIntString(o domain.Optional[int]) string {
	if v, ok := o.Get(); ok {
		return strconv.Itoa(v)
	}
	return ""
}

// readLabelRowsCSV reads back one chunk's result CSV (the inverse of
// writeLabelRowsCSV) keyed by lance_db_id.
func readLabelRowsCSV(path string) (map[string]LabelRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(bufio.NewReader(f))
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return nil, err
	}

	out := make(map[string]LabelRow)
	for {
		record, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		fields := rowToStringMap(header, record)
		row := LabelRow{
			LanceDBID:           fields["lance_db_id"],
			IndividualVsOrg:     parseClampedScore(fields["individual_vs_org"]),
			GenerationalAppeal:  parseClampedScore(fields["generational_appeal"]),
			Professionalization: parseClampedScore(fields["professionalization"]),
			RelationshipStatus:  parseClampedScore(fields["relationship_status"]),
			Location:            fields["location"],
			Ethnicity:           fields["ethnicity"],
			Age:                 fields["age"],
			Occupation:          fields["occupation"],
			ProcessingError:     fields["processing_error"],
			RawResponse:         fields["raw_response"],
		}
		for i := 0; i < 10; i++ {
			row.Keywords[i] = fields[fmt.Sprintf("keyword%d", i+1)]
		}
		out[row.LanceDBID] = row
	}
	return out, nil
}

// MergeDataset joins every completed chunk's labels with the
// lance-id-assigned English rows, producing one platform's canonical
// dataset. Rows whose chunk never completed are dropped
// silently — their labels simply do not exist yet.
func MergeDataset(assignedCSVPath string, labelCSVPaths []string, platformHint string) ([]*domain.CanonicalProfile, error) {
	labels := make(map[string]LabelRow)
	for _, path := range labelCSVPaths {
		rows, err := readLabelRowsCSV(path)
		if err != nil {
			return nil, fmt.Errorf("read label csv %s: %w", path, err)
		}
		for id, row := range rows {
			labels[id] = row
		}
	}

	f, err := os.Open(assignedCSVPath)
	if err != nil {
		return nil, fmt.Errorf("open assigned csv: %w", err)
	}
	defer f.Close()
	r := csv.NewReader(bufio.NewReader(f))
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read assigned csv header: %w", err)
	}

	var profiles []*domain.CanonicalProfile
	for {
		record, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read assigned csv row: %w", err)
		}
		fields := rowToStringMap(header, record)
		lanceDBID := fields["lance_db_id"]

		profile, err := normalize.Normalize(stringMapToAny(fields), platformHint)
		if err != nil {
			continue
		}
		profile.LanceID = lanceDBID

		if label, ok := labels[lanceDBID]; ok {
			applyLabelsToProfile(profile, label)
		}
		profiles = append(profiles, profile)
	}
	return profiles, nil
}

func applyLabelsToProfile(p *domain.CanonicalProfile, l LabelRow) {
	p.IndividualVsOrg = l.IndividualVsOrg
	p.GenerationalAppeal = l.GenerationalAppeal
	p.Professionalization = l.Professionalization
	p.RelationshipStatus = l.RelationshipStatus
	p.Location = l.Location
	p.Ethnicity = l.Ethnicity
	p.Age = l.Age
	p.Occupation = l.Occupation
	p.Keywords = l.Keywords
}

// CombineDatasets merges multiple platforms' profile sets into one
// globally-unique-lance_id set, allocating fresh sequential ids rather than
// reusing any existing one, so the combined set's ids are globally unique.
func CombineDatasets(namespace string, datasets ...[]*domain.CanonicalProfile) []*domain.CanonicalProfile {
	var combined []*domain.CanonicalProfile
	seq := 1
	for _, ds := range datasets {
		for _, p := range ds {
			p.LanceID = fmt.Sprintf("%s_%08d", namespace, seq)
			seq++
			combined = append(combined, p)
		}
	}
	return combined
}

// WriteCanonicalDataset writes the final merged profile set as the
// canonical per-dataset CSV.
func WriteCanonicalDataset(path string, profiles []*domain.CanonicalProfile) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write(canonicalColumns); err != nil {
		return err
	}
	for _, p := range profiles {
		if err := w.Write(profileToRecord(p)); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func profileToRecord(p *domain.CanonicalProfile) []string {
	record := []string{
		p.LanceID, string(p.Platform), p.PlatformID, p.Username, p.DisplayName, p.Biography,
		p.ExternalURL, p.ProfileURL, p.ProfileImageURL,
		optionalInt64String(p.Followers), optionalInt64String(p.Following),
		optionalInt64String(p.PostsCount), optionalInt64String(p.LikesTotal),
		optionalFloatString(p.Engagement),
		triStateString(p.IsVerified), triStateString(p.IsPrivate), triStateString(p.IsCommerce),
		optionalFloatString(p.ReelPostRatioLast10),
		optionalFloatString(p.MedianViewCountLast10),
		optionalFloatString(p.MedianLikeCountLast10),
		optionalFloatString(p.MedianCommentLast10),
		optionalInt64String(p.TotalImgPostsIG), optionalInt64String(p.TotalReelsIG),
		optionalIntString(p.IndividualVsOrg), optionalIntString(p.GenerationalAppeal),
		optionalIntString(p.Professionalization), optionalIntString(p.RelationshipStatus),
		p.Location, p.Ethnicity, p.Age, p.Occupation,
	}
	for _, kw := range p.Keywords {
		record = append(record, kw)
	}
	return record
}

func optionalInt64String(o domain.Optional[int64]) string {
	if v, ok := o.Get(); ok {
		return strconv.FormatInt(v, 10)
	}
	return ""
}

func optionalFloatString(o domain.Optional[float64]) string {
	if v, ok := o.Get(); ok {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

func triStateString(t domain.TriState) string {
	switch t {
	case domain.True:
		return "true"
	case domain.False:
		return "false"
	default:
		return ""
	}
}
