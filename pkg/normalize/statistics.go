package normalize

import (
	"sort"
	"strings"

	"github.com/creatorindex/creatord/pkg/domain"
)

// PostStatistics is the result of ComputePostStatistics: the posts ordered
// and trimmed to the most-recent 10, plus the derived aggregate fields.
type PostStatistics struct {
	TrimmedPosts []domain.PostRecord
	ReelRatio    domain.Optional[float64]
	MedianViews  domain.Optional[float64]
	MedianLikes  domain.Optional[float64]
	MedianComments domain.Optional[float64]
}

// ComputePostStatistics orders posts (timestamped first, descending; then
// untimestamped in original order), truncates to the most-recent 10, and
// computes the reel ratio and view/like/comment medians over that window.
func ComputePostStatistics(posts []domain.PostRecord) PostStatistics {
	withTS := make([]domain.PostRecord, 0, len(posts))
	withoutTS := make([]domain.PostRecord, 0, len(posts))
	for _, p := range posts {
		if p.Timestamp.Valid {
			withTS = append(withTS, p)
		} else {
			withoutTS = append(withoutTS, p)
		}
	}
	sort.SliceStable(withTS, func(i, j int) bool {
		return withTS[i].Timestamp.Value.After(withTS[j].Timestamp.Value)
	})

	ordered := append(withTS, withoutTS...)
	if len(ordered) > 10 {
		ordered = ordered[:10]
	}

	stats := PostStatistics{TrimmedPosts: ordered}
	if len(ordered) == 0 {
		return stats
	}

	var reelLike int
	var views, likes, comments []int64
	for _, p := range ordered {
		if isReelLike(p.MediaType) {
			reelLike++
		}
		if v, ok := p.ViewCount.Get(); ok {
			views = append(views, v)
		}
		if v, ok := p.LikeCount.Get(); ok {
			likes = append(likes, v)
		}
		if v, ok := p.CommentCount.Get(); ok {
			comments = append(comments, v)
		}
	}

	stats.ReelRatio = formatRatio(reelLike, len(ordered))
	stats.MedianViews = formatMedian(views)
	stats.MedianLikes = formatMedian(likes)
	stats.MedianComments = formatMedian(comments)
	return stats
}

// isReelLike classifies a media_type string into the reel/video bucket:
// contains "reel" or "video", or is exactly one of igtv/graphvideo.
func isReelLike(mediaType string) bool {
	if mediaType == "" {
		return false
	}
	lowered := strings.ToLower(mediaType)
	if strings.Contains(lowered, "reel") || strings.Contains(lowered, "video") {
		return true
	}
	switch lowered {
	case "igtv", "graphvideo":
		return true
	}
	return false
}

func formatRatio(count, total int) domain.Optional[float64] {
	if total <= 0 {
		return domain.None[float64]()
	}
	return domain.Some(round3(float64(count) / float64(total)))
}

func formatMedian(values []int64) domain.Optional[float64] {
	if len(values) == 0 {
		return domain.None[float64]()
	}
	sorted := append([]int64(nil), values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	n := len(sorted)
	var med float64
	if n%2 == 1 {
		med = float64(sorted[n/2])
	} else {
		med = float64(sorted[n/2-1]+sorted[n/2]) / 2
	}
	if med == float64(int64(med)) {
		return domain.Some(med)
	}
	return domain.Some(round3(med))
}

func round3(f float64) float64 {
	const scale = 1000
	return float64(int64(f*scale+0.5)) / scale
}
