// Package normalize converts heterogeneous per-platform raw vendor records
// into the single CanonicalProfile schema, including derived post
// statistics. Each canonical field is filled from an ordered synonym list
// of raw keys; TikTok posts may arrive split across two lists and are
// merged by id; hashtags found in a caption are removed from the caption
// text but kept in the hashtag set.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/creatorindex/creatord/pkg/domain"
)

// ErrInvalidRecord is returned when the raw input is not a mapping.
var ErrInvalidRecord = errors.New("raw record is not a mapping")

// Normalize converts one raw vendor record into a CanonicalProfile. It is a
// pure function: no I/O, never panics, and only returns ErrInvalidRecord
// when raw itself is not object-shaped. Missing fields default silently.
func Normalize(raw map[string]any, platformHint string) (*domain.CanonicalProfile, error) {
	if raw == nil {
		return nil, ErrInvalidRecord
	}

	platform := detectPlatform(raw, platformHint)

	var p *domain.CanonicalProfile
	switch platform {
	case domain.PlatformTikTok:
		p = normalizeTikTok(raw)
	default:
		p = normalizeInstagram(raw)
	}
	p.Platform = platform

	stats := ComputePostStatistics(p.Posts)
	p.Posts = stats.TrimmedPosts
	p.ReelPostRatioLast10 = stats.ReelRatio
	p.MedianViewCountLast10 = stats.MedianViews
	p.MedianLikeCountLast10 = stats.MedianLikes
	p.MedianCommentLast10 = stats.MedianComments

	if platform == domain.PlatformInstagram {
		imgs, reels := countInstagramMedia(p.Posts)
		p.TotalImgPostsIG = imgs
		p.TotalReelsIG = reels
	}

	return p, nil
}

func detectPlatform(raw map[string]any, hint string) domain.Platform {
	if v, ok := raw["platform"]; ok {
		if s := toString(v); s != "" {
			switch strings.ToLower(s) {
			case "tiktok":
				return domain.PlatformTikTok
			case "instagram":
				return domain.PlatformInstagram
			}
		}
	}
	url := firstNonEmpty(toString(raw["profile_url"]), toString(raw["url"]), extractInputURL(raw))
	if strings.Contains(url, "tiktok.com") {
		return domain.PlatformTikTok
	}
	if strings.Contains(url, "instagram.com") {
		return domain.PlatformInstagram
	}
	switch strings.ToLower(strings.TrimSpace(hint)) {
	case "tiktok":
		return domain.PlatformTikTok
	}
	return domain.PlatformInstagram
}

// --- Instagram ---------------------------------------------------------

func normalizeInstagram(raw map[string]any) *domain.CanonicalProfile {
	p := &domain.CanonicalProfile{
		PlatformID:      firstNonEmpty(toString(raw["account"]), toString(raw["fbid"]), toString(raw["id"])),
		Username:        normalizeUsername(firstNonEmpty(toString(raw["account"]), toString(raw["username"]))),
		DisplayName:     decodeText(firstNonEmpty(toString(raw["full_name"]), toString(raw["display_name"]))),
		Biography:       decodeText(firstNonEmpty(toString(raw["biography"]), toString(raw["bio"]))),
		ExternalURL:     firstNonEmpty(toString(raw["external_url"]), toString(raw["website"])),
		ProfileImageURL: firstNonEmpty(toString(raw["profile_image_url"]), toString(raw["profile_pic_url"]), toString(raw["avatar"])),
	}
	p.ProfileURL = firstNonEmpty(toString(raw["profile_url"]), toString(raw["url"]), extractInputURL(raw), domain.ProfileURL(domain.PlatformInstagram, p.Username))

	p.Followers = toOptionalInt(firstNonEmptyAny(raw["followers"], raw["follower_count"]))
	p.Following = toOptionalInt(firstNonEmptyAny(raw["following"], raw["following_count"]))
	p.PostsCount = toOptionalInt(firstNonEmptyAny(raw["posts_count"], raw["media_count"]))
	p.LikesTotal = toOptionalInt(firstNonEmptyAny(raw["likes_total"], raw["total_likes"]))
	p.Engagement = toOptionalFloat(firstNonEmptyAny(raw["engagement_rate"], raw["engagement"]))
	p.IsVerified = normalizeFlag(firstNonEmptyAny(raw["is_verified"], raw["verified"]))
	p.IsPrivate = normalizeFlag(firstNonEmptyAny(raw["is_private"], raw["private"]))
	p.IsCommerce = normalizeFlag(firstNonEmptyAny(raw["is_commerce_user"], raw["is_business_account"]))

	p.Posts = normalizePosts(safeJSONList(raw["posts"]))
	return p
}

// countInstagramMedia counts Instagram-only media-type totals over the
// already-trimmed (last 10) post list.
func countInstagramMedia(posts []domain.PostRecord) (domain.Optional[int64], domain.Optional[int64]) {
	if len(posts) == 0 {
		return domain.None[int64](), domain.None[int64]()
	}
	imageTypes := map[string]bool{"graphimage": true, "image": true, "photo": true, "graphsidecar": true}
	reelTypes := map[string]bool{"reel": true, "video": true, "graphvideo": true, "igtv": true}
	var images, reels int64
	for _, post := range posts {
		lowered := strings.ToLower(post.MediaType)
		if lowered == "" {
			continue
		}
		switch {
		case imageTypes[lowered] || strings.Contains(lowered, "image") || strings.Contains(lowered, "photo"):
			images++
		case reelTypes[lowered] || strings.Contains(lowered, "video") || strings.Contains(lowered, "reel"):
			reels++
		}
	}
	out := func(n int64) domain.Optional[int64] {
		if n == 0 {
			return domain.None[int64]()
		}
		return domain.Some(n)
	}
	return out(images), out(reels)
}

// --- TikTok --------------------------------------------------------------

func normalizeTikTok(raw map[string]any) *domain.CanonicalProfile {
	p := &domain.CanonicalProfile{
		PlatformID:  firstNonEmpty(toString(raw["account_id"]), toString(raw["id"])),
		Username:    normalizeUsername(firstNonEmpty(toString(raw["account"]), toString(raw["username"]), toString(raw["unique_id"]))),
		DisplayName: decodeText(firstNonEmpty(toString(raw["nickname"]), toString(raw["display_name"]))),
		Biography:   decodeText(firstNonEmpty(toString(raw["biography"]), toString(raw["signature"]))),
		ExternalURL: toString(raw["external_url"]),
	}
	p.ProfileImageURL = firstNonEmpty(toString(raw["profile_image_url"]), toString(raw["avatar_url"]), toString(raw["avatar_larger"]))
	p.ProfileURL = firstNonEmpty(toString(raw["profile_url"]), toString(raw["url"]), extractInputURL(raw), domain.ProfileURL(domain.PlatformTikTok, p.Username))

	p.Followers = toOptionalInt(firstNonEmptyAny(raw["followers"], raw["follower_count"], raw["fans"]))
	p.Following = toOptionalInt(firstNonEmptyAny(raw["following"], raw["following_count"]))
	p.PostsCount = toOptionalInt(firstNonEmptyAny(raw["posts_count"], raw["video_count"], raw["awemeCount"]))
	p.LikesTotal = toOptionalInt(firstNonEmptyAny(raw["likes_total"], raw["heart"], raw["heartCount"], raw["digg_count"]))
	p.Engagement = toOptionalFloat(firstNonEmptyAny(raw["engagement_rate"]))
	p.IsVerified = normalizeFlag(firstNonEmptyAny(raw["is_verified"], raw["verified"]))
	p.IsPrivate = normalizeFlag(firstNonEmptyAny(raw["is_private"], raw["private_account"]))

	merged := mergeTikTokPosts(safeJSONList(raw["top_videos"]), safeJSONList(raw["top_posts_data"]))
	p.Posts = normalizePosts(merged)
	return p
}

// mergeTikTokPosts merges two raw post lists by id (post_id/video_id/
// aweme_id), preferring the first non-empty value per field and preserving
// first-seen order. A post with no id on every synonym in *either* list is
// dropped silently.
func mergeTikTokPosts(a, b []any) []any {
	order := make([]string, 0, len(a)+len(b))
	byID := make(map[string]map[string]any)

	merge := func(list []any) {
		for _, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			id := firstNonEmpty(toString(m["post_id"]), toString(m["video_id"]), toString(m["aweme_id"]), toString(m["id"]))
			if id == "" {
				continue
			}
			existing, found := byID[id]
			if !found {
				order = append(order, id)
				byID[id] = m
				continue
			}
			merged := make(map[string]any, len(existing)+len(m))
			for k, v := range m {
				merged[k] = v
			}
			for k, v := range existing {
				if toString(v) != "" {
					merged[k] = v
				}
			}
			byID[id] = merged
		}
	}
	merge(a)
	merge(b)

	out := make([]any, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out
}

// --- Post field mapping ----------------------------------------------------

var hashtagOccurrence = func(tag string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(?:^|[^\w])#\s*` + regexp.QuoteMeta(tag) + `\b`)
}

func normalizePosts(raw []any) []domain.PostRecord {
	out := make([]domain.PostRecord, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		post := domain.PostRecord{
			ID:           firstNonEmpty(toString(m["id"]), toString(m["post_id"]), toString(m["video_id"]), toString(m["aweme_id"])),
			Caption:      decodeText(firstNonEmpty(toString(m["caption"]), toString(m["desc"]), toString(m["title"]), toString(m["text"]), toString(m["description"]))),
			URL:          firstNonEmpty(toString(m["url"]), toString(m["post_url"]), toString(m["video_url"])),
			MediaType:    firstNonEmpty(toString(m["media_type"]), toString(m["type"])),
			ThumbnailURL: firstNonEmpty(toString(m["thumbnail_url"]), toString(m["cover"])),
			LocationName: extractLocationName(m["location"]),
		}
		post.LikeCount = toOptionalInt(firstNonEmptyAny(m["likes"], m["like_count"], m["diggCount"], m["diggcount"], m["collectCount"]))
		post.CommentCount = toOptionalInt(firstNonEmptyAny(m["comments"], m["comment_count"], m["commentCount"]))
		post.ShareCount = toOptionalInt(firstNonEmptyAny(m["shares"], m["share_count"], m["shareCount"]))
		post.ViewCount = toOptionalInt(firstNonEmptyAny(m["views"], m["view_count"], m["playCount"], m["video_view_count"]))
		post.FavoriteCount = toOptionalInt(firstNonEmptyAny(m["favorites"], m["favorite_count"], m["collectCount"]))
		post.Duration = toOptionalFloat(firstNonEmptyAny(m["duration"], m["video_duration"]))
		post.Timestamp = parseTimestamp(firstNonEmpty(toString(m["timestamp"]), toString(m["created_at"]), toString(m["date_posted"])))

		post.Hashtags = extractHashtags(m["hashtags"])
		post.Caption = removeHashtagsFromCaption(post.Caption, post.Hashtags)
		post.Extra = extraKeys(m)

		out = append(out, post)
	}
	return out
}

// removeHashtagsFromCaption strips each hashtag's in-caption occurrence
// (case-insensitive, optional whitespace after '#', word-boundary
// respected) and collapses resulting whitespace runs. Patterns are built
// per-post from that post's own hashtag set, never pre-compiled globally,
// since tags vary per post.
func removeHashtagsFromCaption(caption string, hashtags []string) string {
	if caption == "" || len(hashtags) == 0 {
		return caption
	}
	for _, tag := range hashtags {
		if tag == "" {
			continue
		}
		caption = hashtagOccurrence(tag).ReplaceAllString(caption, " ")
	}
	return collapseWhitespace(caption)
}

func extractHashtags(v any) []string {
	var raw []string
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if s := toString(item); s != "" {
				raw = append(raw, s)
			}
		}
	case string:
		text := strings.TrimSpace(t)
		if text == "" {
			return nil
		}
		if list := safeJSONList(text); len(list) > 0 {
			for _, item := range list {
				if s := toString(item); s != "" {
					raw = append(raw, s)
				}
			}
		} else {
			for _, part := range strings.Split(text, ",") {
				if part = strings.TrimSpace(part); part != "" {
					raw = append(raw, part)
				}
			}
		}
	}
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, tag := range raw {
		tag = strings.TrimPrefix(strings.TrimSpace(tag), "#")
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}

func extractLocationName(v any) string {
	switch t := v.(type) {
	case string:
		return decodeText(t)
	case map[string]any:
		return decodeText(firstNonEmpty(toString(t["name"]), toString(t["title"]), toString(t["short_name"])))
	case []any:
		for _, item := range t {
			if name := extractLocationName(item); name != "" {
				return name
			}
		}
	}
	return ""
}

// knownPostKeys lists every raw key consumed above, so extraKeys can
// preserve anything else without information loss.
var knownPostKeys = map[string]bool{
	"id": true, "post_id": true, "video_id": true, "aweme_id": true,
	"caption": true, "desc": true, "title": true, "text": true, "description": true,
	"url": true, "post_url": true, "video_url": true,
	"media_type": true, "type": true,
	"thumbnail_url": true, "cover": true,
	"location": true,
	"likes": true, "like_count": true, "diggCount": true, "diggcount": true, "collectCount": true,
	"comments": true, "comment_count": true, "commentCount": true,
	"shares": true, "share_count": true, "shareCount": true,
	"views": true, "view_count": true, "playCount": true, "video_view_count": true,
	"favorites": true, "favorite_count": true,
	"duration": true, "video_duration": true,
	"timestamp": true, "created_at": true, "date_posted": true,
	"hashtags": true,
}

func extraKeys(m map[string]any) map[string]any {
	var extra map[string]any
	for k, v := range m {
		if knownPostKeys[k] {
			continue
		}
		if extra == nil {
			extra = make(map[string]any)
		}
		extra[k] = v
	}
	return extra
}

// --- Timestamp parsing ------------------------------------------------

var tikTokEpochOnly = regexp.MustCompile(`^\d{9,13}$`)

func parseTimestamp(s string) domain.Optional[time.Time] {
	s = strings.TrimSpace(s)
	if s == "" {
		return domain.None[time.Time]()
	}
	if tikTokEpochOnly.MatchString(s) {
		n, err := strconv.ParseInt(s, 10, 64)
		if err == nil {
			if len(s) >= 13 {
				return domain.Some(time.Unix(0, n*int64(time.Millisecond)).UTC())
			}
			return domain.Some(time.Unix(n, 0).UTC())
		}
	}
	formats := []string{
		time.RFC3339,
		"2006-01-02T15:04:05.000Z",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return domain.Some(t.UTC())
		}
	}
	return domain.None[time.Time]()
}

// --- Small decoding helpers ---

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// decodeText interprets source-level escape sequences once (by round-
// tripping through a quoted Go string literal) then collapses whitespace
// and trims.
// DecodeText exposes decodeText to other packages that need the same
// escape-unquoting treatment over already-partially-normalized text (the
// ingestion batch pipeline's CSV columns, notably).
func DecodeText(s string) string { return decodeText(s) }

func decodeText(s string) string {
	if s == "" {
		return ""
	}
	// Uniformly escape quotes (whether or not the source already escaped
	// them), then let Unquote interpret every escape sequence once. Inputs
	// Unquote rejects pass through verbatim.
	escaped := strings.ReplaceAll(strings.ReplaceAll(s, `\"`, `"`), `"`, `\"`)
	if unquoted, err := strconv.Unquote(`"` + escaped + `"`); err == nil {
		s = unquoted
	}
	return collapseWhitespace(strings.TrimSpace(s))
}

func normalizeUsername(u string) string {
	return domain.NormalizeUsername(u)
}

func normalizeFlag(v any) domain.TriState {
	switch t := v.(type) {
	case bool:
		if t {
			return domain.True
		}
		return domain.False
	case float64:
		return boolFromNumber(t)
	case int:
		return boolFromNumber(float64(t))
	case int64:
		return boolFromNumber(float64(t))
	case string:
		s := strings.ToLower(strings.TrimSpace(t))
		switch s {
		case "true", "1", "yes", "y":
			return domain.True
		case "false", "0", "no", "n":
			return domain.False
		}
	}
	return domain.Unknown
}

func boolFromNumber(f float64) domain.TriState {
	if f != f { // NaN
		return domain.Unknown
	}
	if f != 0 {
		return domain.True
	}
	return domain.False
}

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t != t {
			return ""
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func firstNonEmptyAny(values ...any) any {
	for _, v := range values {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
			continue
		}
		return v
	}
	return nil
}

func toOptionalInt(v any) domain.Optional[int64] {
	switch t := v.(type) {
	case nil:
		return domain.None[int64]()
	case float64:
		if t != t {
			return domain.None[int64]()
		}
		return domain.Some(int64(t))
	case int:
		return domain.Some(int64(t))
	case int64:
		return domain.Some(t)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return domain.None[int64]()
		}
		return domain.Some(int64(f))
	default:
		return domain.None[int64]()
	}
}

func toOptionalFloat(v any) domain.Optional[float64] {
	switch t := v.(type) {
	case nil:
		return domain.None[float64]()
	case float64:
		if t != t {
			return domain.None[float64]()
		}
		return domain.Some(t)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return domain.None[float64]()
		}
		return domain.Some(f)
	default:
		return domain.None[float64]()
	}
}

func extractInputURL(raw map[string]any) string {
	input, ok := raw["input"]
	if !ok {
		return ""
	}
	m, ok := input.(map[string]any)
	if !ok {
		return ""
	}
	return toString(firstNonEmptyAny(m["url"], m["profile_url"]))
}

// safeJSONList accepts an already-decoded list, or a JSON-encoded string of
// one, and otherwise returns nil — it never errors.
func safeJSONList(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case string:
		text := strings.TrimSpace(t)
		if text == "" {
			return nil
		}
		if !strings.HasPrefix(text, "[") {
			return nil
		}
		var out []any
		if err := json.Unmarshal([]byte(text), &out); err == nil {
			return out
		}
	}
	return nil
}
