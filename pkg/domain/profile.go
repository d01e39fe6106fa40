package domain

import "time"

// Platform identifies the source social network for a CanonicalProfile.
type Platform string

const (
	PlatformInstagram Platform = "instagram"
	PlatformTikTok    Platform = "tiktok"
)

// PostRecord is one post belonging to a CanonicalProfile, trimmed to the
// most-recent 10 after normalization (see ComputePostStatistics).
type PostRecord struct {
	ID            string              `json:"id"`
	Caption       string              `json:"caption"`
	Hashtags      []string            `json:"hashtags"`
	LikeCount     Optional[int64]     `json:"like_count"`
	CommentCount  Optional[int64]     `json:"comment_count"`
	ShareCount    Optional[int64]     `json:"share_count"`
	ViewCount     Optional[int64]     `json:"view_count"`
	FavoriteCount Optional[int64]     `json:"favorite_count"`
	URL           string              `json:"url"`
	MediaType     string              `json:"media_type"`
	Timestamp     Optional[time.Time] `json:"timestamp"`
	Duration      Optional[float64]   `json:"duration"`
	ThumbnailURL  string              `json:"thumbnail_url"`
	LocationName  string              `json:"location_name"`

	// Extra preserves raw keys that had no canonical home, per the
	// "never raise on unknown data" normalization contract.
	Extra map[string]any `json:"extra,omitempty"`
}

// CanonicalProfile is the central entity of the system: a single schema that
// both source platforms (and ingestion, search, and fit-scoring) are
// converted into or annotate.
type CanonicalProfile struct {
	LanceID         string   `json:"lance_id"`
	Platform        Platform `json:"platform"`
	PlatformID      string   `json:"platform_id"`
	Username        string   `json:"username"`
	DisplayName     string   `json:"display_name"`
	Biography       string   `json:"biography"`
	ExternalURL     string   `json:"external_url"`
	ProfileURL      string   `json:"profile_url"`
	ProfileImageURL string   `json:"profile_image_url"`

	Followers   Optional[int64]   `json:"followers"`
	Following   Optional[int64]   `json:"following"`
	PostsCount  Optional[int64]   `json:"posts_count"`
	LikesTotal  Optional[int64]   `json:"likes_total"`
	Engagement  Optional[float64] `json:"engagement_rate"`
	IsVerified  TriState          `json:"is_verified"`
	IsPrivate   TriState          `json:"is_private"`
	IsCommerce  TriState          `json:"is_commerce_user"`

	Posts []PostRecord `json:"posts"`

	// Derived statistics, computed by ComputePostStatistics over Posts.
	ReelPostRatioLast10   Optional[float64] `json:"reel_post_ratio_last10"`
	MedianViewCountLast10 Optional[float64] `json:"median_view_count_last10"`
	MedianLikeCountLast10 Optional[float64] `json:"median_like_count_last10"`
	MedianCommentLast10   Optional[float64] `json:"median_comment_count_last10"`
	TotalImgPostsIG       Optional[int64]   `json:"total_img_posts_ig,omitempty"`
	TotalReelsIG          Optional[int64]   `json:"total_reels_ig,omitempty"`

	// LLM-assigned labels, populated by the ingestion batch pipeline.
	IndividualVsOrg    Optional[int] `json:"individual_vs_org,omitempty"`
	GenerationalAppeal Optional[int] `json:"generational_appeal,omitempty"`
	Professionalization Optional[int] `json:"professionalization,omitempty"`
	RelationshipStatus Optional[int] `json:"relationship_status,omitempty"`
	Location           string        `json:"location,omitempty"`
	Ethnicity          string        `json:"ethnicity,omitempty"`
	Age                string        `json:"age,omitempty"`
	Occupation         string        `json:"occupation,omitempty"`
	Keywords           [10]string    `json:"keywords,omitempty"`

	// Fit annotations, added by the fit-scoring stage.
	FitScore     Optional[int] `json:"fit_score,omitempty"`
	FitRationale string        `json:"fit_rationale,omitempty"`
	FitError     string        `json:"fit_error,omitempty"`

	// Scoring components, added by search and rerank.
	BM25          Optional[float64] `json:"bm25,omitempty"`
	ProfileSim    Optional[float64] `json:"profile_sim,omitempty"`
	PostsSim      Optional[float64] `json:"posts_sim,omitempty"`
	CombinedScore Optional[float64] `json:"combined_score,omitempty"`
	RerankScore   Optional[float64] `json:"rerank_score,omitempty"`
}

// ProfileRef is a compact identifier carried between pipeline stages so
// event payloads stay small regardless of profile size. At least one field
// must be populated.
type ProfileRef struct {
	LanceID    string `json:"lance_id,omitempty"`
	Account    string `json:"account,omitempty"`
	ProfileURL string `json:"profile_url,omitempty"`
}

// Ref builds the compact ProfileRef for a profile.
func (p *CanonicalProfile) Ref() ProfileRef {
	return ProfileRef{LanceID: p.LanceID, Account: p.Username, ProfileURL: p.ProfileURL}
}

// NormalizedHandleKey returns the orchestrator's normalized-handle key:
// lowercase(platform + ':' + username), falling back to the normalized
// profile URL when the username is absent.
func (p *CanonicalProfile) NormalizedHandleKey() string {
	return NormalizedHandleKey(string(p.Platform), p.Username, p.ProfileURL)
}
