package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Post type tags. Synthetic posts carry the metapost prefix in front of the
// type they were derived from, e.g. "metapost.default".
const (
	PostTypeDefault  = "default"
	PostTypeFeatured = "featured"
	MetapostPrefix   = "metapost."
)

// Ref points at another post in the same day partition together with the
// similarity score that linked the two. Tier lists keep descending-score order.
type Ref struct {
	PostID int64   `json:"post_id"`
	Score  float64 `json:"score"`
}

type RefList []Ref

func (l RefList) Value() (driver.Value, error)  { return jsonbValue(l) }
func (l *RefList) Scan(src any) error           { return jsonbScan(src, l) }
func (RefList) GormDataType() string            { return "jsonb" }

type StringList []string

func (l StringList) Value() (driver.Value, error) { return jsonbValue(l) }
func (l *StringList) Scan(src any) error          { return jsonbScan(src, l) }
func (StringList) GormDataType() string           { return "jsonb" }

// Author is a structured by-line record. Bot authorship on synthetic posts
// uses a fixed sentinel record, never inherited from cluster members.
type Author struct {
	Name         string `json:"name"`
	ProfileImage string `json:"profile_image,omitempty"`
	Role         string `json:"role,omitempty"`
}

type AuthorList []Author

func (l AuthorList) Value() (driver.Value, error) { return jsonbValue(l) }
func (l *AuthorList) Scan(src any) error          { return jsonbScan(src, l) }
func (AuthorList) GormDataType() string           { return "jsonb" }

// Paper identifies the publication a post belongs to.
type Paper struct {
	Brand       string `json:"brand"`
	Description string `json:"description,omitempty"`
	LogoURL     string `json:"logo_url,omitempty"`
}

func (p Paper) Value() (driver.Value, error) { return jsonbValue(p) }
func (p *Paper) Scan(src any) error          { return jsonbScan(src, p) }
func (Paper) GormDataType() string           { return "jsonb" }

type ScoreMap map[string]float64

func (m ScoreMap) Value() (driver.Value, error) { return jsonbValue(m) }
func (m *ScoreMap) Scan(src any) error          { return jsonbScan(src, m) }
func (ScoreMap) GormDataType() string           { return "jsonb" }

func jsonbValue(v any) (driver.Value, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(payload), nil
}

func jsonbScan(src, dest any) error {
	switch value := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(value, dest)
	case string:
		return json.Unmarshal([]byte(value), dest)
	default:
		return fmt.Errorf("unsupported jsonb source type %T", src)
	}
}

// Post maps corpus.posts. One row per (day, natural key, version); the natural
// key (short_link) identifies a logical post across versions. Ordinary posts
// carry a monotonically increasing integer version, synthetic posts a
// deterministic content hash.
type Post struct {
	PostID      int64     `gorm:"column:post_id;primaryKey;autoIncrement"`
	PostUUID    string    `gorm:"column:post_uuid;type:uuid;not null;unique"`
	PublishedOn time.Time `gorm:"column:published_on;type:date;not null"`

	ShortLink string `gorm:"column:short_link;type:text;not null"`
	Link      string `gorm:"column:link;type:text;not null;default:''"`
	LinkHash  string `gorm:"column:link_hash;type:text;not null;default:''"`

	Type    string `gorm:"column:type;type:text;not null;default:default"`
	Version string `gorm:"column:version;type:text;not null;default:1"`
	Country string `gorm:"column:country;type:text;not null;default:''"`
	Lang    string `gorm:"column:lang;type:text;not null;default:''"`

	Title   string `gorm:"column:title;type:text;not null;default:''"`
	Text    string `gorm:"column:text;type:text;not null;default:''"`
	Excerpt string `gorm:"column:excerpt;type:text;not null;default:''"`

	// NLP-derived fields, written by the daily batch only.
	Caption   string   `gorm:"column:caption;type:text;not null;default:''"`
	Summary   string   `gorm:"column:summary;type:text;not null;default:''"`
	Category  string   `gorm:"column:category;type:text;not null;default:''"`
	SumScores ScoreMap `gorm:"column:sum_scores;type:jsonb"`

	TopImage string     `gorm:"column:top_image;type:text;not null;default:''"`
	Images   StringList `gorm:"column:images;type:jsonb"`
	Videos   StringList `gorm:"column:videos;type:jsonb"`
	Keywords StringList `gorm:"column:keywords;type:jsonb"`
	Tags     StringList `gorm:"column:tags;type:jsonb"`
	Authors  AuthorList `gorm:"column:authors;type:jsonb"`
	Paper    Paper      `gorm:"column:paper;type:jsonb"`

	Siblings RefList `gorm:"column:siblings;type:jsonb"`
	Related  RefList `gorm:"column:related;type:jsonb"`

	IsDraft bool `gorm:"column:is_draft;type:boolean;not null;default:false"`
	IsScrap bool `gorm:"column:is_scrap;type:boolean;not null;default:false"`

	PublishTime  *time.Time `gorm:"column:publish_time;type:timestamptz"`
	ModifiedTime *time.Time `gorm:"column:modified_time;type:timestamptz"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Post) TableName() string { return "corpus.posts" }

// IsMeta reports whether the post is a synthetic aggregate.
func (p *Post) IsMeta() bool {
	return p != nil && len(p.Type) >= len(MetapostPrefix) && p.Type[:len(MetapostPrefix)] == MetapostPrefix
}

// VersionInt parses the numeric version of an ordinary post. Synthetic posts
// have hash versions and report 0.
func (p *Post) VersionInt() int {
	if p == nil {
		return 0
	}
	n, err := strconv.Atoi(p.Version)
	if err != nil {
		return 0
	}
	return n
}

// NLPRun maps corpus.nlp_runs, the per-phase counter ledger of daily batches.
type NLPRun struct {
	RunID      int64      `gorm:"column:run_id;primaryKey;autoIncrement"`
	RunUUID    string     `gorm:"column:run_uuid;type:uuid;not null;unique"`
	RunDate    time.Time  `gorm:"column:run_date;type:date;not null"`
	Phase      string     `gorm:"column:phase;type:text;not null"`
	StartedAt  time.Time  `gorm:"column:started_at;type:timestamptz;not null;default:now()"`
	FinishedAt *time.Time `gorm:"column:finished_at;type:timestamptz"`
	Status     string     `gorm:"column:status;type:text;not null;default:running"`

	TotalPosts      int `gorm:"column:total_posts;type:integer;not null;default:0"`
	SavedFields     int `gorm:"column:saved_fields;type:integer;not null;default:0"`
	WordCount       int `gorm:"column:word_count;type:integer;not null;default:0"`
	SimilarityCount int `gorm:"column:similarity_count;type:integer;not null;default:0"`
	SummaryCount    int `gorm:"column:summary_count;type:integer;not null;default:0"`
	MetapostCount   int `gorm:"column:metapost_count;type:integer;not null;default:0"`

	ErrorMessage *string   `gorm:"column:error_message;type:text"`
	CreatedAt    time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (NLPRun) TableName() string { return "corpus.nlp_runs" }

func autoMigrateModels() []any {
	return []any{
		&Post{},
		&NLPRun{},
	}
}
