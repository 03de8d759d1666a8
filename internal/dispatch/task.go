package dispatch

import "github.com/pokerjest/acms/internal/model"

type Kind string

const (
	KindScrape    Kind = "scrape"
	KindDownload  Kind = "download"
	KindProcess   Kind = "process"
	KindTranslate Kind = "translate"
	KindUpload    Kind = "upload"
	KindContent   Kind = "content"
)

// Task is one unit of work. The concrete types below are the only
// implementations; each has a matching result type.
type Task interface {
	Kind() Kind
	// Scope returns the course and, for episode tasks, the episode id.
	Scope() (courseID uint, episodeID *uint)
}

type ScrapeTask struct {
	CourseID uint `json:"course_id"`
}

type ScrapeResult struct {
	EpisodesCreated int `json:"episodes_created"`
	LecturesCount   int `json:"lectures_count"`
}

// DownloadTask downloads every downloadable asset of an episode, or only
// Kinds when set. Retry moves errored assets back to their failed stage first.
type DownloadTask struct {
	CourseID  uint              `json:"course_id"`
	EpisodeID uint              `json:"episode_id"`
	Kinds     []model.AssetKind `json:"kinds,omitempty"`
	Retry     bool              `json:"retry,omitempty"`
}

type DownloadResult struct {
	Downloaded  []model.AssetKind          `json:"downloaded"`
	Failed      map[model.AssetKind]string `json:"failed,omitempty"`
	LinkExpired bool                       `json:"link_expired,omitempty"`
	Skipped     bool                       `json:"skipped,omitempty"`
}

type ProcessTask struct {
	CourseID  uint              `json:"course_id"`
	EpisodeID uint              `json:"episode_id"`
	Kinds     []model.AssetKind `json:"kinds,omitempty"`
	Retry     bool              `json:"retry,omitempty"`
}

type ProcessResult struct {
	Processed []model.AssetKind          `json:"processed"`
	Failed    map[model.AssetKind]string `json:"failed,omitempty"`
	Skipped   bool                       `json:"skipped,omitempty"`
}

// TranslateTask translates an episode title, or the course title and
// description when EpisodeID is 0.
type TranslateTask struct {
	CourseID  uint `json:"course_id"`
	EpisodeID uint `json:"episode_id,omitempty"`
}

type TranslateResult struct {
	Updated []string `json:"updated"`
	Skipped bool     `json:"skipped,omitempty"`
}

type UploadTask struct {
	CourseID  uint `json:"course_id"`
	EpisodeID uint `json:"episode_id"`
	Retry     bool `json:"retry,omitempty"`
}

type UploadResult struct {
	Uploaded     []model.AssetKind      `json:"uploaded"`
	SkipExisting bool                   `json:"skip_existing,omitempty"`
	DebugHalt    bool                   `json:"debug_halt,omitempty"`
	Skipped      bool                   `json:"skipped,omitempty"`
	Summary      map[string]interface{} `json:"summary,omitempty"`
}

type ContentTask struct {
	CourseID uint `json:"course_id"`
}

type ContentResult struct {
	Generated bool `json:"generated"`
}

func (ScrapeTask) Kind() Kind    { return KindScrape }
func (DownloadTask) Kind() Kind  { return KindDownload }
func (ProcessTask) Kind() Kind   { return KindProcess }
func (TranslateTask) Kind() Kind { return KindTranslate }
func (UploadTask) Kind() Kind    { return KindUpload }
func (ContentTask) Kind() Kind   { return KindContent }

func (t ScrapeTask) Scope() (uint, *uint)   { return t.CourseID, nil }
func (t DownloadTask) Scope() (uint, *uint) { return t.CourseID, &t.EpisodeID }
func (t ProcessTask) Scope() (uint, *uint)  { return t.CourseID, &t.EpisodeID }
func (t UploadTask) Scope() (uint, *uint)   { return t.CourseID, &t.EpisodeID }
func (t ContentTask) Scope() (uint, *uint)  { return t.CourseID, nil }

func (t TranslateTask) Scope() (uint, *uint) {
	if t.EpisodeID == 0 {
		return t.CourseID, nil
	}
	return t.CourseID, &t.EpisodeID
}
