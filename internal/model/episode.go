package model

import "fmt"

// Asset is a read-only view over the per-kind column group of an Episode.
type Asset struct {
	Kind        AssetKind
	Status      AssetStatus
	DownloadURL string
	LocalPath   string
	Filename    string
	FailedStage AssetStatus
}

func (e *Episode) Asset(kind AssetKind) Asset {
	switch kind {
	case KindVideo:
		return Asset{kind, e.VideoStatus, e.VideoDownloadURL, e.VideoLocalPath, e.VideoFilename, e.VideoFailedStage}
	case KindSubtitle:
		return Asset{kind, e.SubtitleStatus, e.SubtitleDownloadURL, e.SubtitleLocalPath, e.SubtitleFilename, e.SubtitleFailedStage}
	case KindExercise:
		return Asset{kind, e.ExerciseStatus, e.ExerciseDownloadURL, e.ExerciseLocalPath, e.ExerciseFilename, e.ExerciseFailedStage}
	}
	return Asset{Kind: kind}
}

func (e *Episode) Status(kind AssetKind) AssetStatus {
	return e.Asset(kind).Status
}

// SetStatus mutates the in-memory copy only; persistence goes through repo.
func (e *Episode) SetStatus(kind AssetKind, s AssetStatus) {
	switch kind {
	case KindVideo:
		e.VideoStatus = s
	case KindSubtitle:
		e.SubtitleStatus = s
	case KindExercise:
		e.ExerciseStatus = s
	}
}

// SetLink 更新某类资源的下载地址和文件名
func (e *Episode) SetLink(kind AssetKind, url, filename string) {
	switch kind {
	case KindVideo:
		e.VideoDownloadURL, e.VideoFilename = url, filename
	case KindSubtitle:
		e.SubtitleDownloadURL, e.SubtitleFilename = url, filename
	case KindExercise:
		e.ExerciseDownloadURL, e.ExerciseFilename = url, filename
	}
}

func (e *Episode) Number() int {
	if e.EpisodeNumber == nil {
		return 0
	}
	return *e.EpisodeNumber
}

func (e *Episode) Label() string {
	if e.EpisodeNumber == nil {
		return "-"
	}
	return fmt.Sprintf("%03d", *e.EpisodeNumber)
}

// ExpiredAssetKey identifies one asset in extra_metadata.links_expired_assets.
func ExpiredAssetKey(episodeID uint, kind AssetKind) string {
	return fmt.Sprintf("%d:%s", episodeID, kind)
}

// ExpiredAssets reads links_expired_assets. After a database round trip the
// list comes back as []interface{}.
func ExpiredAssets(meta map[string]interface{}) []string {
	switch v := meta[MetaKeyLinksExpiredAssets].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// SetExpiredAssets writes the list back; an empty list removes the key.
func SetExpiredAssets(meta map[string]interface{}, keys []string) {
	if len(keys) == 0 {
		delete(meta, MetaKeyLinksExpiredAssets)
		return
	}
	meta[MetaKeyLinksExpiredAssets] = keys
}
