package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/pokerjest/acms/internal/downloader"
	"github.com/pokerjest/acms/internal/event"
	"github.com/pokerjest/acms/internal/logger"
	"github.com/pokerjest/acms/internal/model"
	"github.com/pokerjest/acms/internal/parser"
	"github.com/pokerjest/acms/internal/repo"
	"github.com/pokerjest/acms/internal/tasklog"
	"gorm.io/gorm"
)

// TitleMatchThreshold 标题模糊匹配的最低相似度
const TitleMatchThreshold = 0.85

const (
	LinkMatched   = "matched"
	LinkCreated   = "created"
	LinkUnmatched = "unmatched"
	LinkDuplicate = "duplicate"
)

type LinkDetail struct {
	Line          int             `json:"line"`
	Raw           string          `json:"raw"`
	Status        string          `json:"status"`
	Kind          model.AssetKind `json:"kind,omitempty"`
	URL           string          `json:"url,omitempty"`
	Filename      string          `json:"filename,omitempty"`
	EpisodeNumber *int            `json:"episode_number,omitempty"`
	EpisodeID     uint            `json:"episode_id,omitempty"`
	MatchedBy     string          `json:"matched_by,omitempty"`
	Reason        string          `json:"reason,omitempty"`
}

// LinkBatchResult 计数之和等于非空行数
type LinkBatchResult struct {
	Matched             int          `json:"matched"`
	Created             int          `json:"created"`
	Unmatched           int          `json:"unmatched"`
	Duplicates          int          `json:"duplicates"`
	Details             []LinkDetail `json:"details"`
	Applied             bool         `json:"applied"`
	BatchID             uint         `json:"batch_id,omitempty"`
	LinksExpiredCleared bool         `json:"links_expired_cleared"`
}

type LinkService struct {
	store *repo.Store
	logs  *tasklog.Recorder
	bus   event.Bus
	log   *logger.Logger
}

func NewLinkService(store *repo.Store, logs *tasklog.Recorder, bus event.Bus, log *logger.Logger) *LinkService {
	return &LinkService{store: store, logs: logs, bus: bus, log: log.With("component", "LinkService")}
}

// ApplyLinkBatch matches pasted links against the course episodes. With
// apply=false nothing is written and the result shows what would happen.
// Only an unknown course is an error; bad lines are reported as unmatched.
func (s *LinkService) ApplyLinkBatch(ctx context.Context, courseID uint, raw string, apply bool) (*LinkBatchResult, error) {
	course, err := s.store.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	expiredKeys := map[string]bool{}
	for _, k := range model.ExpiredAssets(course.ExtraMetadata) {
		expiredKeys[k] = true
	}
	res := &LinkBatchResult{Details: []LinkDetail{}, Applied: apply}
	lines := parser.ParseBatch(raw)
	if len(lines) == 0 {
		return res, nil
	}

	existing, err := s.store.ListEpisodes(ctx, courseID)
	if err != nil {
		return nil, err
	}
	eps := make([]*model.Episode, 0, len(existing))
	for i := range existing {
		eps = append(eps, &existing[i])
	}

	seen := map[string]bool{}
	var recovered []string
	var batchMeta parser.ParsedLink

	for _, line := range lines {
		d := LinkDetail{Line: line.Index, Raw: line.Raw}
		if line.Err != nil {
			d.Status, d.Reason = LinkUnmatched, line.Err.Error()
			res.add(d)
			continue
		}
		link := line.Link
		d.Kind, d.URL, d.Filename, d.EpisodeNumber = link.Kind, link.URL, link.Filename, link.EpisodeNumber
		if seen[link.URL] {
			d.Status, d.Reason = LinkDuplicate, "repeated in this batch"
			res.add(d)
			continue
		}
		seen[link.URL] = true
		fillBatchMeta(&batchMeta, link)

		ep, by := matchEpisode(eps, link)
		if ep == nil {
			created, err := s.createEpisode(ctx, courseID, link, apply)
			if err != nil {
				return nil, err
			}
			eps = append(eps, created)
			d.Status, d.EpisodeID = LinkCreated, created.ID
			res.add(d)
			continue
		}

		d.EpisodeID, d.MatchedBy = ep.ID, by
		if ep.Asset(link.Kind).DownloadURL == link.URL {
			d.Status, d.Reason = LinkDuplicate, "link already stored"
			res.add(d)
			continue
		}
		wasExpired, err := s.updateAsset(ctx, ep, link, expiredKeys, apply)
		if err != nil {
			return nil, err
		}
		if wasExpired {
			recovered = append(recovered, model.ExpiredAssetKey(ep.ID, link.Kind))
		}
		d.Status = LinkMatched
		res.add(d)
	}

	if !apply || res.Matched+res.Created == 0 {
		return res, nil
	}

	batch := model.DownloadLinkBatch{
		CourseID:    courseID,
		RawLinks:    raw,
		Token:       batchMeta.Token,
		Hash:        batchMeta.Hash,
		CourseAPIID: batchMeta.CourseAPIID,
		IsActive:    true,
	}
	err = s.store.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.DownloadLinkBatch{}).
			Where("course_id = ? AND is_active = ?", courseID, true).
			Update("is_active", false).Error; err != nil {
			return err
		}
		return tx.Create(&batch).Error
	})
	if err != nil {
		return nil, fmt.Errorf("save link batch: %w", err)
	}
	res.BatchID = batch.ID

	if len(recovered) > 0 {
		done := map[string]bool{}
		for _, k := range recovered {
			done[k] = true
		}
		if err := s.store.UpdateCourseMetadata(ctx, courseID, func(meta map[string]interface{}) {
			delete(meta, model.MetaKeyLinksExpired)
			delete(meta, model.MetaKeyLinksExpiredAt)
			var left []string
			for _, k := range model.ExpiredAssets(meta) {
				if !done[k] {
					left = append(left, k)
				}
			}
			model.SetExpiredAssets(meta, left)
		}); err != nil {
			return nil, err
		}
		res.LinksExpiredCleared = true
	}

	s.logs.Info(ctx, courseID, 0, "links", "applied",
		fmt.Sprintf("Link batch applied: %d matched, %d created, %d unmatched, %d duplicates",
			res.Matched, res.Created, res.Unmatched, res.Duplicates),
		map[string]interface{}{"batch_id": batch.ID, "expired_recovered": len(recovered)})
	if s.bus != nil {
		s.bus.Publish(event.Event{Type: event.EventCourseUpdated, CourseID: courseID, Payload: map[string]interface{}{"course_id": courseID}})
	}
	return res, nil
}

func (r *LinkBatchResult) add(d LinkDetail) {
	switch d.Status {
	case LinkMatched:
		r.Matched++
	case LinkCreated:
		r.Created++
	case LinkDuplicate:
		r.Duplicates++
	default:
		r.Unmatched++
	}
	r.Details = append(r.Details, d)
}

// matchEpisode tries filename, then episode number, then fuzzy title.
func matchEpisode(eps []*model.Episode, link *parser.ParsedLink) (*model.Episode, string) {
	stem := strings.ToLower(parser.StripKnownSuffix(link.Filename))
	for _, ep := range eps {
		for _, kind := range model.AssetKinds {
			name := ep.Asset(kind).Filename
			if name == "" {
				continue
			}
			if strings.EqualFold(name, link.Filename) || strings.ToLower(parser.StripKnownSuffix(name)) == stem {
				return ep, "filename"
			}
		}
	}
	if link.EpisodeNumber != nil {
		for _, ep := range eps {
			if ep.EpisodeNumber != nil && *ep.EpisodeNumber == *link.EpisodeNumber {
				return ep, "number"
			}
		}
	}
	if link.EpisodeTitle != "" {
		var best *model.Episode
		bestScore := 0.0
		for _, ep := range eps {
			if score := titleSimilarity(ep.TitleEN, link.EpisodeTitle); score >= TitleMatchThreshold && score > bestScore {
				best, bestScore = ep, score
			}
		}
		if best != nil {
			return best, "title"
		}
	}
	return nil, ""
}

// updateAsset stores the new link on the matched asset. A failed or finished
// download goes back to pending so the next run fetches the fresh link;
// not_available stays terminal and only keeps the link. Reports whether the
// asset was waiting for a replacement of an expired link.
func (s *LinkService) updateAsset(ctx context.Context, ep *model.Episode, link *parser.ParsedLink, expiredKeys map[string]bool, apply bool) (bool, error) {
	kind := link.Kind
	current := ep.Status(kind)
	// a sibling failure may have overwritten the episode message
	clearMsg := current == model.AssetError && strings.HasPrefix(ep.ErrorMessage, downloader.ExpiredPrefix)
	expired := current == model.AssetError && (expiredKeys[model.ExpiredAssetKey(ep.ID, kind)] || clearMsg)

	updates := map[string]interface{}{
		kind.Column("download_url"): link.URL,
		kind.Column("filename"):     link.Filename,
	}
	if kind == model.KindSubtitle && link.SubtitleLanguage != "" {
		updates["subtitle_language"] = link.SubtitleLanguage
	}
	if ep.HashCode == "" && link.HashCode != "" {
		updates["hash_code"] = link.HashCode
	}
	if ep.EpisodeNumber == nil && link.EpisodeNumber != nil {
		updates["episode_number"] = *link.EpisodeNumber
		updates["sort_order"] = *link.EpisodeNumber
	}
	reset := false
	switch current {
	case model.AssetError, model.AssetDownloaded:
		reset = true
		updates[kind.Column("failed_stage")] = ""
	}
	if clearMsg {
		updates["error_message"] = ""
	}

	ep.SetLink(kind, link.URL, link.Filename)
	if reset {
		ep.SetStatus(kind, model.AssetPending)
	}
	if clearMsg {
		ep.ErrorMessage = ""
	}
	if !apply {
		return expired, nil
	}

	if reset {
		ok, err := s.store.TransitionAsset(ctx, ep.ID, kind, []model.AssetStatus{current}, model.AssetPending, updates)
		if err != nil {
			return false, err
		}
		if ok {
			return expired, nil
		}
		// status moved underneath us; still record the link
		delete(updates, kind.Column("failed_stage"))
		delete(updates, "error_message")
	}
	return expired, s.store.UpdateEpisode(ctx, ep.ID, updates)
}

func (s *LinkService) createEpisode(ctx context.Context, courseID uint, link *parser.ParsedLink, apply bool) (*model.Episode, error) {
	ep := &model.Episode{
		CourseID:       courseID,
		EpisodeNumber:  link.EpisodeNumber,
		TitleEN:        link.EpisodeTitle,
		HashCode:       link.HashCode,
		VideoStatus:    model.AssetPending,
		SubtitleStatus: model.AssetPending,
		ExerciseStatus: model.AssetNotAvailable,
	}
	if link.EpisodeNumber != nil {
		ep.SortOrder = *link.EpisodeNumber
	}
	ep.SetLink(link.Kind, link.URL, link.Filename)
	ep.SetStatus(link.Kind, model.AssetPending)
	if link.Kind == model.KindSubtitle {
		ep.SubtitleLanguage = link.SubtitleLanguage
	}
	if !apply {
		return ep, nil
	}
	if err := s.store.CreateEpisode(ctx, ep); err != nil {
		return nil, fmt.Errorf("create episode: %w", err)
	}
	return ep, nil
}

func fillBatchMeta(meta *parser.ParsedLink, link *parser.ParsedLink) {
	if meta.Token == "" {
		meta.Token = link.Token
	}
	if meta.Hash == "" {
		meta.Hash = link.Hash
	}
	if meta.CourseAPIID == "" {
		meta.CourseAPIID = link.CourseAPIID
	}
}

// ListBatches returns the stored batches of a course, newest first.
func (s *LinkService) ListBatches(ctx context.Context, courseID uint) ([]model.DownloadLinkBatch, error) {
	if _, err := s.store.GetCourse(ctx, courseID); err != nil {
		return nil, err
	}
	var batches []model.DownloadLinkBatch
	err := s.store.DB.WithContext(ctx).Where("course_id = ?", courseID).
		Order("created_at DESC, id DESC").Find(&batches).Error
	return batches, err
}
