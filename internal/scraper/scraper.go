package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/pokerjest/acms/internal/config"
	"github.com/pokerjest/acms/internal/parser"
)

// Scraper 抓取课程页面的元数据
type Scraper interface {
	Scrape(ctx context.Context, sourceURL string) (*CourseData, error)
}

type CourseData struct {
	TitleEN        string
	TitleFA        string
	DescriptionEN  string
	DescriptionFA  string
	Instructor     string
	ThumbnailURL   string
	SourcePlatform string
	LecturesCount  int
	Episodes       []EpisodeData
	Extra          map[string]interface{}
}

type EpisodeData struct {
	Number  *int
	TitleEN string
}

// HTMLScraper reads OpenGraph tags plus any element marked as an episode
// (".episode", "[data-episode]", ".lecture-title").
type HTMLScraper struct {
	client *resty.Client
}

func NewHTMLScraper(cfg config.ScraperConfig) *HTMLScraper {
	c := resty.New()
	c.SetTimeout(30 * time.Second)
	c.SetHeader("User-Agent", cfg.UserAgent)
	c.SetHeader("Accept-Language", "en-US,en;q=0.9,fa;q=0.8")
	c.SetRetryCount(2)
	return &HTMLScraper{client: c}
}

func (s *HTMLScraper) Scrape(ctx context.Context, sourceURL string) (*CourseData, error) {
	resp, err := s.client.R().SetContext(ctx).SetDoNotParseResponse(true).Get(sourceURL)
	if err != nil {
		return nil, err
	}
	body := resp.RawBody()
	defer body.Close()
	if resp.IsError() {
		return nil, fmt.Errorf("scrape %s: %s", sourceURL, resp.Status())
	}

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	data := Extract(doc)
	if data.SourcePlatform == "" {
		if u, err := url.Parse(sourceURL); err == nil {
			data.SourcePlatform = strings.TrimPrefix(u.Hostname(), "www.")
		}
	}
	return data, nil
}

// Extract 从已解析的文档中提取课程信息
func Extract(doc *goquery.Document) *CourseData {
	data := &CourseData{Extra: map[string]interface{}{}}

	data.TitleEN = firstNonEmpty(meta(doc, "og:title"), strings.TrimSpace(doc.Find("h1").First().Text()), strings.TrimSpace(doc.Find("title").Text()))
	data.DescriptionEN = firstNonEmpty(meta(doc, "og:description"), meta(doc, "description"))
	data.ThumbnailURL = meta(doc, "og:image")
	data.SourcePlatform = meta(doc, "og:site_name")
	data.Instructor = firstNonEmpty(meta(doc, "author"), strings.TrimSpace(doc.Find(".instructor, [itemprop=author]").First().Text()))

	if tags := meta(doc, "keywords"); tags != "" {
		data.Extra["tags"] = strings.Split(tags, ",")
	}

	seen := map[int]bool{}
	doc.Find(".episode, [data-episode], .lecture-title").Each(func(i int, sel *goquery.Selection) {
		title := strings.Join(strings.Fields(sel.Text()), " ")
		if title == "" {
			return
		}
		ep := EpisodeData{TitleEN: title}
		if v, ok := sel.Attr("data-episode"); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				ep.Number = &n
			}
		}
		if ep.Number == nil {
			info := parser.ParseEpisodeFilename(title)
			ep.Number = info.Number
			if info.Title != "" {
				ep.TitleEN = info.Title
			}
		}
		if ep.Number == nil {
			n := i + 1
			ep.Number = &n
		}
		if seen[*ep.Number] {
			return
		}
		seen[*ep.Number] = true
		data.Episodes = append(data.Episodes, ep)
	})
	data.LecturesCount = len(data.Episodes)
	return data
}

func meta(doc *goquery.Document, name string) string {
	sel := doc.Find(fmt.Sprintf(`meta[property=%q], meta[name=%q]`, name, name)).First()
	v, _ := sel.Attr("content")
	return strings.TrimSpace(v)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
