package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pokerjest/acms/internal/config"
	"github.com/pokerjest/acms/internal/model"
)

var ErrNotConfigured = errors.New("ai provider not configured")

// Translator 标题/简介翻译，失败不影响主流程
type Translator interface {
	TranslateTitle(ctx context.Context, title, platform string) (string, error)
	TranslateDescription(ctx context.Context, description string) (string, error)
}

type ContentGenerator interface {
	// GenerateCourseContent returns nil when the provider answered with an
	// incomplete document.
	GenerateCourseContent(ctx context.Context, course *model.Course) (*CourseContent, error)
}

// CourseContent is stored under extra_metadata.seo_content.
type CourseContent struct {
	CourseOverview           string   `json:"course_overview"`
	Prerequisites            []string `json:"prerequisites"`
	PrerequisitesDescription string   `json:"prerequisites_description"`
	WhatYouWillLearn         []string `json:"what_you_will_learn"`
	CourseGoals              []string `json:"course_goals"`
}

// Complete reports whether every field carries something.
func (c *CourseContent) Complete() bool {
	if c == nil {
		return false
	}
	return strings.TrimSpace(c.CourseOverview) != "" &&
		strings.TrimSpace(c.PrerequisitesDescription) != "" &&
		nonEmpty(c.Prerequisites) && nonEmpty(c.WhatYouWillLearn) && nonEmpty(c.CourseGoals)
}

func (c *CourseContent) Map() map[string]interface{} {
	return map[string]interface{}{
		"course_overview":           c.CourseOverview,
		"prerequisites":             c.Prerequisites,
		"prerequisites_description": c.PrerequisitesDescription,
		"what_you_will_learn":       c.WhatYouWillLearn,
		"course_goals":              c.CourseGoals,
	}
}

func nonEmpty(items []string) bool {
	for _, s := range items {
		if strings.TrimSpace(s) != "" {
			return true
		}
	}
	return false
}

// Client speaks the OpenAI-compatible chat completions API.
type Client struct {
	client *resty.Client
	Model  string
	ready  bool
}

func NewClient(cfg config.AIConfig) *Client {
	c := resty.New()
	c.SetTimeout(60 * time.Second)
	c.SetBaseURL(strings.TrimSuffix(cfg.Endpoint, "/"))
	c.SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		c.SetAuthToken(cfg.APIKey)
	}
	c.SetRetryCount(2).SetRetryWaitTime(2 * time.Second)

	return &Client{
		client: c,
		Model:  cfg.Model,
		ready:  cfg.APIKey != "" && cfg.Endpoint != "",
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	if !c.ready {
		return "", ErrNotConfigured
	}
	var result chatResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(chatRequest{
			Model:       c.Model,
			Messages:    []chatMessage{{Role: "user", Content: prompt}},
			Temperature: 0.2,
		}).
		SetResult(&result).
		SetError(&result).
		Post("/chat/completions")
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		if result.Error != nil {
			return "", fmt.Errorf("ai error: %s: %s", resp.Status(), result.Error.Message)
		}
		return "", fmt.Errorf("ai error: %s", resp.Status())
	}
	if len(result.Choices) == 0 {
		return "", errors.New("ai returned no choices")
	}
	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}

func (c *Client) TranslateTitle(ctx context.Context, title, platform string) (string, error) {
	if platform == "" {
		platform = "Unknown"
	}
	out, err := c.complete(ctx, fmt.Sprintf(titlePrompt, title, platform))
	if err != nil {
		return "", err
	}
	if out == "" {
		return "", errors.New("empty translation")
	}
	return out, nil
}

func (c *Client) TranslateDescription(ctx context.Context, description string) (string, error) {
	return c.complete(ctx, fmt.Sprintf(descriptionPrompt, description))
}

func (c *Client) GenerateCourseContent(ctx context.Context, course *model.Course) (*CourseContent, error) {
	out, err := c.complete(ctx, fmt.Sprintf(contentPrompt, course.TitleEN, course.Instructor, course.DescriptionEN))
	if err != nil {
		return nil, err
	}
	content, err := ParseCourseContent(out)
	if err != nil {
		return nil, err
	}
	if !content.Complete() {
		return nil, nil
	}
	return content, nil
}

// ParseCourseContent accepts the raw model answer, with or without a
// ```json fence around it.
func ParseCourseContent(raw string) (*CourseContent, error) {
	raw = strings.TrimSpace(raw)
	if i := strings.Index(raw, "{"); i >= 0 {
		if j := strings.LastIndex(raw, "}"); j > i {
			raw = raw[i : j+1]
		}
	}
	var content CourseContent
	if err := json.Unmarshal([]byte(raw), &content); err != nil {
		return nil, fmt.Errorf("parse course content: %w", err)
	}
	return &content, nil
}

const titlePrompt = "Translate the following online course title to Persian (Farsi). " +
	"Keep technical terms in English parenthetically. " +
	"Make it natural and appealing for Iranian audience. " +
	"Title: %s\nPlatform: %s\nOutput format: Just the translated title, nothing else."

const descriptionPrompt = "Translate the following course description to Persian. " +
	"Make it professional and suitable for an educational platform. " +
	"Keep technical terms in English parenthetically. " +
	"Description: %s\nOutput: Translated description in Persian."

const contentPrompt = "Write Persian marketing content for this online course.\n" +
	"Title: %s\nInstructor: %s\nDescription: %s\n" +
	"Answer with a single JSON object with the keys course_overview (string), " +
	"prerequisites (array of strings), prerequisites_description (string), " +
	"what_you_will_learn (array of strings), course_goals (array of strings). " +
	"Every key must be present and non-empty."
