package downloader

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ExpiredPrefix marks an episode error that needs a fresh link batch rather
// than a retry.
const ExpiredPrefix = "LINK_EXPIRED:"

const ExpiredMessage = ExpiredPrefix + " Download link has expired. Please provide new links."

type ErrorKind string

const (
	KindLinkExpired ErrorKind = "link_expired"
	KindNetwork     ErrorKind = "network"
	KindHTTP        ErrorKind = "http"
)

type Error struct {
	Kind       ErrorKind
	StatusCode int
	URL        string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsExpired reports whether err is (or wraps) a LinkExpired download error.
func IsExpired(err error) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == KindLinkExpired
}

// Message 写入 episode.error_message 的文本
func Message(kind string, err error) string {
	if IsExpired(err) {
		return ExpiredMessage
	}
	return fmt.Sprintf("%s download failed: %v", kind, err)
}

var expiredHints = []string{"expired", "invalid token", "forbidden", "signature"}

// classify 只有带 token+hash 的链接才可能被判定为过期
func classify(rawURL string, status int, cause error) *Error {
	tokenized := IsTokenizedURL(rawURL)
	msg := ""
	if cause != nil {
		msg = strings.ToLower(cause.Error())
	}

	kind := KindNetwork
	if status != 0 {
		kind = KindHTTP
	}
	switch {
	case tokenized && (status == 401 || status == 403 || status == 410):
		kind = KindLinkExpired
	case tokenized && status == 404 && (strings.Contains(msg, "token") || strings.Contains(msg, "hash")):
		kind = KindLinkExpired
	case tokenized && containsAny(msg, expiredHints):
		kind = KindLinkExpired
	}
	if cause == nil {
		cause = fmt.Errorf("unexpected status %d", status)
	}
	return &Error{Kind: kind, StatusCode: status, URL: rawURL, Err: cause}
}

func IsTokenizedURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	q := u.Query()
	return q.Has("token") && q.Has("hash")
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
