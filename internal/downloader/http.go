package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pokerjest/acms/internal/config"
	"github.com/pokerjest/acms/internal/logger"
)

const chunkSize = 1 << 20

// HTTPDownloader 基于 resty 的直链下载器，支持断点续传
type HTTPDownloader struct {
	client  *resty.Client
	log     *logger.Logger
	timeout time.Duration
}

func NewHTTPDownloader(cfg config.DownloadConfig, log *logger.Logger) *HTTPDownloader {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	// 不设置整体超时，大文件靠 ctx 取消；只限制等待响应头的时间
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ResponseHeaderTimeout: timeout,
		TLSHandshakeTimeout:   10 * time.Second,
	}

	client := resty.New().
		SetTransport(transport).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept", "*/*").
		SetHeader("Accept-Language", "en-US,en;q=0.9,fa;q=0.8")

	client.SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(time.Second).
		SetRetryMaxWaitTime(15 * time.Second)

	client.OnBeforeRequest(func(c *resty.Client, req *resty.Request) error {
		log.Debug("download request", "method", req.Method, "url", redactURL(req.URL))
		return nil
	})

	return &HTTPDownloader{client: client, log: log, timeout: timeout}
}

func (d *HTTPDownloader) Fetch(ctx context.Context, rawURL, dest string, opts Options) (Result, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return Result{}, fmt.Errorf("prepare destination: %w", err)
	}
	headers := d.headers(rawURL, opts)

	total, err := d.head(ctx, rawURL, headers)
	if err != nil {
		return Result{}, err
	}

	var existing int64
	if fi, err := os.Stat(dest); err == nil {
		existing = fi.Size()
	}
	if total > 0 && existing == total {
		d.log.Info("file already complete, skip download", "dest", dest, "size", total)
		return Result{Path: dest, TotalSize: total, Downloaded: existing}, nil
	}

	req := d.client.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetDoNotParseResponse(true)

	resumed := false
	if existing > 0 && total > 0 && existing < total {
		req.SetHeader("Range", fmt.Sprintf("bytes=%d-", existing))
		resumed = true
	} else {
		existing = 0
	}

	resp, err := req.Get(rawURL)
	if err != nil {
		return Result{}, classify(rawURL, 0, err)
	}
	body := resp.RawBody()
	defer body.Close()

	status := resp.StatusCode()
	if status != http.StatusOK && status != http.StatusPartialContent {
		snippet, _ := io.ReadAll(io.LimitReader(body, 512))
		return Result{}, classify(rawURL, status, errors.New(strings.TrimSpace(string(snippet))))
	}
	// 服务端忽略了 Range，从头写
	if resumed && status == http.StatusOK {
		resumed = false
		existing = 0
	}

	flags := os.O_CREATE | os.O_WRONLY
	if resumed {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	out, err := os.OpenFile(dest, flags, 0644)
	if err != nil {
		return Result{}, fmt.Errorf("open destination: %w", err)
	}
	defer out.Close()

	downloaded := existing
	buf := make([]byte, chunkSize)
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return Result{}, fmt.Errorf("write destination: %w", werr)
			}
			downloaded += int64(n)
			if opts.Progress != nil {
				opts.Progress(downloaded, total)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			// 保留已写入部分，下次续传
			return Result{}, classify(rawURL, 0, rerr)
		}
	}

	return Result{Path: dest, TotalSize: total, Downloaded: downloaded, Resumed: resumed}, nil
}

// head returns the advertised size, 0 when unknown. Servers that reject HEAD
// are tolerated; auth failures are not.
func (d *HTTPDownloader) head(ctx context.Context, rawURL string, headers map[string]string) (int64, error) {
	hctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	resp, err := d.client.R().SetContext(hctx).SetHeaders(headers).Head(rawURL)
	if err != nil {
		return 0, classify(rawURL, 0, err)
	}
	switch status := resp.StatusCode(); {
	case status == http.StatusMethodNotAllowed || status == http.StatusNotImplemented:
		return 0, nil
	case status >= 400:
		return 0, classify(rawURL, status, errors.New(resp.Status()))
	}
	size, _ := strconv.ParseInt(resp.Header().Get("Content-Length"), 10, 64)
	return size, nil
}

func (d *HTTPDownloader) headers(rawURL string, opts Options) map[string]string {
	h := map[string]string{}
	if u, err := url.Parse(rawURL); err == nil && strings.HasSuffix(strings.ToLower(u.Hostname()), "git.ir") {
		h["Referer"] = "https://git.ir/"
	}
	if opts.DebugMode {
		h["X-Debug-Mode"] = "1"
	}
	for k, v := range opts.Headers {
		h[k] = v
	}
	return h
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	for _, k := range []string{"token", "hash"} {
		if q.Has(k) {
			q.Set(k, "***")
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
