package downloader

import "context"

// Downloader 定义下载器通用接口
type Downloader interface {
	// Fetch 把 url 下载到 dest，已存在的部分文件会尝试续传。
	// 失败时返回 *Error，Kind 区分链接过期与网络错误。
	Fetch(ctx context.Context, url, dest string, opts Options) (Result, error)
}

type Options struct {
	// DebugMode adds the X-Debug-Mode header so the source can shorten files.
	DebugMode bool
	Headers   map[string]string
	// Progress is called with downloaded/total bytes; total is 0 when unknown.
	Progress func(downloaded, total int64)
}

type Result struct {
	Path       string
	TotalSize  int64
	Downloaded int64
	Resumed    bool
}
