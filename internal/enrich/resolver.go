package enrich

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// HTTPResolver fetches namespace and annotation resource files (.belns /
// .belanno) and caches the parsed name sets per URL. It satisfies the
// parser's resolver interface.
type HTTPResolver struct {
	http    *resty.Client
	limiter *rate.Limiter

	mu    sync.Mutex
	cache map[string]map[string]struct{}
}

// NewHTTPResolver returns a resolver with an in-process cache. Namespace
// files are large but static, so one fetch per URL per process is enough.
func NewHTTPResolver() *HTTPResolver {
	return &HTTPResolver{
		http: resty.New().
			SetTimeout(60 * time.Second).
			SetRetryCount(2).
			SetRetryWaitTime(time.Second),
		limiter: rate.NewLimiter(rate.Limit(5), 2),
		cache:   make(map[string]map[string]struct{}),
	}
}

// Resolve fetches and parses the resource at url. The keyword is only used
// for error reporting.
func (r *HTTPResolver) Resolve(ctx context.Context, keyword, url string) (map[string]struct{}, error) {
	r.mu.Lock()
	if cached, ok := r.cache[url]; ok {
		r.mu.Unlock()
		return cached, nil
	}
	r.mu.Unlock()

	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := r.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetch namespace %s: %w", keyword, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch namespace %s: %s returned %s", keyword, url, resp.Status())
	}

	names := ParseResourceValues(string(resp.Body()))
	r.mu.Lock()
	r.cache[url] = names
	r.mu.Unlock()
	return names, nil
}

// ParseResourceValues extracts the name set from a BEL resource file. The
// format is INI-like; names live in the [Values] section as
// "name|encoding" lines.
func ParseResourceValues(body string) map[string]struct{} {
	names := make(map[string]struct{})
	inValues := false
	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			inValues = strings.EqualFold(line, "[Values]")
			continue
		}
		if !inValues {
			continue
		}
		name, _, _ := strings.Cut(line, "|")
		if name != "" {
			names[name] = struct{}{}
		}
	}
	return names
}
