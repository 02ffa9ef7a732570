package product

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Info 从商品页抓取到的信息。
type Info struct {
	Title       string
	Description string
	Price       float64
	ImageURL    string
	Keywords    string // 逗号分隔，来自 meta keywords
}

// Scraper 抓取商品详情页的公开元信息（OG 标签优先）。
type Scraper struct {
	httpClient *http.Client
}

// NewScraper 创建抓取器。hc 为空时使用 15s 超时的默认客户端。
func NewScraper(hc *http.Client) *Scraper {
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &Scraper{httpClient: hc}
}

// Fetch 抓取并解析商品页。页面不可达或非 HTML 返回错误，
// 个别字段缺失不视为错误。
func (s *Scraper) Fetch(ctx context.Context, url string) (*Info, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; InfluenceHub/1.0)")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch product page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch product page: status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse product page: %w", err)
	}

	info := &Info{
		Title:       firstMeta(doc, `meta[property="og:title"]`),
		Description: firstMeta(doc, `meta[property="og:description"]`, `meta[name="description"]`),
		ImageURL:    firstMeta(doc, `meta[property="og:image"]`),
		Keywords:    firstMeta(doc, `meta[name="keywords"]`),
	}
	if info.Title == "" {
		info.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	if raw := firstMeta(doc, `meta[property="og:price:amount"]`, `meta[property="product:price:amount"]`, `meta[itemprop="price"]`); raw != "" {
		if price, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64); err == nil && price > 0 {
			info.Price = price
		}
	}

	return info, nil
}

func firstMeta(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if v, ok := doc.Find(sel).First().Attr("content"); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}
