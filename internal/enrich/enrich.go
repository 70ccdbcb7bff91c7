// Package enrich fills citation metadata from PubMed and resolves namespace
// resources over HTTP. Everything here is best effort from the pipeline's
// point of view: enrichment failures degrade the result, they never fail an
// upload.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/bel-commons/bel-commons/pkg/bel"
	"github.com/bel-commons/bel-commons/pkg/logger"
)

// DefaultPubMedBase is the NCBI eutils endpoint.
const DefaultPubMedBase = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

// pubmedBatchSize caps ids per esummary request, per NCBI guidance.
const pubmedBatchSize = 200

// Client talks to PubMed with the polite request rate NCBI asks for.
type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
}

// NewClient returns a PubMed client against the given base URL. An empty
// base uses the public NCBI endpoint.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultPubMedBase
	}
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)
	return &Client{
		http: httpClient,
		// 3 requests per second without an API key.
		limiter: rate.NewLimiter(rate.Limit(3), 1),
	}
}

type pubmedSummary struct {
	Result map[string]json.RawMessage `json:"result"`
}

type pubmedArticle struct {
	Title   string `json:"title"`
	PubDate string `json:"pubdate"`
	Authors []struct {
		Name string `json:"name"`
	} `json:"authors"`
}

// EnrichCitations fills title, authors and date on every PubMed citation in
// the graph that is still missing them. Edges whose reference cannot be
// fetched keep what they have.
func (c *Client) EnrichCitations(ctx context.Context, g *bel.Graph) error {
	pending := make(map[string][]string)
	for key, e := range g.Edges {
		if e.Citation == nil || !strings.EqualFold(e.Citation.Type, "PubMed") {
			continue
		}
		if e.Citation.Name != "" && len(e.Citation.Authors) > 0 {
			continue
		}
		pending[e.Citation.Reference] = append(pending[e.Citation.Reference], key)
	}
	if len(pending) == 0 {
		return nil
	}

	ids := make([]string, 0, len(pending))
	for id := range pending {
		ids = append(ids, id)
	}

	for start := 0; start < len(ids); start += pubmedBatchSize {
		end := min(start+pubmedBatchSize, len(ids))
		articles, err := c.fetchSummaries(ctx, ids[start:end])
		if err != nil {
			return fmt.Errorf("fetch pubmed summaries: %w", err)
		}
		for id, article := range articles {
			for _, edgeKey := range pending[id] {
				e := g.Edges[edgeKey]
				citation := *e.Citation
				if citation.Name == "" {
					citation.Name = article.Title
				}
				if len(citation.Authors) == 0 {
					for _, a := range article.Authors {
						citation.Authors = append(citation.Authors, a.Name)
					}
				}
				if citation.Date == "" {
					citation.Date = article.PubDate
				}
				e.Citation = &citation
				g.Edges[edgeKey] = e
			}
		}
	}
	logger.Debug("[Enrich] Citations enriched", "references", len(ids))
	return nil
}

func (c *Client) fetchSummaries(ctx context.Context, ids []string) (map[string]pubmedArticle, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var summary pubmedSummary
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"db":      "pubmed",
			"retmode": "json",
			"id":      strings.Join(ids, ","),
		}).
		SetResult(&summary).
		Get("/esummary.fcgi")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("pubmed esummary returned %s", resp.Status())
	}

	out := make(map[string]pubmedArticle, len(ids))
	for uid, raw := range summary.Result {
		if uid == "uids" {
			continue
		}
		var article pubmedArticle
		if err := json.Unmarshal(raw, &article); err != nil {
			continue
		}
		out[uid] = article
	}
	return out, nil
}
