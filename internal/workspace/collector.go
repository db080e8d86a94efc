package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"contentflow/internal/config"
	"contentflow/internal/fetch"
	"contentflow/internal/models"
	"contentflow/internal/retry"
	"contentflow/internal/util"

	"golang.org/x/sync/errgroup"
)

const maxBlockDepth = 20

// Listing and extraction share the 0-100 progress scale.
const (
	listingShare    = 30
	extractionShare = 100 - listingShare
)

type Page struct {
	PageRef
	Text string `json:"text"`
}

// Prefetched is the bundle handed to an ingest run for this page.
func (p Page) Prefetched() fetch.Prefetched {
	title := strings.TrimSpace(p.Title)
	return fetch.Prefetched{
		Type:               models.TypeNotion,
		ContentToVectorize: strings.TrimSpace(title + "\n\n" + p.Text),
		ContentToSave:      p.Text,
		Title:              title,
		URL:                p.URL,
		PageID:             p.ID,
	}
}

// OversizedPage is a page whose text is over the ingest limit. Its text is
// left out so it never travels through workflow history.
type OversizedPage struct {
	PageRef
	Chars int `json:"chars"`
}

type BatchResult struct {
	Pages     []Page          `json:"pages"`
	Dropped   []PageRef       `json:"dropped,omitempty"`
	Oversized []OversizedPage `json:"oversized,omitempty"`
}

type Collector struct {
	api    API
	cfg    config.WorkspaceConfig
	policy retry.Policy
	logger *slog.Logger
}

func NewCollector(api API, cfg config.WorkspaceConfig, policy retry.Policy, logger *slog.Logger) *Collector {
	if cfg.PageSize <= 0 || cfg.PageSize > 100 {
		cfg.PageSize = 100
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{api: api, cfg: cfg, policy: policy, logger: logger}
}

// ListPage fetches one page of the workspace search, starting at cursor.
func (c *Collector) ListPage(ctx context.Context, cursor string) (PageListing, error) {
	var out PageListing
	err := c.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = c.api.SearchPages(ctx, cursor, c.cfg.PageSize)
		return err
	})
	if err != nil {
		return PageListing{}, fmt.Errorf("list workspace pages: %w", err)
	}
	return out, nil
}

// ExtractBatch renders every page in refs with at most BatchSize requests in
// flight. Output order follows refs. Pages shorter than MinPageChars are
// reported in Dropped and pages longer than MaxPageChars in Oversized. Any
// page failing after retries fails the batch.
func (c *Collector) ExtractBatch(ctx context.Context, refs []PageRef) (BatchResult, error) {
	texts := make([]string, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.BatchSize)
	for i, ref := range refs {
		g.Go(func() error {
			text, err := c.extractPage(gctx, ref.ID)
			if err != nil {
				return fmt.Errorf("extract page %s: %w", ref.ID, err)
			}
			texts[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return BatchResult{}, err
	}

	var out BatchResult
	for i, ref := range refs {
		chars := util.RuneLen(strings.TrimSpace(texts[i]))
		switch {
		case chars < c.cfg.MinPageChars:
			c.logger.Info("dropping short workspace page", "page_id", ref.ID, "chars", chars)
			out.Dropped = append(out.Dropped, ref)
		case c.cfg.MaxPageChars > 0 && chars > c.cfg.MaxPageChars:
			c.logger.Warn("workspace page too large", "page_id", ref.ID, "chars", chars, "max", c.cfg.MaxPageChars)
			out.Oversized = append(out.Oversized, OversizedPage{PageRef: ref, Chars: chars})
		default:
			out.Pages = append(out.Pages, Page{PageRef: ref, Text: texts[i]})
		}
	}
	return out, nil
}

func (c *Collector) extractPage(ctx context.Context, pageID string) (string, error) {
	var blocks []Block
	if err := c.walk(ctx, pageID, 0, &blocks); err != nil {
		return "", err
	}
	return util.SanitizeText(Render(blocks)), nil
}

func (c *Collector) walk(ctx context.Context, blockID string, depth int, out *[]Block) error {
	if depth > maxBlockDepth {
		return nil
	}
	cursor := ""
	for {
		var listing BlockListing
		err := c.policy.Do(ctx, func(ctx context.Context) error {
			var err error
			listing, err = c.api.BlockChildren(ctx, blockID, cursor, c.cfg.PageSize)
			return err
		})
		if err != nil {
			return err
		}
		for _, b := range listing.Blocks {
			b.Depth = depth
			*out = append(*out, b)
			if b.HasChildren && !b.Link {
				if err := c.walk(ctx, b.ID, depth+1, out); err != nil {
					return err
				}
			}
		}
		if !listing.HasMore || listing.NextCursor == "" {
			return nil
		}
		cursor = listing.NextCursor
	}
}

// ListingProgress climbs toward the listing share as search pages come in.
func ListingProgress(searchPages int) int {
	if searchPages <= 0 {
		return 0
	}
	return listingShare - listingShare/(searchPages+1)
}

// ExtractionProgress maps done/total pages onto the remaining share.
func ExtractionProgress(done, total int) int {
	if total <= 0 {
		return 100
	}
	if done > total {
		done = total
	}
	return listingShare + extractionShare*done/total
}
