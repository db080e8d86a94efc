// Package workspace imports every page of a Notion workspace as prefetched
// notion bundles.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"contentflow/internal/retry"

	"github.com/jomei/notionapi"
	"golang.org/x/time/rate"
)

const serviceNotion = "notion"

// Notion allows an average of three requests per second per integration.
const notionRatePerSec = 3

type PageRef struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	URL        string    `json:"url"`
	LastEdited time.Time `json:"last_edited"`
}

type PageListing struct {
	Pages      []PageRef `json:"pages"`
	NextCursor string    `json:"next_cursor,omitempty"`
	HasMore    bool      `json:"has_more"`
}

// Block is the renderable part of one workspace block.
type Block struct {
	ID          string
	Type        string
	Text        string
	Checked     bool
	Language    string
	HasChildren bool
	// Link blocks point at other pages and are never descended into.
	Link  bool
	Depth int
}

type BlockListing struct {
	Blocks     []Block
	NextCursor string
	HasMore    bool
}

// API is the paginated surface the collector needs.
type API interface {
	SearchPages(ctx context.Context, cursor string, pageSize int) (PageListing, error)
	BlockChildren(ctx context.Context, blockID, cursor string, pageSize int) (BlockListing, error)
}

type NotionAPI struct {
	client  *notionapi.Client
	limiter *rate.Limiter
}

// NewNotionAPI builds a client whose transport surfaces rate limiting and
// other non-2xx answers as retry errors. base may be nil.
func NewNotionAPI(token string, base http.RoundTripper) *NotionAPI {
	hc := &http.Client{Transport: &statusTransport{base: base}, Timeout: 30 * time.Second}
	return &NotionAPI{
		client:  notionapi.NewClient(notionapi.Token(token), notionapi.WithHTTPClient(hc)),
		limiter: rate.NewLimiter(rate.Limit(notionRatePerSec), 1),
	}
}

func (n *NotionAPI) SearchPages(ctx context.Context, cursor string, pageSize int) (PageListing, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return PageListing{}, err
	}
	req := &notionapi.SearchRequest{
		Filter:   notionapi.SearchFilter{Value: "page", Property: "object"},
		PageSize: pageSize,
	}
	if cursor != "" {
		req.StartCursor = notionapi.Cursor(cursor)
	}
	resp, err := n.client.Search.Do(ctx, req)
	if err != nil {
		return PageListing{}, normalizeErr("search pages", err)
	}
	out := PageListing{NextCursor: string(resp.NextCursor), HasMore: resp.HasMore}
	for _, obj := range resp.Results {
		page, ok := obj.(*notionapi.Page)
		if !ok || page.Archived {
			continue
		}
		out.Pages = append(out.Pages, PageRef{
			ID:         string(page.ID),
			Title:      pageTitle(page),
			URL:        pageURL(page),
			LastEdited: page.LastEditedTime,
		})
	}
	return out, nil
}

func (n *NotionAPI) BlockChildren(ctx context.Context, blockID, cursor string, pageSize int) (BlockListing, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return BlockListing{}, err
	}
	pag := &notionapi.Pagination{PageSize: pageSize}
	if cursor != "" {
		pag.StartCursor = notionapi.Cursor(cursor)
	}
	resp, err := n.client.Block.GetChildren(ctx, notionapi.BlockID(blockID), pag)
	if err != nil {
		return BlockListing{}, normalizeErr("block children "+blockID, err)
	}
	out := BlockListing{NextCursor: string(resp.NextCursor), HasMore: resp.HasMore}
	for _, b := range resp.Results {
		out.Blocks = append(out.Blocks, toBlock(b))
	}
	return out, nil
}

func toBlock(b notionapi.Block) Block {
	out := Block{ID: string(b.GetID()), Type: string(b.GetType()), HasChildren: b.GetHasChildren()}
	switch v := b.(type) {
	case *notionapi.ParagraphBlock:
		out.Type, out.Text = typeParagraph, plainText(v.Paragraph.RichText)
	case *notionapi.Heading1Block:
		out.Type, out.Text = typeHeading1, plainText(v.Heading1.RichText)
	case *notionapi.Heading2Block:
		out.Type, out.Text = typeHeading2, plainText(v.Heading2.RichText)
	case *notionapi.Heading3Block:
		out.Type, out.Text = typeHeading3, plainText(v.Heading3.RichText)
	case *notionapi.BulletedListItemBlock:
		out.Type, out.Text = typeBulleted, plainText(v.BulletedListItem.RichText)
	case *notionapi.NumberedListItemBlock:
		out.Type, out.Text = typeNumbered, plainText(v.NumberedListItem.RichText)
	case *notionapi.ToDoBlock:
		out.Type, out.Text, out.Checked = typeToDo, plainText(v.ToDo.RichText), v.ToDo.Checked
	case *notionapi.CodeBlock:
		out.Type, out.Text, out.Language = typeCode, plainText(v.Code.RichText), v.Code.Language
	case *notionapi.QuoteBlock:
		out.Type, out.Text = typeQuote, plainText(v.Quote.RichText)
	case *notionapi.ChildPageBlock, *notionapi.ChildDatabaseBlock, *notionapi.LinkToPageBlock:
		out.Link = true
	}
	return out
}

func plainText(rt []notionapi.RichText) string {
	var sb strings.Builder
	for _, r := range rt {
		sb.WriteString(r.PlainText)
	}
	return sb.String()
}

func pageTitle(page *notionapi.Page) string {
	for _, prop := range page.Properties {
		if t, ok := prop.(*notionapi.TitleProperty); ok {
			if s := strings.TrimSpace(plainText(t.Title)); s != "" {
				return s
			}
		}
	}
	return "Untitled"
}

func pageURL(page *notionapi.Page) string {
	if page.URL != "" {
		return page.URL
	}
	return "https://www.notion.so/" + strings.ReplaceAll(string(page.ID), "-", "")
}

// normalizeErr keeps retry errors produced by the transport visible through
// whatever wrapping the client applies.
func normalizeErr(op string, err error) error {
	var rl *retry.RateLimitError
	var se *retry.StatusError
	switch {
	case errors.As(err, &rl), errors.As(err, &se), retry.IsPermanent(err):
		return fmt.Errorf("notion %s: %w", op, err)
	case strings.Contains(err.Error(), "429"):
		return fmt.Errorf("notion %s: %w", op, &retry.RateLimitError{Service: serviceNotion})
	default:
		return fmt.Errorf("notion %s: %w", op, err)
	}
}
