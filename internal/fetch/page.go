package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"contentflow/internal/models"

	"golang.org/x/sync/errgroup"
)

type readerResponse struct {
	Data struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
		Content     string `json:"content"`
	} `json:"data"`
}

type metadataResponse struct {
	Status string `json:"status"`
	Data   struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Publisher   string `json:"publisher"`
		Author      string `json:"author"`
		Lang        string `json:"lang"`
		URL         string `json:"url"`
		Image       *struct {
			URL string `json:"url"`
		} `json:"image"`
		Logo *struct {
			URL string `json:"url"`
		} `json:"logo"`
	} `json:"data"`
}

// fetchPage calls the readability and metadata services concurrently. A
// failure from either fails the page.
func (f *Fetcher) fetchPage(ctx context.Context, ref string) (Bundle, error) {
	target := normalizeLink(ref)

	var (
		article readerResponse
		meta    metadataResponse
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		body, err := f.get(gctx, serviceReader, strings.TrimRight(f.opts.ReaderURL, "/")+"/"+target, "application/json")
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, &article); err != nil || article.Data.Content == "" {
			// Some reader deployments answer in plain markdown.
			article = readerResponse{}
			article.Data.Content = string(body)
		}
		return nil
	})
	g.Go(func() error {
		body, err := f.get(gctx, serviceMetadata, withQuery(f.opts.MetadataURL, "url", target), "application/json")
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, &meta); err != nil {
			return fmt.Errorf("decode %s response: %w", serviceMetadata, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Bundle{}, fmt.Errorf("fetch page %s: %w", target, err)
	}

	title := firstNonEmpty(meta.Data.Title, article.Data.Title)
	description := firstNonEmpty(meta.Data.Description, article.Data.Description)
	image := ""
	if meta.Data.Image != nil {
		image = meta.Data.Image.URL
	} else if meta.Data.Logo != nil {
		image = meta.Data.Logo.URL
	}
	content := strings.TrimSpace(article.Data.Content)

	return Bundle{
		Type:               models.TypePage,
		ContentToVectorize: joinNonEmpty("\n\n", title, description, content),
		ContentToSave:      content,
		Title:              title,
		Description:        description,
		PreviewImage:       image,
		URL:                ref,
		Page: &PageDetails{
			Publisher: meta.Data.Publisher,
			Author:    meta.Data.Author,
			Lang:      meta.Data.Lang,
		},
	}, nil
}

func normalizeLink(ref string) string {
	s := strings.TrimSpace(ref)
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	return s
}

func withQuery(base, key, value string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base + "?" + url.QueryEscape(key) + "=" + url.QueryEscape(value)
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func joinNonEmpty(sep string, parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}
