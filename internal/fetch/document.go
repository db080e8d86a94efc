package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"unicode/utf8"

	"contentflow/internal/classify"
	"contentflow/internal/models"
	"contentflow/internal/retry"
	"contentflow/internal/util"

	"code.sajari.com/docconv"
	"github.com/ledongthuc/pdf"
)

type extractor func(data []byte) (text string, pages int, err error)

// Extensions outside this table are rejected before anything is downloaded.
var extractors = map[string]extractor{
	"pdf":  extractPDF,
	"txt":  extractPlain,
	"md":   extractPlain,
	"doc":  legacyExtractor("application/msword"),
	"docx": legacyExtractor("application/vnd.openxmlformats-officedocument.wordprocessingml.document"),
	"odt":  legacyExtractor("application/vnd.oasis.opendocument.text"),
	"rtf":  legacyExtractor("application/rtf"),
}

// SupportedDocument reports whether a document extension can be extracted.
func SupportedDocument(ext string) bool {
	_, ok := extractors[strings.ToLower(strings.TrimPrefix(ext, "."))]
	return ok
}

func (f *Fetcher) fetchDocument(ctx context.Context, ref string) (Bundle, error) {
	ref = strings.TrimSpace(ref)
	ext := classify.DocumentExtension(ref)
	extract, ok := extractors[ext]
	if !ok {
		return Bundle{}, retry.Permanent(fmt.Errorf("fetch document %q (extension %q): %w", ref, ext, util.ErrUnsupportedDocument))
	}

	data, err := f.loadDocument(ctx, ref)
	if err != nil {
		return Bundle{}, err
	}
	text, pages, err := extract(data)
	if err != nil {
		return Bundle{}, retry.Permanent(fmt.Errorf("extract %s document: %v: %w", ext, err, util.ErrNoExtractableText))
	}
	text = strings.TrimSpace(util.SanitizeText(text))
	if text == "" {
		return Bundle{}, retry.Permanent(fmt.Errorf("extract %s document: %w", ext, util.ErrNoExtractableText))
	}

	return Bundle{
		Type:               models.TypeDocument,
		ContentToVectorize: text,
		ContentToSave:      text,
		Title:              documentTitle(ref),
		URL:                ref,
		Document: &DocumentDetails{
			Extension: ext,
			Source:    sourceKind(ref),
			Bytes:     len(data),
			Pages:     pages,
		},
	}, nil
}

func (f *Fetcher) loadDocument(ctx context.Context, ref string) ([]byte, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("parse document reference: %w", err))
	}
	switch u.Scheme {
	case "s3":
		if f.objects == nil {
			return nil, retry.Permanent(fmt.Errorf("document %s: object storage not configured: %w", ref, util.ErrUnsupportedDocument))
		}
		var data []byte
		err := f.opts.Retry.Do(ctx, func(ctx context.Context) error {
			var err error
			data, err = f.objects.Get(ctx, u.Host, strings.TrimPrefix(u.Path, "/"))
			return err
		})
		return data, err
	case "http", "https":
		return f.get(ctx, serviceDownload, ref, "")
	case "":
		return f.get(ctx, serviceDownload, normalizeLink(ref), "")
	default:
		return nil, retry.Permanent(fmt.Errorf("document scheme %q: %w", u.Scheme, util.ErrUnsupportedDocument))
	}
}

func extractPDF(data []byte) (string, int, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, fmt.Errorf("open pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", 0, fmt.Errorf("extract pdf text: %w", err)
	}
	var buf strings.Builder
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", 0, fmt.Errorf("read extracted text: %w", err)
	}
	return buf.String(), r.NumPage(), nil
}

func extractPlain(data []byte) (string, int, error) {
	if !utf8.Valid(data) {
		return "", 0, fmt.Errorf("text document is not valid utf-8")
	}
	return string(data), 0, nil
}

func legacyExtractor(mimeType string) extractor {
	return func(data []byte) (string, int, error) {
		res, err := docconv.Convert(bytes.NewReader(data), mimeType, false)
		if err != nil {
			return "", 0, fmt.Errorf("docconv %s: %w", mimeType, err)
		}
		return res.Body, 0, nil
	}
}

func documentTitle(ref string) string {
	p := ref
	if u, err := url.Parse(ref); err == nil && u.Path != "" {
		p = u.Path
	}
	name := path.Base(p)
	if name == "." || name == "/" {
		return ref
	}
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	return name
}

func sourceKind(ref string) string {
	if strings.HasPrefix(ref, "s3://") {
		return "upload"
	}
	return "link"
}
