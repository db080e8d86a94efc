package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"contentflow/internal/classify"
	"contentflow/internal/models"
	"contentflow/internal/retry"
	"contentflow/internal/util"
)

type unrollResponse struct {
	Author string `json:"author"`
	Avatar string `json:"avatar"`
	Tweets []struct {
		ID    string   `json:"id"`
		Text  string   `json:"text"`
		Media []string `json:"media"`
		Links []string `json:"links"`
	} `json:"tweets"`
}

type syndicationResponse struct {
	IDStr string `json:"id_str"`
	Text  string `json:"text"`
	User  struct {
		Name       string `json:"name"`
		ScreenName string `json:"screen_name"`
		Avatar     string `json:"profile_image_url_https"`
	} `json:"user"`
	MediaDetails []struct {
		MediaURL string `json:"media_url_https"`
	} `json:"mediaDetails"`
	Photos []struct {
		URL string `json:"url"`
	} `json:"photos"`
	Entities struct {
		URLs []struct {
			ExpandedURL string `json:"expanded_url"`
		} `json:"urls"`
	} `json:"entities"`
}

type tweetThread struct {
	author   string
	avatar   string
	texts    []string
	media    []string
	links    []string
	unrolled bool
}

// fetchTweet tries the thread unroller once and falls back to the single-post
// syndication endpoint. Both paths produce the same bundle shape.
func (f *Fetcher) fetchTweet(ctx context.Context, ref string) (Bundle, error) {
	canonical := classify.CanonicalURL(models.TypeTweet, ref)
	id, ok := classify.TweetID(canonical)
	if !ok {
		return Bundle{}, retry.Permanent(fmt.Errorf("fetch tweet %q: no post id: %w", ref, util.ErrClassification))
	}

	thread, err := f.unrollThread(ctx, id)
	if err != nil {
		thread, err = f.syndicatedPost(ctx, id)
		if err != nil {
			return Bundle{}, fmt.Errorf("fetch tweet %s: %w", id, err)
		}
	}

	text := strings.Join(thread.texts, "\n\n")
	var extras []string
	if len(thread.media) > 0 {
		extras = append(extras, "Media: "+strings.Join(thread.media, " "))
	}
	if len(thread.links) > 0 {
		extras = append(extras, "Links: "+strings.Join(thread.links, " "))
	}
	full := joinNonEmpty("\n\n", append([]string{text}, extras...)...)

	preview := thread.avatar
	if len(thread.media) > 0 {
		preview = thread.media[0]
	}
	title := "Post"
	if thread.author != "" {
		title = "Post by @" + thread.author
	}
	return Bundle{
		Type:               models.TypeTweet,
		ContentToVectorize: full,
		ContentToSave:      full,
		Title:              title,
		Description:        util.FirstRunes(util.CollapseWhitespace(text), 160),
		PreviewImage:       preview,
		URL:                canonical,
		Tweet: &TweetDetails{
			ID:       id,
			Author:   thread.author,
			Unrolled: thread.unrolled,
			Posts:    len(thread.texts),
			Media:    thread.media,
			Links:    thread.links,
		},
	}, nil
}

func (f *Fetcher) unrollThread(ctx context.Context, id string) (tweetThread, error) {
	if f.opts.TweetUnrollURL == "" {
		return tweetThread{}, fmt.Errorf("%s not configured", serviceUnroll)
	}
	body, err := f.getOnce(ctx, serviceUnroll, strings.TrimRight(f.opts.TweetUnrollURL, "/")+"/"+id, "application/json")
	if err != nil {
		return tweetThread{}, err
	}
	var resp unrollResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return tweetThread{}, fmt.Errorf("decode %s response: %w", serviceUnroll, err)
	}
	if len(resp.Tweets) == 0 {
		return tweetThread{}, fmt.Errorf("%s returned no posts", serviceUnroll)
	}
	th := tweetThread{author: resp.Author, avatar: resp.Avatar, unrolled: true}
	for _, t := range resp.Tweets {
		if s := strings.TrimSpace(t.Text); s != "" {
			th.texts = append(th.texts, s)
		}
		th.media = append(th.media, t.Media...)
		th.links = append(th.links, t.Links...)
	}
	return th, nil
}

func (f *Fetcher) syndicatedPost(ctx context.Context, id string) (tweetThread, error) {
	body, err := f.get(ctx, serviceSyndication, withQuery(f.opts.TweetSyndicationURL, "id", id), "application/json")
	if err != nil {
		return tweetThread{}, err
	}
	var resp syndicationResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return tweetThread{}, fmt.Errorf("decode %s response: %w", serviceSyndication, err)
	}
	if strings.TrimSpace(resp.Text) == "" {
		return tweetThread{}, retry.Permanent(fmt.Errorf("%s post %s: %w", serviceSyndication, id, util.ErrNoExtractableText))
	}
	th := tweetThread{author: resp.User.ScreenName, avatar: resp.User.Avatar, texts: []string{strings.TrimSpace(resp.Text)}}
	for _, m := range resp.MediaDetails {
		if m.MediaURL != "" {
			th.media = append(th.media, m.MediaURL)
		}
	}
	if len(th.media) == 0 {
		for _, p := range resp.Photos {
			if p.URL != "" {
				th.media = append(th.media, p.URL)
			}
		}
	}
	for _, u := range resp.Entities.URLs {
		if u.ExpandedURL != "" {
			th.links = append(th.links, u.ExpandedURL)
		}
	}
	return th, nil
}
