package api

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"time"

	"github.com/inkpress/inkpress/internal/model"
	"github.com/inkpress/inkpress/internal/render"
	"github.com/inkpress/inkpress/internal/store"
)

const feedItemLimit = 20

type rssFeed struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title       string    `xml:"title"`
	Link        string    `xml:"link"`
	Description string    `xml:"description"`
	PubDate     string    `xml:"pubDate,omitempty"`
	Items       []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	GUID        string `xml:"guid"`
	Description string `xml:"description,omitempty"`
	PubDate     string `xml:"pubDate"`
}

// Feed handles GET /feed.xml, the RSS 2.0 feed of recent published posts.
func (h *Handler) Feed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	posts, err := h.queries.ListPosts(ctx, store.ListPostsParams{
		Status: model.PostStatusPublished,
		Limit:  feedItemLimit,
	})
	if err != nil {
		h.logger.Error("feed query failed", "error", err)
		WriteInternalError(w, "Failed to build feed")
		return
	}

	title := h.siteSetting(ctx, model.SettingKeySiteTitle, "Inkpress")
	description := h.siteSetting(ctx, model.SettingKeySiteDescription, "")

	feed := rssFeed{
		Version: "2.0",
		Channel: rssChannel{
			Title:       title,
			Link:        h.baseURL,
			Description: description,
		},
	}
	for _, post := range posts {
		item := rssItem{
			Title:   post.Title,
			Link:    fmt.Sprintf("%s/posts/%s", h.baseURL, post.Slug),
			GUID:    fmt.Sprintf("%s/posts/%s", h.baseURL, post.Slug),
			PubDate: feedDate(post.PublishedAt.Time),
		}
		if html, err := render.Markdown(post.Body); err == nil {
			item.Description = html
		}
		feed.Channel.Items = append(feed.Channel.Items, item)
	}
	if len(posts) > 0 {
		feed.Channel.PubDate = feedDate(posts[0].PublishedAt.Time)
	}

	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(xml.Header)); err != nil {
		return
	}
	if err := xml.NewEncoder(w).Encode(feed); err != nil {
		h.logger.Error("feed encode failed", "error", err)
	}
}

// siteSetting reads a setting with a fallback for missing keys.
func (h *Handler) siteSetting(ctx context.Context, key, fallback string) string {
	val, err := h.settings.Get(ctx, key)
	if err != nil {
		return fallback
	}
	return val
}

func feedDate(t time.Time) string {
	return t.UTC().Format(time.RFC1123Z)
}
