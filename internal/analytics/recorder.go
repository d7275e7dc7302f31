package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mileusna/useragent"

	"github.com/inkpress/inkpress/internal/model"
	"github.com/inkpress/inkpress/internal/store"
	"github.com/inkpress/inkpress/internal/util"
)

// RecordViewInput holds the optional request metadata captured with a view.
// Nil pointers are stored as NULL; nothing here is ever validated or used to
// reject a view.
type RecordViewInput struct {
	PostID    int64
	UserAgent *string
	IPAddress *string
	Referer   *string
}

// RecordView logs one view event for a published post and bumps the post's
// denormalized view counter.
//
// The post must exist and be published; otherwise ErrNotFoundOrUnpublished is
// returned and nothing is written. The event row and the counter update are
// separate statements: if the increment fails after the event was inserted,
// the drift is logged and the error is returned, but the event row stays.
func (s *Service) RecordView(ctx context.Context, in RecordViewInput) (model.PostView, error) {
	if _, err := s.queries.GetPublishedPostByID(ctx, in.PostID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.PostView{}, ErrNotFoundOrUnpublished
		}
		return model.PostView{}, fmt.Errorf("look up post %d: %w", in.PostID, err)
	}

	browser, os, device := parseUserAgent(in.UserAgent)

	view, err := s.queries.InsertPostView(ctx, store.InsertPostViewParams{
		ID:         uuid.NewString(),
		PostID:     in.PostID,
		UserAgent:  util.NullStringFromPtr(in.UserAgent),
		IPAddress:  util.NullStringFromPtr(in.IPAddress),
		Referer:    util.NullStringFromPtr(in.Referer),
		Browser:    browser,
		OS:         os,
		DeviceType: device,
		CreatedAt:  s.now(),
	})
	if err != nil {
		return model.PostView{}, fmt.Errorf("insert view event: %w", err)
	}

	if err := s.queries.IncrementViewCount(ctx, in.PostID); err != nil {
		// The event row is already committed, so view_count now trails the
		// log for this post until a later view lands.
		s.logger.Warn("view counter increment failed after event insert",
			"post_id", in.PostID,
			"view_id", view.ID,
			"error", err)
		return model.PostView{}, fmt.Errorf("increment view count: %w", err)
	}

	return view, nil
}

// parseUserAgent derives browser, OS and device-type labels from a raw
// user-agent string. The labels are informational only; an unparseable or
// missing user agent yields empty strings and the view is recorded anyway.
func parseUserAgent(raw *string) (browser, os, device string) {
	if raw == nil || *raw == "" {
		return "", "", ""
	}
	ua := useragent.Parse(*raw)
	switch {
	case ua.Bot:
		device = "bot"
	case ua.Mobile:
		device = "mobile"
	case ua.Tablet:
		device = "tablet"
	case ua.Desktop:
		device = "desktop"
	}
	return strings.TrimSpace(ua.Name), strings.TrimSpace(ua.OS), device
}
