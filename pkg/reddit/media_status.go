package reddit

import (
	"context"
	"fmt"
	"net/http"

	apperrors "redditscheduler/internal/errors"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const mediaStatusEndpoint = "media websocket"

// mediaStatus is a frame pushed on the websocket returned by an image submission
type mediaStatus struct {
	Type    string `json:"type"`
	Payload struct {
		Redirect string `json:"redirect"`
	} `json:"payload"`
}

// awaitMediaPost blocks until Reddit reports whether the image submission was
// published, returning the post URL. It is bounded by ctx.
func (c *RedditClient) awaitMediaPost(ctx context.Context, wsURL string) (string, error) {
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"User-Agent": []string{c.cfg.UserAgent}},
	})
	if err != nil {
		return "", apperrors.NewAPIError(mediaStatusEndpoint, 0,
			fmt.Errorf("media status unavailable, the post may still have been created: %w", err))
	}
	defer conn.CloseNow()

	for {
		var frame mediaStatus
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			return "", apperrors.NewAPIError(mediaStatusEndpoint, 0,
				fmt.Errorf("media status unavailable, the post may still have been created: %w", err))
		}

		switch frame.Type {
		case "success":
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return frame.Payload.Redirect, nil
		case "failed":
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return "", apperrors.NewAPIError(mediaStatusEndpoint, http.StatusUnprocessableEntity,
				fmt.Errorf("reddit failed to process the image post"))
		default:
			c.logger.WithField("type", frame.Type).Debug("Ignoring media status frame")
		}
	}
}
