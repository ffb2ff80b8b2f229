package models

import (
	"fmt"
	"time"
)

// PostKind is the content type of a scheduled submission
type PostKind int

const (
	PostKindLink PostKind = iota + 1
	PostKindText
	PostKindImage
)

// DestinationKind determines where a submission is routed
type DestinationKind int

const (
	DestinationSubreddit DestinationKind = iota + 1
	DestinationProfile
)

// PostStatus is the delivery state of a scheduled post.
// The only transition is Pending -> Posted.
type PostStatus int

const (
	StatusPending PostStatus = iota
	StatusPosted
)

func (k PostKind) String() string {
	switch k {
	case PostKindLink:
		return "link"
	case PostKindText:
		return "text"
	case PostKindImage:
		return "image"
	default:
		return "unknown"
	}
}

// ParsePostKind converts the stored or submitted form value into a PostKind
func ParsePostKind(s string) (PostKind, error) {
	switch s {
	case "link":
		return PostKindLink, nil
	case "text":
		return PostKindText, nil
	case "image":
		return PostKindImage, nil
	default:
		return 0, fmt.Errorf("unknown post type: %q", s)
	}
}

func (d DestinationKind) String() string {
	switch d {
	case DestinationSubreddit:
		return "subreddit"
	case DestinationProfile:
		return "profile"
	default:
		return "unknown"
	}
}

// ParseDestinationKind converts the stored or submitted value into a DestinationKind.
// An empty value means subreddit.
func ParseDestinationKind(s string) (DestinationKind, error) {
	switch s {
	case "", "subreddit":
		return DestinationSubreddit, nil
	case "profile":
		return DestinationProfile, nil
	default:
		return 0, fmt.Errorf("unknown destination type: %q", s)
	}
}

func (s PostStatus) String() string {
	if s == StatusPosted {
		return "posted"
	}
	return "pending"
}

// ScheduledPost is a submission waiting for (or done with) delivery
type ScheduledPost struct {
	ID              int64           `json:"id"`
	Destination     string          `json:"subreddit"`
	DestinationKind DestinationKind `json:"-"`
	Title           string          `json:"title"`
	Kind            PostKind        `json:"-"`
	Content         string          `json:"content"`
	ScheduledAt     time.Time       `json:"scheduled_at"`
	FlairID         *string         `json:"flair_id,omitempty"`
	FlairText       *string         `json:"flair_text,omitempty"`
	Status          PostStatus      `json:"-"`
	LastError       *string         `json:"last_error,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// IsDue reports whether the post is a scan candidate at now
func (p *ScheduledPost) IsDue(now time.Time) bool {
	return p.Status == StatusPending && !p.ScheduledAt.After(now)
}

// DisplayPost is the list projection of a ScheduledPost for a display zone
type DisplayPost struct {
	ScheduledPost
	PostType           string `json:"post_type"`
	DestinationType    string `json:"destination_type"`
	Status             string `json:"status"`
	ScheduledAtDisplay string `json:"scheduled_at_display"`
	DisplayZone        string `json:"display_zone"`
	PreviewURL         string `json:"preview_url,omitempty"`
}

// EnqueueRequest carries the raw fields submitted by the UI layer
type EnqueueRequest struct {
	Subreddit       string `json:"subreddit"`
	Title           string `json:"title"`
	PostType        string `json:"post_type"`
	PostTime        string `json:"post_time"`
	FlairID         string `json:"flair_id"`
	FlairText       string `json:"flair_text"`
	DestinationType string `json:"destination_type"`
	Content         string `json:"content"`
}

// Flair is a link flair template offered by a subreddit
type Flair struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	Editable bool   `json:"editable"`
}
