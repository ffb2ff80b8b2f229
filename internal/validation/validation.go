// Package validation checks enqueue requests before anything is stored.
package validation

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"redditscheduler/internal/constants"
	"redditscheduler/internal/errors"
	"redditscheduler/internal/models"
	"redditscheduler/internal/timeutil"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

var subredditPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// NormalizeEnqueue trims every field, strips a leading r/ or /r/ from the
// subreddit and lowercases the enum fields. An empty destination type
// becomes subreddit.
func NormalizeEnqueue(req models.EnqueueRequest) models.EnqueueRequest {
	req.Subreddit = NormalizeSubreddit(req.Subreddit)
	req.Title = strings.TrimSpace(req.Title)
	req.PostType = strings.ToLower(strings.TrimSpace(req.PostType))
	req.PostTime = strings.TrimSpace(req.PostTime)
	req.FlairID = strings.TrimSpace(req.FlairID)
	req.FlairText = strings.TrimSpace(req.FlairText)
	req.DestinationType = strings.ToLower(strings.TrimSpace(req.DestinationType))
	if req.DestinationType == "" {
		req.DestinationType = models.DestinationSubreddit.String()
	}
	req.Content = strings.TrimSpace(req.Content)
	return req
}

// NormalizeSubreddit returns the bare subreddit name
func NormalizeSubreddit(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "/")
	if len(name) >= 2 && strings.EqualFold(name[:2], "r/") {
		name = name[2:]
	}
	return strings.TrimSuffix(name, "/")
}

// ValidateEnqueue applies the per-kind rules to a normalized request. The
// returned error is a VALIDATION_FAILED AppError whose user message lists
// every failing field.
func ValidateEnqueue(ctx context.Context, req models.EnqueueRequest) error {
	isSubreddit := req.DestinationType == models.DestinationSubreddit.String()
	isLink := req.PostType == models.PostKindLink.String()

	err := validation.ValidateStructWithContext(ctx, &req,
		validation.Field(&req.Title,
			validation.Required,
			validation.RuneLength(1, constants.DefaultMaxTitleLength)),
		validation.Field(&req.PostType,
			validation.Required,
			validation.In(
				models.PostKindLink.String(),
				models.PostKindText.String(),
				models.PostKindImage.String(),
			).Error("must be one of link, text, image")),
		validation.Field(&req.DestinationType,
			validation.In(
				models.DestinationSubreddit.String(),
				models.DestinationProfile.String(),
			).Error("must be subreddit or profile")),
		validation.Field(&req.Subreddit,
			validation.When(isSubreddit,
				validation.Required,
				validation.RuneLength(1, constants.DefaultMaxSubredditLength),
				validation.Match(subredditPattern).Error("must contain only letters, digits and underscores"),
			)),
		validation.Field(&req.PostTime,
			validation.Required,
			validation.By(wallClockTime)),
		validation.Field(&req.Content,
			validation.Required,
			validation.When(isLink, is.RequestURL, validation.By(httpURL))),
		validation.Field(&req.FlairID,
			validation.Length(0, constants.DefaultMaxFlairTextLength)),
		validation.Field(&req.FlairText,
			validation.RuneLength(0, constants.DefaultMaxFlairTextLength)),
	)
	if err != nil {
		return errors.NewValidationError(firstField(err), err.Error())
	}
	return nil
}

// ValidateHTTPRequestSize rejects requests whose declared body exceeds maxSizeBytes
func ValidateHTTPRequestSize(r *http.Request, maxSizeBytes int64) error {
	if r.ContentLength > maxSizeBytes {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("request too large: %d bytes (max %d bytes)", r.ContentLength, maxSizeBytes)).
			WithUserMessage(fmt.Sprintf("upload exceeds the %d MB limit", maxSizeBytes/constants.BytesPerMegabyte))
	}
	return nil
}

func wallClockTime(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := timeutil.ToCanonical(s, nil); err != nil {
		return validation.NewError("validation_post_time", timeutil.ErrInvalidTimeFormat.Error())
	}
	return nil
}

func httpURL(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return validation.NewError("validation_http_url", "must be an absolute http(s) URL")
	}
	return nil
}

// firstField picks a stable field name for the error context
func firstField(err error) string {
	errs, ok := err.(validation.Errors)
	if !ok {
		return ""
	}
	first := ""
	for field := range errs {
		if first == "" || field < first {
			first = field
		}
	}
	return first
}
