package reddit

import (
	"fmt"
	"strings"
)

// Kind is the submission kind understood by /api/submit
type Kind string

const (
	KindLink  Kind = "link"
	KindSelf  Kind = "self"
	KindImage Kind = "image"
)

// SubmitRequest is one submission to a subreddit or profile (u_<name>)
type SubmitRequest struct {
	Subreddit string
	Title     string
	Kind      Kind
	URL       string
	Text      string
	FlairID   string
	FlairText string
}

// SubmitResult identifies the created post
type SubmitResult struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
	Error       string `json:"error"`
}

// apiErrors is the api_type=json error list: [[code, message, field], ...]
type apiErrors [][]interface{}

func (e apiErrors) String() string {
	parts := make([]string, 0, len(e))
	for _, entry := range e {
		var fields []string
		for _, f := range entry {
			if s, ok := f.(string); ok && s != "" {
				fields = append(fields, s)
			}
		}
		switch len(fields) {
		case 0:
			continue
		case 1:
			parts = append(parts, fields[0])
		case 2:
			parts = append(parts, fmt.Sprintf("%s: %s", fields[0], fields[1]))
		default:
			parts = append(parts, fmt.Sprintf("%s: %s (%s)", fields[0], fields[1], fields[2]))
		}
	}
	return strings.Join(parts, "; ")
}

type submitResponse struct {
	JSON struct {
		Errors apiErrors `json:"errors"`
		Data   struct {
			ID           string `json:"id"`
			Name         string `json:"name"`
			URL          string `json:"url"`
			WebsocketURL string `json:"websocket_url"` // image posts only
		} `json:"data"`
	} `json:"json"`
}

type leaseField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type mediaLeaseResponse struct {
	Args struct {
		Action string       `json:"action"`
		Fields []leaseField `json:"fields"`
	} `json:"args"`
	Asset struct {
		AssetID string `json:"asset_id"`
	} `json:"asset"`
}

type linkFlair struct {
	ID           string `json:"id"`
	Text         string `json:"text"`
	TextEditable bool   `json:"text_editable"`
}

// ProfileSubreddit returns the submission target for a user's profile
func ProfileSubreddit(username string) string {
	return "u_" + username
}
