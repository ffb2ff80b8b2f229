package privacy

import (
	"strings"
)

const redacted = "[redacted]"

// MaskSecret hides a credential entirely, keeping only whether it was set.
// Example: "s3cr3t" -> "[redacted]", "" -> ""
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	return redacted
}

// MaskClientID keeps the last 4 characters of an OAuth client id
// Example: "abcdEFGH1234" -> "********1234"
func MaskClientID(clientID string) string {
	return maskString(clientID, 4)
}

// MaskUsername keeps the first and last character of an account name
// Example: "spez" -> "s**z", "u/spez" -> "u/s**z"
func MaskUsername(username string) string {
	if username == "" {
		return ""
	}

	prefix := ""
	for _, p := range []string{"/u/", "u/"} {
		if strings.HasPrefix(username, p) {
			prefix = p
			username = username[len(p):]
			break
		}
	}

	if len(username) <= 2 {
		return prefix + strings.Repeat("*", len(username))
	}
	return prefix + username[:1] + strings.Repeat("*", len(username)-2) + username[len(username)-1:]
}

// MaskAuthorization keeps the scheme of an Authorization header value
// Example: "Bearer abc.def" -> "Bearer [redacted]"
func MaskAuthorization(value string) string {
	if value == "" {
		return ""
	}
	if scheme, _, ok := strings.Cut(value, " "); ok {
		return scheme + " " + redacted
	}
	return redacted
}

// maskString masks a string showing only the last n characters
func maskString(s string, keepLast int) string {
	if s == "" {
		return ""
	}

	if len(s) <= keepLast {
		return strings.Repeat("*", len(s))
	}

	return strings.Repeat("*", len(s)-keepLast) + s[len(s)-keepLast:]
}

// MaskSensitiveFields applies appropriate masking to common logging fields
func MaskSensitiveFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}

	masked := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		s, ok := v.(string)
		if !ok {
			masked[k] = v
			continue
		}
		switch k {
		case "password", "client_secret", "token", "access_token", "auth_hash":
			masked[k] = MaskSecret(s)
		case "client_id", "clientId":
			masked[k] = MaskClientID(s)
		case "username", "user", "reddit_user", "auth_user":
			masked[k] = MaskUsername(s)
		case "authorization", "Authorization":
			masked[k] = MaskAuthorization(s)
		default:
			masked[k] = v
		}
	}

	return masked
}
