package constants

// MimeTypes maps image file extensions to their MIME types
var MimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
}

// DefaultMimeType is the fallback MIME type for unknown file extensions
const DefaultMimeType = "application/octet-stream"

// DefaultImageTypes are the upload extensions accepted when none are configured
var DefaultImageTypes = []string{"png", "jpg", "jpeg"}

// FileSignatures maps leading magic bytes to image extensions
var FileSignatures = map[string]string{
	"\x89PNG\r\n\x1a\n": "png",
	"\xff\xd8\xff":      "jpg",
	"GIF87a":            "gif",
	"GIF89a":            "gif",
}
