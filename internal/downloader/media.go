package downloader

import (
	"encoding/json"
	"regexp"
	"strings"
)

var instagramPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^https?://(?:www\.)?instagram\.com/(?:p|reel|tv)/[\w-]+/?`),
	regexp.MustCompile(`^https?://(?:www\.)?instagram\.com/[\w.-]+/(?:p|reel|tv)/[\w-]+/?`),
}

// ValidURL reports whether s starts with an Instagram post, reel or IGTV link.
func ValidURL(s string) bool {
	for _, re := range instagramPatterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// Media is the normalized extraction result.
type Media struct {
	URLs        []string
	Metadata    Metadata
	OriginalURL string
}

type Metadata struct {
	Username string
	Likes    int64
	Comments int64
	Caption  string
}

// urlFields are tried in order; the first one holding a non-empty string or
// list wins.
var urlFields = []string{"downloadUrl", "url", "download_url", "video_url", "urls"}

type rawMetadata struct {
	Username string      `json:"username"`
	Like     json.Number `json:"like"`
	Comment  json.Number `json:"comment"`
	Caption  string      `json:"caption"`
}

func normalize(result map[string]json.RawMessage, original string) (*Media, error) {
	var urls []string
	for _, f := range urlFields {
		raw, ok := result[f]
		if !ok {
			continue
		}
		if found := decodeURLs(raw); len(found) > 0 {
			urls = found
			break
		}
	}
	if len(urls) == 0 {
		return nil, ErrNoMedia
	}

	m := &Media{URLs: urls, OriginalURL: original}
	if raw, ok := result["metadata"]; ok {
		var md rawMetadata
		if err := json.Unmarshal(raw, &md); err == nil {
			m.Metadata = Metadata{
				Username: strings.TrimSpace(md.Username),
				Likes:    numberOr0(md.Like),
				Comments: numberOr0(md.Comment),
				Caption:  md.Caption,
			}
		}
	}
	return m, nil
}

func decodeURLs(raw json.RawMessage) []string {
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		if one = strings.TrimSpace(one); one != "" {
			return []string{one}
		}
		return nil
	}

	// Lists may hold plain strings or objects carrying a url field.
	var many []json.RawMessage
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil
	}
	out := make([]string, 0, len(many))
	for _, item := range many {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
			continue
		}
		var obj struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal(item, &obj); err == nil && strings.TrimSpace(obj.URL) != "" {
			out = append(out, strings.TrimSpace(obj.URL))
		}
	}
	return out
}

func numberOr0(n json.Number) int64 {
	if n == "" {
		return 0
	}
	if v, err := n.Int64(); err == nil {
		return v
	}
	if f, err := n.Float64(); err == nil {
		return int64(f)
	}
	return 0
}
