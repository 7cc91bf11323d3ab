package deps

import (
	"fmt"
	"net/url"
	"path"
	"strconv"
)

// CDNPathSegments returns the CDN path segments for a file: the literal
// "files", the first four digits of the decimal file id, the remaining
// digits, and the file name.
func CDNPathSegments(fileID int64, fileName string) []string {
	fid := strconv.FormatInt(fileID, 10)
	head, rest := fid, ""
	if len(fid) > 4 {
		head, rest = fid[:4], fid[4:]
	}
	segments := []string{"files", head}
	if rest != "" {
		segments = append(segments, rest)
	}
	return append(segments, fileName)
}

// SynthesizeCDNURL builds the download URL of a file on the edge CDN. The
// base URL's own path is replaced.
func SynthesizeCDNURL(base string, fileID int64, fileName string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse cdn base %q: %w", base, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("cdn base %q is not absolute", base)
	}
	u.Path = "/" + path.Join(CDNPathSegments(fileID, fileName)...)
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}
