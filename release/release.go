// Package release asks the project's release feed whether a newer version
// than the running one has been published.
package release

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type releaseInfo struct {
	TagName string `json:"tag_name"`
	Body    string `json:"body"`
}

const DefaultURL = "https://api.github.com/repos/tripline/tripline/releases/latest"

// Info describes the latest published release.
type Info struct {
	Version string
	Notes   string
	Newer   bool
}

// Security reports whether the release notes mention security fixes.
func (i Info) Security() bool {
	return strings.Contains(strings.ToLower(i.Notes), "security")
}

// Check fetches the latest release from url and compares it with current.
func Check(ctx context.Context, current, url string) (Info, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Info{}, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Info{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Info{}, fmt.Errorf("unexpected status: %s", resp.Status)
	}
	var info releaseInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return Info{}, err
	}
	latest := strings.TrimPrefix(info.TagName, "v")
	out := Info{Version: latest}
	if compareVersions(latest, strings.TrimPrefix(current, "v")) > 0 {
		out.Newer = true
		out.Notes = info.Body
	}
	return out, nil
}

// compareVersions orders dotted numeric versions. A pre-release suffix
// ("-dev", "-rc1") sorts before the plain version.
func compareVersions(a, b string) int {
	aCore, aPre, _ := strings.Cut(a, "-")
	bCore, bPre, _ := strings.Cut(b, "-")
	as, bs := strings.Split(aCore, "."), strings.Split(bCore, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		x, y := part(as, i), part(bs, i)
		if x != y {
			if x < y {
				return -1
			}
			return 1
		}
	}
	switch {
	case aPre == bPre:
		return 0
	case aPre == "":
		return 1
	case bPre == "":
		return -1
	}
	return strings.Compare(aPre, bPre)
}

func part(parts []string, i int) int {
	if i >= len(parts) {
		return 0
	}
	n, err := strconv.Atoi(parts[i])
	if err != nil {
		return 0
	}
	return n
}
