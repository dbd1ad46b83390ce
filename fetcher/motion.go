package fetcher

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/dlclark/regexp2"
)

var motionNamePattern = regexp2.MustCompile(`^([^-]+)-`, regexp2.None)

type Motion struct {
	URL      string
	SaveName string
}

type motionRef struct {
	URL string `json:"url"`
}

type characterModelResponse struct {
	Data *struct {
		Personality *struct {
			WaitingMotion   *motionRef  `json:"waiting_motion"`
			AppearingMotion *motionRef  `json:"appearing_motion"`
			LikedMotion     *motionRef  `json:"liked_motion"`
			OtherMotions    []motionRef `json:"other_motions"`
		} `json:"personality"`
	} `json:"data"`
}

func motionName(filename string) string {
	if m, err := motionNamePattern.FindStringMatch(filename); err == nil && m != nil {
		return m.GroupByNumber(1).String()
	}
	return strings.Split(filename, ".")[0]
}

// MotionSaveName derives the local file name of a motion from its URL: the
// folders after "motions" and the motion name, joined with hyphens.
func MotionSaveName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	parts := strings.Split(u.Path, "/")
	if len(parts) < 2 {
		return "", fmt.Errorf("motion URL %q has no file name", rawURL)
	}
	filename := parts[len(parts)-1]
	motionsIndex := -1
	for i, p := range parts {
		if p == "motions" {
			motionsIndex = i
			break
		}
	}
	if motionsIndex == -1 || motionsIndex >= len(parts)-2 {
		return parts[len(parts)-2] + "-" + motionName(filename) + ".vrma", nil
	}
	segments := append(append([]string{}, parts[motionsIndex+1:len(parts)-1]...), motionName(filename))
	return strings.Join(segments, "-") + ".vrma", nil
}

// ParseMotions lists the motions of a character model API response.
func ParseMotions(body []byte) ([]Motion, error) {
	var resp characterModelResponse
	if err := sonic.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse character model: %w", err)
	}
	if resp.Data == nil {
		return nil, fmt.Errorf("character model response has no data")
	}
	if resp.Data.Personality == nil {
		return nil, nil
	}
	p := resp.Data.Personality
	var refs []motionRef
	for _, r := range []*motionRef{p.WaitingMotion, p.AppearingMotion, p.LikedMotion} {
		if r != nil {
			refs = append(refs, *r)
		}
	}
	refs = append(refs, p.OtherMotions...)

	var motions []Motion
	for _, r := range refs {
		if r.URL == "" {
			continue
		}
		name, err := MotionSaveName(r.URL)
		if err != nil {
			logger.Warnf("Skipping motion %s: %v", r.URL, err)
			continue
		}
		motions = append(motions, Motion{URL: r.URL, SaveName: name})
	}
	return motions, nil
}

// FetchMotions returns the motions of model id and the raw API response.
func (c *Client) FetchMotions(ctx context.Context, id string) ([]Motion, []byte, error) {
	resp, err := c.request(ctx, c.modelURL(id, ""))
	if err != nil {
		return nil, nil, err
	}
	if !resp.IsSuccess() {
		return nil, nil, fmt.Errorf("failed to fetch character model %s: %s", id, resp.Status())
	}
	motions, err := ParseMotions(resp.Body())
	return motions, resp.Body(), err
}

// DownloadMotions saves every motion into dir. Individual failures are logged
// and skipped; the number of saved files is returned.
func (c *Client) DownloadMotions(ctx context.Context, motions []Motion, dir string) (int, error) {
	if len(motions) == 0 {
		return 0, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create motion dir: %w", err)
	}
	saved := 0
	for _, m := range motions {
		resp, err := c.request(ctx, m.URL)
		if err != nil {
			logger.Warnf("Failed to download motion %s: %v", m.URL, err)
			continue
		}
		if !resp.IsSuccess() {
			logger.Warnf("Failed to download motion %s: %s", m.URL, resp.Status())
			continue
		}
		path := filepath.Join(dir, m.SaveName)
		if err := os.WriteFile(path, resp.Body(), 0o644); err != nil {
			logger.Warnf("Failed to save motion %s: %v", path, err)
			continue
		}
		logger.Infof("Saved motion %s", path)
		saved++
	}
	return saved, nil
}
