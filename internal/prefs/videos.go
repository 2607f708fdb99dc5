package prefs

import (
	"net/url"
	"regexp"
	"strings"
)

var videoIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)

var scenarioVideos = map[string]string{
	"low-risk":           "https://www.youtube.com/watch?v=inWWhr5tnEA",
	"medium-risk":        "https://www.youtube.com/watch?v=hqF7MkR0iP8",
	"high-risk":          "https://www.youtube.com/watch?v=5K7aY-6YxfQ",
	"password-pattern":   "https://www.youtube.com/watch?v=7U-RbOKanYs",
	"rapid-typing":       "https://www.youtube.com/watch?v=opRMrEfAIiI",
	"sensitive-keywords": "https://www.youtube.com/watch?v=aHR07bfDSCA",
	"long-input":         "https://www.youtube.com/watch?v=08Khh7KwY28",
	"false-positive":     "https://www.youtube.com/watch?v=fCn8zs912OE",
	"auto-block-trigger": "https://www.youtube.com/watch?v=34Na4j8AVgA",
	"mixed-patterns":     "https://www.youtube.com/watch?v=zFE9C4HeZYw",
}

// ScenarioVideo returns the built-in video link for a scenario.
func ScenarioVideo(scenarioID string) (string, bool) {
	v, ok := scenarioVideos[scenarioID]
	return v, ok
}

// EmbedURL converts a YouTube link or bare video ID into an embed URL.
// Accepted forms are an 11-character ID, youtube.com/watch?v=ID,
// youtu.be/ID and youtube.com/embed/ID.
func EmbedURL(urlOrID string) (string, bool) {
	if urlOrID == "" {
		return "", false
	}
	if videoIDPattern.MatchString(urlOrID) {
		return embed(urlOrID), true
	}
	u, err := url.Parse(urlOrID)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	host := u.Hostname()
	var id string
	switch {
	case strings.Contains(host, "youtube.com") && u.Path == "/watch":
		id = u.Query().Get("v")
	case host == "youtu.be":
		id = strings.TrimPrefix(u.Path, "/")
	case strings.Contains(host, "youtube.com") && strings.HasPrefix(u.Path, "/embed/"):
		id = strings.Split(u.Path, "/")[2]
	}
	if id == "" {
		return "", false
	}
	return embed(id), true
}

func embed(id string) string {
	return "https://www.youtube.com/embed/" + url.PathEscape(id) + "?autoplay=1&rel=0"
}
