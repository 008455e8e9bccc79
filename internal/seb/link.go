package seb

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Links builds the URLs the SEB flows hand out. All of them hang off the
// deployment root.
type Links struct {
	wwwRoot      string
	quizTemplate string
}

// NewLinks creates a link builder. quizTemplate is a path containing the
// {cmid} placeholder, e.g. "/quiz/view?id={cmid}".
func NewLinks(wwwRoot, quizTemplate string) *Links {
	return &Links{
		wwwRoot:      strings.TrimRight(wwwRoot, "/"),
		quizTemplate: quizTemplate,
	}
}

// Root returns the deployment root.
func (l *Links) Root() string {
	return l.wwwRoot
}

// QuizURL is the quiz page the browser starts on. It is the startURL of
// every generated configuration.
func (l *Links) QuizURL(cmid int64) string {
	return l.wwwRoot + strings.ReplaceAll(l.quizTemplate, "{cmid}", strconv.FormatInt(cmid, 10))
}

// ConfigURL is the plain download URL of a quiz's .seb file.
func (l *Links) ConfigURL(cmid int64) string {
	return fmt.Sprintf("%s/seb/config?cmid=%d", l.wwwRoot, cmid)
}

// ContinueURL routes through the session continuation endpoint so a fresh
// browser lands on the config page logged in as userID.
func (l *Links) ContinueURL(key string, userID int, cmid int64) string {
	q := url.Values{}
	q.Set("key", key)
	q.Set("userid", strconv.Itoa(userID))
	q.Set("cmid", strconv.FormatInt(cmid, 10))
	return l.wwwRoot + "/seb/redirect?" + q.Encode()
}

// Launch rewrites an http(s) link into the seb:// or sebs:// scheme that
// opens the exam browser. Other links are returned unchanged.
func Launch(link string) string {
	switch {
	case strings.HasPrefix(link, "https://"):
		return "sebs://" + strings.TrimPrefix(link, "https://")
	case strings.HasPrefix(link, "http://"):
		return "seb://" + strings.TrimPrefix(link, "http://")
	default:
		return link
	}
}

// SameHost reports whether target is an absolute http(s) URL on the same
// host as the deployment root.
func (l *Links) SameHost(target string) bool {
	t, err := url.Parse(target)
	if err != nil || t.Host == "" {
		return false
	}
	if t.Scheme != "http" && t.Scheme != "https" {
		return false
	}
	root, err := url.Parse(l.wwwRoot)
	if err != nil {
		return false
	}
	return strings.EqualFold(t.Host, root.Host)
}
