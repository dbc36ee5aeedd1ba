package parser

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/johnqtcg/threaddigest/internal/source"
	"github.com/johnqtcg/threaddigest/internal/thread"
)

// ErrInvalidURL indicates an input URL is not a supported discussion URL.
var ErrInvalidURL = errors.New("invalid discussion URL")

var (
	redditIDPattern  = regexp.MustCompile(`^[a-z0-9]{1,12}$`)
	subredditPattern = regexp.MustCompile(`^[A-Za-z0-9_]{2,21}$`)
	videoIDPattern   = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
)

// URLParser parses a raw URL into a normalized fetch target.
type URLParser interface {
	Parse(rawURL string) (source.Target, error)
}

// New creates the default URL parser implementation.
func New() URLParser {
	return &defaultParser{}
}

type defaultParser struct{}

func (p *defaultParser) Parse(rawURL string) (source.Target, error) {
	_ = p

	parsedURL, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return source.Target{}, fmt.Errorf("parse URL %q: %w", rawURL, invalid(err.Error()))
	}

	host := strings.TrimPrefix(strings.ToLower(parsedURL.Hostname()), "www.")
	segments := splitPathSegments(parsedURL.Path)

	var t source.Target
	switch host {
	case "github.com":
		t, err = parseGitHub(segments)
	case "reddit.com", "old.reddit.com", "new.reddit.com", "np.reddit.com", "m.reddit.com":
		t, err = parseReddit(segments)
	case "redd.it":
		t, err = parseRedditShort(segments)
	case "news.ycombinator.com":
		t, err = parseHackerNews(parsedURL)
	case "bsky.app":
		t, err = parseBluesky(segments)
	case "youtube.com", "m.youtube.com", "music.youtube.com":
		t, err = parseYouTube(parsedURL, segments)
	case "youtu.be":
		t, err = parseYouTubeShort(segments)
	case "":
		return source.Target{}, fmt.Errorf("validate URL %q: %w", rawURL, invalid("missing host"))
	default:
		return source.Target{}, fmt.Errorf("validate URL host %q: %w", host, invalid("unsupported host"))
	}
	if err != nil {
		return source.Target{}, fmt.Errorf("parse URL path %q: %w", parsedURL.Path, err)
	}
	return t, nil
}

func parseGitHub(segments []string) (source.Target, error) {
	if len(segments) != 2 && len(segments) != 4 {
		return source.Target{}, fmt.Errorf("validate path segments: %w", invalid("path must be /{owner}/{repo} or /{owner}/{repo}/{kind}/{number}"))
	}

	owner, repo := segments[0], strings.TrimSuffix(segments[1], ".git")
	if owner == "" || repo == "" {
		return source.Target{}, fmt.Errorf("validate owner/repo: %w", invalid("owner/repo must not be empty"))
	}

	if len(segments) == 2 {
		return source.Target{
			Source: thread.SourceGitHub,
			Scope:  source.ScopeListing,
			Owner:  owner,
			Repo:   repo,
			URL:    fmt.Sprintf("https://github.com/%s/%s", owner, repo),
		}, nil
	}

	kind, numberText := segments[2], segments[3]
	number, parseErr := strconv.Atoi(numberText)
	if parseErr != nil || number <= 0 {
		return source.Target{}, fmt.Errorf("validate resource number %q: %w", numberText, invalid("resource number must be a positive integer"))
	}

	resourceKind, err := resolveGitHubKind(kind)
	if err != nil {
		return source.Target{}, fmt.Errorf("resolve resource kind %q: %w", kind, err)
	}

	return source.Target{
		Source: thread.SourceGitHub,
		Scope:  source.ScopeItem,
		Kind:   resourceKind,
		Owner:  owner,
		Repo:   repo,
		Number: number,
		URL:    fmt.Sprintf("https://github.com/%s/%s/%s/%d", owner, repo, kind, number),
	}, nil
}

func resolveGitHubKind(kind string) (thread.Kind, error) {
	switch kind {
	case "issues":
		return thread.KindIssue, nil
	case "pull":
		return thread.KindPullRequest, nil
	case "discussions":
		return thread.KindDiscussion, nil
	default:
		return "", fmt.Errorf("validate resource kind %q: %w", kind, invalid("unsupported resource kind"))
	}
}

// parseReddit accepts /r/{sub}[/{sort}], /r/{sub}/comments/{id}[/...] and
// /comments/{id}[/...].
func parseReddit(segments []string) (source.Target, error) {
	if len(segments) >= 2 && segments[0] == "comments" {
		return redditPost("", segments[1])
	}
	if len(segments) < 2 || segments[0] != "r" {
		return source.Target{}, fmt.Errorf("validate reddit path: %w", invalid("path must start with /r/{subreddit}"))
	}

	sub := segments[1]
	if !subredditPattern.MatchString(sub) {
		return source.Target{}, fmt.Errorf("validate subreddit %q: %w", sub, invalid("malformed subreddit name"))
	}
	if len(segments) >= 4 && segments[2] == "comments" {
		return redditPost(sub, segments[3])
	}
	if len(segments) > 3 {
		return source.Target{}, fmt.Errorf("validate reddit path: %w", invalid("unsupported subreddit path"))
	}

	return source.Target{
		Source:    thread.SourceReddit,
		Scope:     source.ScopeListing,
		Kind:      thread.KindThread,
		Community: sub,
		URL:       "https://www.reddit.com/r/" + sub,
	}, nil
}

func parseRedditShort(segments []string) (source.Target, error) {
	if len(segments) != 1 {
		return source.Target{}, fmt.Errorf("validate redd.it path: %w", invalid("path must be /{id}"))
	}
	return redditPost("", segments[0])
}

func redditPost(sub, id string) (source.Target, error) {
	id = strings.ToLower(id)
	if !redditIDPattern.MatchString(id) {
		return source.Target{}, fmt.Errorf("validate reddit post id %q: %w", id, invalid("malformed post id"))
	}
	canonical := "https://www.reddit.com/comments/" + id
	if sub != "" {
		canonical = "https://www.reddit.com/r/" + sub + "/comments/" + id
	}
	return source.Target{
		Source:    thread.SourceReddit,
		Scope:     source.ScopeItem,
		Kind:      thread.KindThread,
		ID:        id,
		Community: sub,
		URL:       canonical,
	}, nil
}

func parseHackerNews(u *url.URL) (source.Target, error) {
	if strings.Trim(u.Path, "/") != "item" {
		return source.Target{}, fmt.Errorf("validate hacker news path: %w", invalid("path must be /item?id={id}"))
	}
	idText := u.Query().Get("id")
	id, err := strconv.ParseInt(idText, 10, 64)
	if err != nil || id <= 0 {
		return source.Target{}, fmt.Errorf("validate item id %q: %w", idText, invalid("item id must be a positive integer"))
	}
	return source.Target{
		Source: thread.SourceHackerNews,
		Scope:  source.ScopeItem,
		Kind:   thread.KindStory,
		ID:     strconv.FormatInt(id, 10),
		URL:    "https://news.ycombinator.com/item?id=" + strconv.FormatInt(id, 10),
	}, nil
}

func parseBluesky(segments []string) (source.Target, error) {
	if len(segments) != 4 || segments[0] != "profile" || segments[2] != "post" {
		return source.Target{}, fmt.Errorf("validate bluesky path: %w", invalid("path must be /profile/{handle}/post/{rkey}"))
	}
	handle, rkey := segments[1], segments[3]
	if handle == "" || rkey == "" {
		return source.Target{}, fmt.Errorf("validate bluesky path: %w", invalid("handle and post key must not be empty"))
	}
	return source.Target{
		Source: thread.SourceBluesky,
		Scope:  source.ScopeItem,
		Kind:   thread.KindPost,
		Handle: handle,
		ID:     rkey,
		URL:    "https://bsky.app/profile/" + handle + "/post/" + rkey,
	}, nil
}

func parseYouTube(u *url.URL, segments []string) (source.Target, error) {
	switch {
	case len(segments) == 1 && segments[0] == "watch":
		return youtubeVideo(u.Query().Get("v"))
	case len(segments) == 2 && (segments[0] == "shorts" || segments[0] == "live" || segments[0] == "embed"):
		return youtubeVideo(segments[1])
	default:
		return source.Target{}, fmt.Errorf("validate youtube path: %w", invalid("path must be /watch?v={id} or /shorts/{id}"))
	}
}

func parseYouTubeShort(segments []string) (source.Target, error) {
	if len(segments) != 1 {
		return source.Target{}, fmt.Errorf("validate youtu.be path: %w", invalid("path must be /{id}"))
	}
	return youtubeVideo(segments[0])
}

func youtubeVideo(id string) (source.Target, error) {
	if !videoIDPattern.MatchString(id) {
		return source.Target{}, fmt.Errorf("validate video id %q: %w", id, invalid("malformed video id"))
	}
	return source.Target{
		Source: thread.SourceYouTube,
		Scope:  source.ScopeItem,
		Kind:   thread.KindVideo,
		ID:     id,
		URL:    "https://www.youtube.com/watch?v=" + id,
	}, nil
}

func splitPathSegments(rawPath string) []string {
	trimmed := strings.Trim(rawPath, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func invalid(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidURL, reason)
}
