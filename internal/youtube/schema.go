package youtube

import (
	"strconv"
	"time"

	"github.com/johnqtcg/threaddigest/internal/thread"
)

type videoList struct {
	Items []video `json:"items"`
}

type video struct {
	ID      string `json:"id"`
	Snippet struct {
		Title        string    `json:"title"`
		Description  string    `json:"description"`
		ChannelTitle string    `json:"channelTitle"`
		PublishedAt  time.Time `json:"publishedAt"`
		Tags         []string  `json:"tags"`
	} `json:"snippet"`
	// The Data API encodes counters as decimal strings.
	Statistics struct {
		LikeCount    string `json:"likeCount"`
		CommentCount string `json:"commentCount"`
	} `json:"statistics"`
}

type commentThreadList struct {
	Items         []commentThread `json:"items"`
	NextPageToken string          `json:"nextPageToken"`
}

type commentThread struct {
	ID      string `json:"id"`
	Snippet struct {
		TopLevelComment comment `json:"topLevelComment"`
		TotalReplyCount int     `json:"totalReplyCount"`
	} `json:"snippet"`
	Replies struct {
		Comments []comment `json:"comments"`
	} `json:"replies"`
}

type commentList struct {
	Items         []comment `json:"items"`
	NextPageToken string    `json:"nextPageToken"`
}

type comment struct {
	ID      string `json:"id"`
	Snippet struct {
		AuthorDisplayName string    `json:"authorDisplayName"`
		TextOriginal      string    `json:"textOriginal"`
		TextDisplay       string    `json:"textDisplay"`
		PublishedAt       time.Time `json:"publishedAt"`
		LikeCount         int       `json:"likeCount"`
	} `json:"snippet"`
}

func (v video) container() thread.Container {
	likes, _ := strconv.Atoi(v.Statistics.LikeCount)
	labels := append([]string{v.Snippet.ChannelTitle}, v.Snippet.Tags...)
	return thread.Container{
		ID:              v.ID,
		Source:          thread.SourceYouTube,
		Kind:            thread.KindVideo,
		Title:           v.Snippet.Title,
		Author:          thread.AuthorOrUnknown(v.Snippet.ChannelTitle),
		Body:            v.Snippet.Description,
		URL:             watchURL + v.ID,
		CreatedAt:       v.Snippet.PublishedAt,
		Labels:          thread.Labels(labels...),
		EngagementScore: thread.Score(likes),
		Comments:        []thread.Comment{},
	}
}

func (c comment) toComment(videoID string) thread.Comment {
	text := c.Snippet.TextOriginal
	if text == "" {
		text = c.Snippet.TextDisplay
	}
	return thread.Comment{
		ID:        c.ID,
		Author:    thread.AuthorOrUnknown(c.Snippet.AuthorDisplayName),
		Content:   text,
		CreatedAt: c.Snippet.PublishedAt,
		URL:       watchURL + videoID + "&lc=" + c.ID,
	}
}
