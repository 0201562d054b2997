package notes

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/kkdai/youtube/v2"
)

const defaultLanguage = "en"

// TranscriptFetcher returns the plain text transcript of a video.
type TranscriptFetcher interface {
	Transcript(ctx context.Context, videoID, language string) (string, error)
}

// TranscriptFunc adapts a function to TranscriptFetcher.
type TranscriptFunc func(ctx context.Context, videoID, language string) (string, error)

func (f TranscriptFunc) Transcript(ctx context.Context, videoID, language string) (string, error) {
	return f(ctx, videoID, language)
}

// YouTubeTranscripts fetches captions through the YouTube player API.
type YouTubeTranscripts struct {
	client *youtube.Client
}

// NewYouTubeTranscripts returns a fetcher using hc, or http.DefaultClient
// when hc is nil.
func NewYouTubeTranscripts(hc *http.Client) *YouTubeTranscripts {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &YouTubeTranscripts{client: &youtube.Client{HTTPClient: hc}}
}

func (y *YouTubeTranscripts) Transcript(ctx context.Context, videoID, language string) (string, error) {
	video, err := y.client.GetVideoContext(ctx, videoID)
	if err != nil {
		return "", err
	}
	segments, err := y.client.GetTranscriptCtx(ctx, video, language)
	if err != nil {
		if errors.Is(err, youtube.ErrTranscriptDisabled) {
			return "", fmt.Errorf("no transcript available for video %s in language %q", videoID, language)
		}
		return "", err
	}
	texts := make([]string, 0, len(segments))
	for _, seg := range segments {
		texts = append(texts, seg.Text)
	}
	return strings.Join(texts, " "), nil
}
