package services

import (
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	ytapi "github.com/hightemp/youtube-transcript-api-go/api"
	yt "github.com/kkdai/youtube/v2"
)

type YouTubeService struct {
	httpClient    *http.Client
	transcriptAPI *ytapi.YouTubeTranscriptApi
	ytClient      *yt.Client
}

type timedTextXML struct {
	XMLName xml.Name  `xml:"transcript"`
	Texts   []textXML `xml:"text"`
}

type textXML struct {
	Start string `xml:"start,attr"`
	Dur   string `xml:"dur,attr"`
	Text  string `xml:",chardata"`
}

func NewYouTubeService() *YouTubeService {
	return &YouTubeService{
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		transcriptAPI: ytapi.NewYouTubeTranscriptApi(),
		ytClient:      &yt.Client{},
	}
}

var videoIDPattern = regexp.MustCompile(`(?:v=|youtu\.be/|embed/|shorts/)([A-Za-z0-9_-]{11})`)

// ExtractVideoID returns the video id of a YouTube URL, or "" when the URL
// does not point at a video.
func ExtractVideoID(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err == nil {
		host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
		switch host {
		case "youtu.be":
			if id := strings.Trim(u.Path, "/"); len(id) == 11 {
				return id
			}
		case "youtube.com", "m.youtube.com", "music.youtube.com":
			if id := u.Query().Get("v"); len(id) == 11 {
				return id
			}
		default:
			return ""
		}
	}

	if m := videoIDPattern.FindStringSubmatch(raw); len(m) > 1 {
		return m[1]
	}
	return ""
}

// VideoDurationMinutes reads the length of a video from its metadata,
// rounded up to whole minutes.
func (s *YouTubeService) VideoDurationMinutes(ctx context.Context, videoURL string) (int, error) {
	video, err := s.ytClient.GetVideoContext(ctx, videoURL)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch YouTube video metadata: %w", err)
	}
	if video.Duration <= 0 {
		return 0, fmt.Errorf("video %s reports no duration", video.ID)
	}
	return int((video.Duration + time.Minute - 1) / time.Minute), nil
}

// GetTranscript fetches the captions of a video, preferring English.
func (s *YouTubeService) GetTranscript(ctx context.Context, videoID string) (string, error) {
	transcript, err := s.transcriptAPI.GetTranscript(videoID, []string{"en", "en-US", "en-GB"})
	if err != nil {
		// Any language will do.
		transcript, err = s.transcriptAPI.GetTranscript(videoID, nil)
		if err != nil {
			legacyTranscript, legacyErr := s.getTranscriptViaTimedText(ctx, videoID)
			if legacyErr == nil {
				return legacyTranscript, nil
			}
			return "", fmt.Errorf("no subtitles available via transcript API (%v) and timedtext fallback failed (%v)", err, legacyErr)
		}
	}

	if len(transcript.Entries) == 0 {
		return "", fmt.Errorf("subtitle track is empty")
	}

	var fullText strings.Builder
	for _, entry := range transcript.Entries {
		text := strings.TrimSpace(entry.Text)
		if text == "" {
			continue
		}
		fullText.WriteString(text)
		fullText.WriteString(" ")
	}

	cleaned := strings.TrimSpace(fullText.String())
	if cleaned == "" {
		return "", fmt.Errorf("subtitle text resolved to empty content")
	}
	return cleaned, nil
}

func (s *YouTubeService) getTranscriptViaTimedText(ctx context.Context, videoID string) (string, error) {
	pageURL := fmt.Sprintf("https://www.youtube.com/watch?v=%s", videoID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	body, err := s.fetch(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch YouTube page: %w", err)
	}
	log.Printf("TimedText fallback: fetched YouTube page for %s (%d bytes)", videoID, len(body))

	captionURL, err := extractCaptionURL(string(body))
	if err != nil {
		return "", err
	}

	captionReq, err := http.NewRequestWithContext(ctx, http.MethodGet, captionURL, nil)
	if err != nil {
		return "", err
	}
	captionBody, err := s.fetch(captionReq)
	if err != nil {
		return "", fmt.Errorf("failed to fetch captions: %w", err)
	}

	transcript, err := parseCaptionsXML(captionBody)
	if err != nil {
		return "", fmt.Errorf("failed to parse captions XML: %w", err)
	}
	return transcript, nil
}

func (s *YouTubeService) fetch(req *http.Request) ([]byte, error) {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

var (
	captionTracksPattern  = regexp.MustCompile(`"captionTracks"\s*:\s*\[(.*?)\],\s*"`)
	captionTracklistRegex = regexp.MustCompile(`"playerCaptionsTracklistRenderer"\s*:\s*\{(?:.*?,)?\s*"captionTracks"\s*:\s*\[(.*?)\],\s*"`)
	baseURLPattern        = regexp.MustCompile(`"baseUrl"\s*:\s*"(.*?)"`)
)

func extractCaptionURL(pageHTML string) (string, error) {
	matches := captionTracksPattern.FindStringSubmatch(pageHTML)
	if len(matches) < 2 {
		matches = captionTracklistRegex.FindStringSubmatch(pageHTML)
		if len(matches) < 2 {
			return "", fmt.Errorf("no captions available for this video")
		}
	}

	urlMatches := baseURLPattern.FindStringSubmatch(matches[1])
	if len(urlMatches) < 2 {
		return "", fmt.Errorf("caption track found but baseUrl missing")
	}

	u := strings.ReplaceAll(urlMatches[1], `\u0026`, "&")
	return strings.ReplaceAll(u, `\/`, "/"), nil
}

func parseCaptionsXML(data []byte) (string, error) {
	var tt timedTextXML
	if err := xml.Unmarshal(data, &tt); err != nil {
		return "", err
	}

	var parts []string
	for _, t := range tt.Texts {
		text := strings.TrimSpace(html.UnescapeString(t.Text))
		if text != "" {
			parts = append(parts, text)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("captions XML empty")
	}
	return strings.Join(parts, " "), nil
}
