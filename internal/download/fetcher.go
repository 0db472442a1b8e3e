package download

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/playroom/internal/shared"
	"github.com/lrstanley/go-ytdlp"
)

// FetchResult locates a freshly downloaded file inside the fetch directory.
type FetchResult struct {
	Path  string
	Title string
}

// Fetcher downloads the audio for query into dir.
type Fetcher interface {
	Fetch(ctx context.Context, query, dir string) (*FetchResult, error)
}

// FetcherFunc adapts a function to [Fetcher].
type FetcherFunc func(ctx context.Context, query, dir string) (*FetchResult, error)

func (f FetcherFunc) Fetch(ctx context.Context, query, dir string) (*FetchResult, error) {
	return f(ctx, query, dir)
}

// YTDLPFetcher searches for and downloads the best audio stream of a query,
// extracting it to 192k mp3.
type YTDLPFetcher struct {
	CookiesFile string
	logger      *log.Logger
}

// NewYTDLPFetcher returns a fetcher that passes cookiesFile to yt-dlp when it is set.
func NewYTDLPFetcher(cookiesFile string, logger *log.Logger) *YTDLPFetcher {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &YTDLPFetcher{CookiesFile: cookiesFile, logger: shared.WithLogger(logger, "component", "ytdlp")}
}

func (f *YTDLPFetcher) command(dir string) *ytdlp.Command {
	dl := ytdlp.New().
		Format("bestaudio/best").
		NoPlaylist().
		DefaultSearch("ytsearch1").
		ExtractAudio().
		AudioFormat("mp3").
		AudioQuality("192K").
		ForceOverwrites().
		RestrictFilenames().
		PrintJSON().
		Output(filepath.Join(dir, "%(id)s.%(ext)s"))

	if f.CookiesFile != "" {
		dl = dl.Cookies(f.CookiesFile)
	}
	return dl
}

func (f *YTDLPFetcher) Fetch(ctx context.Context, query, dir string) (*FetchResult, error) {
	f.logger.Debug("fetching", "query", query)

	result, err := f.command(dir).Run(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp: %w", err)
	}

	var title string
	if info, err := result.GetExtractedInfo(); err == nil && len(info) > 0 && info[0].Title != nil {
		title = *info[0].Title
	}

	path, err := findAudio(dir)
	if err != nil {
		return nil, err
	}
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return &FetchResult{Path: path, Title: title}, nil
}

// findAudio picks the extracted mp3 in dir, or the largest file when extraction kept another container.
func findAudio(dir string) (string, error) {
	if matches, _ := filepath.Glob(filepath.Join(dir, "*.mp3")); len(matches) > 0 {
		sort.Strings(matches)
		return matches[0], nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	var best string
	var bestSize int64 = -1
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.Size() > bestSize {
			best, bestSize = filepath.Join(dir, e.Name()), info.Size()
		}
	}
	if best == "" {
		return "", fmt.Errorf("yt-dlp produced no file in %s", dir)
	}
	return best, nil
}
