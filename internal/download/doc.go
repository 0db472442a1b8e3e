// Package download runs fetches of audio artifacts on a fixed pool of workers.
//
// A [Dispatcher] de-duplicates concurrent requests for the same normalized query,
// serves cache hits without touching a worker, and rejects artifacts above the
// configured size. Callers receive a reference counted [Handle]; the fetch itself
// belongs to the dispatcher, so a caller that stops waiting never cancels it for
// the others.
//
// The production [Fetcher] drives yt-dlp through github.com/lrstanley/go-ytdlp.
package download
