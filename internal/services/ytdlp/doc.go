// Package ytdlp wraps the yt-dlp command-line tool for acquiring remote
// sources. Downloads walk an ordered list of format selectors so a source
// that rejects the preferred MP4 ladder still lands via a broader selector,
// and failures are classified so callers can tell permanently unavailable
// sources from transient network trouble.
package ytdlp
