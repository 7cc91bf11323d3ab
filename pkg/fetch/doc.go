// Package fetch retrieves the manifest of a remote modpack archive.
//
// Modpack archives can be hundreds of megabytes while the manifest is a few
// kilobytes. When the host supports byte ranges, [Fetcher] opens the archive
// through [RangeReader], an io.ReaderAt backed by HTTP Range requests, so
// only the central directory and the manifest entry cross the network.
// Hosts without range support get a whole-file download bounded by
// MaxDownloadSize.
//
// Every failure worth retrying later is returned as *deps.FetchError
// carrying the skip reason:
//
//   - DOWNLOAD_ERROR: network failure, non-2xx status, unreadable archive
//   - DOWNLOAD_TOO_LARGE: whole-file fallback over the size ceiling
//   - FILE_PARSING_ERROR: readable archive without a manifest entry
package fetch
