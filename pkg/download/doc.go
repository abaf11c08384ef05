// Package download implements the two transports behind the unified downloader: an external
// multi-connection aria2c process and a built-in single-connection streaming HTTP client.
//
// Both transports write straight to the destination path and share the same contract:
//
//   - progress is reported through a ProgressFunc with non-decreasing percentages
//   - cancellation is cooperative, observed through the context at every line or chunk
//   - any non-success return leaves nothing behind at the destination path
//
// A nil error means the destination holds the complete file. ErrCancelled means the caller asked
// to stop. Any other error is a transport failure.
package download
