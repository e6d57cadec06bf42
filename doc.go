// Package transfer is the resilient HTTP transfer engine behind the modelbay
// browser: it fetches JSON API responses and downloads large binary artifacts
// (model weights, preview images) over unreliable networks with retries,
// resumable streams, and parallel chunked transfers.
//
// The two operations embedding applications call are Client.GetJSON and
// Client.DownloadFile. Everything else (failure classification, backoff,
// range probing, chunk planning and merging) sits behind them. Failures are
// always values: every public operation returns a *Error carrying an
// ErrorKind and a message fit for direct display.
package transfer
