// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package filexfer abstracts upload, download, and local persistence of
// opaque blobs (encrypted backups, PSBT files for airgapped signing).
// The actual transport is injected at construction; this package only
// adds error classification and cooperative-cancellation progress
// reporting.  Nothing here may be called while holding a projection
// lock: transfers block on network and disk I/O.
package filexfer

import (
	"context"
	"os"
)

// UploadFunc publishes a blob and returns an opaque reference URI.
type UploadFunc func(ctx context.Context, fileName, mimeType,
	jsonInfo string, data []byte) (string, error)

// DownloadFunc fetches a blob previously published under the given
// reference URI.
type DownloadFunc func(ctx context.Context, fileName, mimeType, jsonInfo,
	uri string) ([]byte, error)

// ProgressFunc receives percent-complete notifications.  Returning true
// requests a cooperative stop: the operation halts at the next chunk
// boundary.
type ProgressFunc func(percent int) (stop bool)

// writeChunkSize is the granularity of local writes between progress
// notifications.
const writeChunkSize = 32 * 1024

// Bridge binds the injected transfer functions together.
type Bridge struct {
	upload   UploadFunc
	download DownloadFunc
}

// NewBridge returns a bridge using the given transport functions.
// Either may be nil, in which case the corresponding operation fails
// with its transport error code.
func NewBridge(upload UploadFunc, download DownloadFunc) *Bridge {
	return &Bridge{upload: upload, download: download}
}

// Upload publishes a blob through the injected transport.  Transport
// failures are reported as ErrUploadFailed; retry policy is the
// caller's.
func (b *Bridge) Upload(ctx context.Context, fileName, mimeType,
	jsonInfo string, data []byte) (string, error) {

	if b.upload == nil {
		return "", transferError(ErrUploadFailed,
			"no upload transport registered", nil)
	}
	uri, err := b.upload(ctx, fileName, mimeType, jsonInfo, data)
	if err != nil {
		return "", transferError(ErrUploadFailed,
			"upload of "+fileName+" failed", err)
	}
	log.Debugf("Uploaded %s (%d bytes) to %s", fileName, len(data), uri)
	return uri, nil
}

// Download fetches a blob through the injected transport.  Transport
// failures are reported as ErrDownloadFailed.
func (b *Bridge) Download(ctx context.Context, fileName, mimeType,
	jsonInfo, uri string) ([]byte, error) {

	if b.download == nil {
		return nil, transferError(ErrDownloadFailed,
			"no download transport registered", nil)
	}
	data, err := b.download(ctx, fileName, mimeType, jsonInfo, uri)
	if err != nil {
		return nil, transferError(ErrDownloadFailed,
			"download of "+fileName+" failed", err)
	}
	log.Debugf("Downloaded %s (%d bytes)", fileName, len(data))
	return data, nil
}

// WriteFile streams data to a local file, invoking progress at chunk
// boundaries.  When the callback requests a stop the partial file is
// discarded and stopped is returned true; a stop is a cooperative
// cancellation, not an error.
func WriteFile(data []byte, path string,
	progress ProgressFunc) (stopped bool, err error) {

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return false, err
	}

	discard := func() {
		f.Close()
		os.Remove(path)
	}

	total := len(data)
	written := 0
	for written < total {
		n := writeChunkSize
		if remaining := total - written; remaining < n {
			n = remaining
		}
		if _, err := f.Write(data[written : written+n]); err != nil {
			discard()
			return false, err
		}
		written += n

		if progress != nil && progress(written*100/total) {
			log.Debugf("Write of %s stopped at %d/%d bytes", path,
				written, total)
			discard()
			return true, nil
		}
	}
	if total == 0 && progress != nil {
		progress(100)
	}
	return false, f.Close()
}
