package ingest

import (
	"context"
	"fmt"
	"io"

	"github.com/xxxsen/policyrag/internal/filestore"
	appErr "github.com/xxxsen/policyrag/internal/pkg/errors"
)

const DefaultMaxDocumentBytes = 64 << 20

type storeFetcher struct {
	store    filestore.Store
	maxBytes int64
}

// NewStoreFetcher resolves locators as keys of store. Documents larger than
// maxBytes are rejected as input errors.
func NewStoreFetcher(store filestore.Store, maxBytes int64) Fetcher {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxDocumentBytes
	}
	return &storeFetcher{store: store, maxBytes: maxBytes}
}

func (f *storeFetcher) Fetch(ctx context.Context, locator string) ([]byte, error) {
	obj, err := f.store.Open(ctx, locator)
	if err != nil {
		if appErr.IsNotFound(err) {
			return nil, appErr.Invalid("document %s not found", locator)
		}
		return nil, fmt.Errorf("open %s: %w", locator, err)
	}
	defer obj.Body.Close()
	data, err := io.ReadAll(io.LimitReader(obj.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", locator, err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, appErr.Invalid("document %s exceeds %d bytes", locator, f.maxBytes)
	}
	return data, nil
}
