package firestore

import (
	"context"
)

// Option customises a Firestore repository.
type Option func(*repoOptions)

type repoOptions struct {
	logger func(context.Context, string, map[string]any)
}

// WithLogger receives document decode events such as snapshot_document_skipped.
func WithLogger(logger func(context.Context, string, map[string]any)) Option {
	return func(o *repoOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func newRepoOptions(opts []Option) repoOptions {
	o := repoOptions{logger: func(context.Context, string, map[string]any) {}}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// documentSkipped reports a record left out of a listing because it could not be decoded.
func (o repoOptions) documentSkipped(ctx context.Context, collection, id string, err error) {
	o.logger(ctx, "snapshot_document_skipped", map[string]any{"collection": collection, "documentId": id, "error": err.Error()})
}

// documentNormalised reports fields that had the wrong type and were read as empty.
func (o repoOptions) documentNormalised(ctx context.Context, collection, id string, fields []string) {
	if len(fields) == 0 {
		return
	}
	o.logger(ctx, "snapshot_document_normalised", map[string]any{"collection": collection, "documentId": id, "fields": fields})
}
