package catalog

import (
	"go.uber.org/zap"

	"github.com/hyperjump/wtm/internal/storage"
	"github.com/hyperjump/wtm/pkg/utils"
)

type options struct {
	logger       *zap.Logger
	snapshotPath string
	source       storage.Storage
	table        string
}

// Option configures a catalog.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = utils.OrNop(l) }
}

// WithSnapshotPath makes a MemoryCatalog persist its index after each refresh
// and start from the saved index on Open.
func WithSnapshotPath(path string) Option {
	return func(o *options) { o.snapshotPath = path }
}

// WithMirrorSource makes a PgvectorCatalog copy embedded foods from source on Refresh.
func WithMirrorSource(source storage.Storage) Option {
	return func(o *options) { o.source = source }
}

// WithTable sets the PostgreSQL table a PgvectorCatalog searches.
func WithTable(table string) Option {
	return func(o *options) {
		if table != "" {
			o.table = table
		}
	}
}

func applyOptions(opts []Option) options {
	o := options{logger: zap.NewNop(), table: "foods"}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
