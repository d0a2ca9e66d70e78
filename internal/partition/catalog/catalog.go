// Package catalog lists the master partitions an admin may assign to users.
package catalog

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"voterstore/internal/partition/metrics"
	"voterstore/internal/partition/models"
	"voterstore/internal/partition/provision"
)

// Summary is one selectable partition.
type Summary struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// Lister enumerates the partitions of a logical database.
type Lister interface {
	ListPartitions(ctx context.Context, database string) ([]string, error)
}

type options struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	labels  map[string]string
}

// Option configures a Service or a Cached catalog.
type Option func(*options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithDisplayLabels overrides derived display names by partition id.
func WithDisplayLabels(labels map[string]string) Option {
	return func(o *options) {
		o.labels = labels
	}
}

func applyOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Service lists selectable partitions straight from the store.
type Service struct {
	lister   Lister
	database string
	options
}

// New constructs a catalog over one logical database.
func New(lister Lister, database string, opts ...Option) *Service {
	return &Service{lister: lister, database: database, options: applyOptions(opts)}
}

// ListSelectable returns the master partitions ordered by id. Reserved
// namespaces and tenant-private copies are excluded. A store failure yields
// an empty list and a warning; it is never returned to the caller.
func (s *Service) ListSelectable(ctx context.Context) []Summary {
	names, err := s.lister.ListPartitions(ctx, s.database)
	if err != nil {
		s.logger.WarnContext(ctx, "partition catalog unavailable",
			"database", s.database,
			"error", err,
		)
		if s.metrics != nil {
			s.metrics.IncrementCatalogDegraded()
		}
		return []Summary{}
	}

	out := make([]Summary, 0, len(names))
	for _, name := range names {
		if models.IsReserved(name) || provision.IsTenantPrivate(name) {
			continue
		}
		out = append(out, Summary{ID: name, DisplayName: s.displayName(name)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Service) displayName(name string) string {
	if label, ok := s.labels[name]; ok && label != "" {
		return label
	}
	return DisplayName(name)
}

// DisplayName derives a human label: separators become spaces and each word
// is capitalized. "ward_12-north" becomes "Ward 12 North".
func DisplayName(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-' || unicode.IsSpace(r)
	})
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	if len(words) == 0 {
		return name
	}
	return strings.Join(words, " ")
}
