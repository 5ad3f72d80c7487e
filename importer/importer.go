// Package importer imports OpenDB category records into the product store.
package importer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pcparts/partsdb/mapping"
	"github.com/pcparts/partsdb/models"
	"github.com/pcparts/partsdb/opendb"
	"github.com/pcparts/partsdb/telemetry"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Summary reports the outcome of one import run.
type Summary struct {
	RunID       uuid.UUID             `json:"run_id"`
	Category    string                `json:"category"`
	Source      string                `json:"source"`
	Total       int                   `json:"total"`
	Created     int                   `json:"created"`
	Updated     int                   `json:"updated"`
	Unchanged   int                   `json:"unchanged"`
	Skipped     int                   `json:"skipped"`
	Errors      []*RecordMappingError `json:"errors"`
	StartedAt   time.Time             `json:"started_at"`
	CompletedAt time.Time             `json:"completed_at"`
}

// Importer runs catalog imports. It is safe for concurrent use; imports of the
// same category are serialised by its Locker.
type Importer struct {
	registry  *mapping.Registry
	source    opendb.Source
	products  *models.ProductsRepository
	runs      *models.ImportRunsRepository
	locker    Locker
	logger    *zap.Logger
	metrics   *telemetry.ImportMetrics
	maxIssues int
	now       func() time.Time
}

type Option func(*Importer)

func WithLocker(l Locker) Option {
	return func(i *Importer) { i.locker = l }
}

func WithLogger(logger *zap.Logger) Option {
	return func(i *Importer) { i.logger = logger }
}

func WithMetrics(m *telemetry.ImportMetrics) Option {
	return func(i *Importer) { i.metrics = m }
}

// WithMaxIssues caps how many skipped-record details are stored on a run.
func WithMaxIssues(n int) Option {
	return func(i *Importer) { i.maxIssues = n }
}

func WithClock(now func() time.Time) Option {
	return func(i *Importer) { i.now = now }
}

func New(db *gorm.DB, registry *mapping.Registry, source opendb.Source, opts ...Option) *Importer {
	i := &Importer{
		registry:  registry,
		source:    source,
		products:  models.NewProductsRepository(db),
		runs:      models.NewImportRunsRepository(db),
		locker:    NewMemoryLocker(),
		logger:    zap.NewNop(),
		maxIssues: 100,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	i.logger = i.logger.Named("importer")
	return i
}

// Registry returns the mappings the importer accepts.
func (i *Importer) Registry() *mapping.Registry {
	return i.registry
}

// Run imports every record of category from the source.
//
// Records that cannot be mapped are skipped and reported in the summary.
// Unknown categories fail with ErrUnsupportedCategory, fetch failures with
// ErrSourceUnavailable; in both cases no products are written.
func (i *Importer) Run(ctx context.Context, category string) (*Summary, error) {
	m, ok := i.registry.Lookup(category)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCategory, category)
	}
	code := m.Code()
	log := i.logger.With(zap.String("category", code))

	ctx, span := telemetry.StartSpan(ctx, "import.run", "category", code)
	defer span.End()

	unlock, err := i.locker.TryLock(ctx, "import:"+code)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	defer unlock()

	run := &models.ImportRun{
		Category:  code,
		Source:    i.source.Describe(),
		Status:    models.ImportStatusRunning,
		StartedAt: i.now().UTC(),
	}
	if err := i.runs.Create(ctx, run); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to record import run: %w", err)
	}
	telemetry.SetAttributes(span, "import.run_id", run.ID.String())
	log = log.With(zap.String("run_id", run.ID.String()))
	log.Info("Import started", zap.String("source", run.Source))

	summary, err := i.run(ctx, m, run, log)
	if err != nil {
		telemetry.RecordError(span, err)
		i.fail(ctx, run, err, log)
		return nil, err
	}

	telemetry.SetAttributes(span,
		"import.total", summary.Total,
		"import.created", summary.Created,
		"import.updated", summary.Updated,
		"import.unchanged", summary.Unchanged,
		"import.skipped", summary.Skipped,
	)
	return summary, nil
}

func (i *Importer) run(ctx context.Context, m *mapping.Mapping, run *models.ImportRun, log *zap.Logger) (*Summary, error) {
	code := m.Code()
	records, err := i.source.Fetch(ctx, m.Directory)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", m.Directory, err)
	}

	summary := &Summary{
		RunID:     run.ID,
		Category:  code,
		Source:    run.Source,
		Total:     len(records),
		Errors:    []*RecordMappingError{},
		StartedAt: run.StartedAt,
	}
	skip := func(rerr *RecordMappingError) {
		summary.Skipped++
		summary.Errors = append(summary.Errors, rerr)
		log.Warn("Skipping OpenDB record",
			zap.String("ref", rerr.Ref),
			zap.String("field", rerr.Field),
			zap.String("code", rerr.Code),
			zap.String("reason", rerr.Message),
		)
	}

	products := mapRecords(m, records, skip)

	syncedAt := i.now().UTC()
	err = i.products.Transaction(ctx, func(tx *models.ProductsRepository) error {
		cat, err := tx.EnsureCategory(ctx, code, m.Name)
		if err != nil {
			return fmt.Errorf("ensure category: %w", err)
		}
		hashes, err := tx.ExistingHashes(ctx, cat.ID)
		if err != nil {
			return fmt.Errorf("load stored products: %w", err)
		}

		var changed []*models.Product
		var unchanged []uuid.UUID
		for _, p := range products {
			p.CategoryID = cat.ID
			p.LastSynced = syncedAt

			stored, exists := hashes[p.OpenDBID]
			switch {
			case !exists:
				summary.Created++
				changed = append(changed, p)
			case stored != p.SourceHash:
				summary.Updated++
				changed = append(changed, p)
			default:
				summary.Unchanged++
				unchanged = append(unchanged, p.OpenDBID)
			}
		}

		if err := tx.Upsert(ctx, changed); err != nil {
			return fmt.Errorf("upsert products: %w", err)
		}
		if err := tx.TouchSynced(ctx, cat.ID, unchanged, syncedAt); err != nil {
			return fmt.Errorf("touch unchanged products: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	summary.CompletedAt = i.now().UTC()
	completed := summary.CompletedAt
	run.Status = models.ImportStatusSucceeded
	run.Total = summary.Total
	run.Created = summary.Created
	run.Updated = summary.Updated
	run.Unchanged = summary.Unchanged
	run.Skipped = summary.Skipped
	run.ErrorDetails = i.issues(summary.Errors)
	run.CompletedAt = &completed
	if err := i.runs.Finish(ctx, run); err != nil {
		// products are committed; losing the audit row is not fatal
		log.Error("Failed to record import run result", zap.Error(err))
	}

	i.metrics.RecordOutcome(ctx, code, telemetry.OutcomeCreated, summary.Created)
	i.metrics.RecordOutcome(ctx, code, telemetry.OutcomeUpdated, summary.Updated)
	i.metrics.RecordOutcome(ctx, code, telemetry.OutcomeUnchanged, summary.Unchanged)
	i.metrics.RecordOutcome(ctx, code, telemetry.OutcomeSkipped, summary.Skipped)
	i.metrics.RecordRun(ctx, code, string(run.Status), completed.Sub(run.StartedAt))

	log.Info("Import finished",
		zap.Int("total", summary.Total),
		zap.Int("created", summary.Created),
		zap.Int("updated", summary.Updated),
		zap.Int("unchanged", summary.Unchanged),
		zap.Int("skipped", summary.Skipped),
		zap.Duration("duration", completed.Sub(run.StartedAt)),
	)
	return summary, nil
}

// fail marks the run failed. It still writes when ctx was cancelled.
func (i *Importer) fail(ctx context.Context, run *models.ImportRun, cause error, log *zap.Logger) {
	completed := i.now().UTC()
	run.Status = models.ImportStatusFailed
	run.Error = cause.Error()
	run.CompletedAt = &completed

	if errors.Is(cause, ErrSourceUnavailable) {
		log.Error("OpenDB source unavailable", zap.Error(cause))
	} else {
		log.Error("Import failed", zap.Error(cause))
	}

	ctx = context.WithoutCancel(ctx)
	if err := i.runs.Finish(ctx, run); err != nil {
		log.Error("Failed to record import run result", zap.Error(err))
	}
	i.metrics.RecordRun(ctx, run.Category, string(run.Status), completed.Sub(run.StartedAt))
}

func (i *Importer) issues(errs []*RecordMappingError) models.Issues {
	n := len(errs)
	if i.maxIssues >= 0 && n > i.maxIssues {
		n = i.maxIssues
	}
	out := make(models.Issues, 0, n)
	for _, e := range errs[:n] {
		out = append(out, models.RecordIssue{Ref: e.Ref, Field: e.Field, Code: e.Code, Message: e.Message})
	}
	return out
}

// mapRecords maps decoded records to products, reporting every record it drops.
// The first record wins when an OpenDB id appears twice.
func mapRecords(m *mapping.Mapping, records []opendb.Record, skip func(*RecordMappingError)) []*models.Product {
	products := make([]*models.Product, 0, len(records))
	seen := make(map[uuid.UUID]string, len(records))

	for _, rec := range records {
		if rec.Err != nil {
			skip(&RecordMappingError{
				Ref:     rec.Ref,
				Code:    mapping.ErrCodeDecode,
				Message: rec.Err.Error(),
				Err:     rec.Err,
			})
			continue
		}

		p, err := m.Map(rec.Data)
		if err != nil {
			rerr := &RecordMappingError{Ref: rec.Ref, Message: err.Error(), Err: err}
			var fe *mapping.FieldError
			if errors.As(err, &fe) {
				rerr.Field = fe.Field
				rerr.Code = fe.Code
				rerr.Message = fe.Message
			}
			skip(rerr)
			continue
		}

		if first, dup := seen[p.OpenDBID]; dup {
			skip(&RecordMappingError{
				Ref:     rec.Ref,
				Field:   mapping.ColumnOpenDBID,
				Code:    mapping.ErrCodeDuplicate,
				Message: fmt.Sprintf("opendb_id %s already imported from %s", p.OpenDBID, first),
			})
			continue
		}
		seen[p.OpenDBID] = rec.Ref

		p.SourceHash = contentHash(p)
		products = append(products, p)
	}
	return products
}

// contentHash fingerprints the mapped values of a product.
func contentHash(p *models.Product) string {
	payload := struct {
		Name            string       `json:"name"`
		Manufacturer    string       `json:"manufacturer"`
		PartNumbers     []string     `json:"part_numbers"`
		Series          string       `json:"series"`
		Variant         string       `json:"variant"`
		ReleaseYear     *int         `json:"release_year"`
		ManufacturerURL string       `json:"manufacturer_url"`
		Price           string       `json:"price"`
		Specs           models.Specs `json:"specs"`
	}{
		Name:            p.Name,
		Manufacturer:    p.Manufacturer,
		PartNumbers:     p.PartNumbers,
		Series:          p.Series,
		Variant:         p.Variant,
		ReleaseYear:     p.ReleaseYear,
		ManufacturerURL: p.ManufacturerURL,
		Price:           p.Price.String(),
		Specs:           p.Specs,
	}
	// map keys are marshalled in sorted order, so the encoding is stable
	data, _ := json.Marshal(payload)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
