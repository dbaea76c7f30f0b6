package annotate

import (
	"context"
	"fmt"
	"log/slog"
)

// Row is the slice of a content record a classifier sees.
type Row struct {
	ID          string `json:"id"`
	Author      string `json:"author"`
	Text        string `json:"text"`
	PublishTime string `json:"publish_time"`
}

// Classifier produces one field-value map per input row, in order. A nil map
// means the classifier had no answer for that row.
type Classifier func(ctx context.Context, schema *Schema, rows []Row) ([]map[string]any, error)

// Sink receives typed annotation writes. The engine's UpdateFields satisfies
// this; EnsureColumns for the schema must have completed first.
type Sink interface {
	UpdateFields(ctx context.Context, id string, fields map[string]any) error
}

// Report summarises one annotation run.
type Report struct {
	Annotated int
	Skipped   int
	Errors    []error
}

// Options configures an Annotator.
type Options struct {
	// BatchSize is how many rows go to the classifier per call. Default: 10.
	BatchSize int
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = 10
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Annotator batches rows through a classifier and writes coerced values to
// a sink. Per-row failures are reported and never abort the run; a failing
// classifier call skips that batch only.
type Annotator struct {
	schema   *Schema
	classify Classifier
	sink     Sink
	opts     Options
}

// New creates an Annotator. The schema must already be validated.
func New(schema *Schema, classify Classifier, sink Sink, opts Options) *Annotator {
	opts.defaults()
	return &Annotator{schema: schema, classify: classify, sink: sink, opts: opts}
}

// Run annotates all rows, batch by batch.
func (a *Annotator) Run(ctx context.Context, rows []Row) (*Report, error) {
	report := &Report{}
	for start := 0; start < len(rows); start += a.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		end := min(start+a.opts.BatchSize, len(rows))
		a.runBatch(ctx, rows[start:end], report)
	}
	return report, nil
}

func (a *Annotator) runBatch(ctx context.Context, batch []Row, report *Report) {
	results, err := a.classify(ctx, a.schema, batch)
	if err != nil {
		report.Skipped += len(batch)
		report.Errors = append(report.Errors, fmt.Errorf("classify batch: %w", err))
		a.opts.Logger.Warn("classifier batch failed",
			"schema", a.schema.Name, "rows", len(batch), "error", err)
		return
	}
	if len(results) != len(batch) {
		report.Skipped += len(batch)
		report.Errors = append(report.Errors,
			fmt.Errorf("classify batch: got %d results for %d rows", len(results), len(batch)))
		return
	}

	for i, row := range batch {
		fields, err := a.coerceRow(results[i])
		if err != nil {
			report.Skipped++
			report.Errors = append(report.Errors, fmt.Errorf("record %s: %w", row.ID, err))
			continue
		}
		if err := a.sink.UpdateFields(ctx, row.ID, fields); err != nil {
			report.Skipped++
			report.Errors = append(report.Errors, fmt.Errorf("record %s: %w", row.ID, err))
			continue
		}
		report.Annotated++
	}
}

// coerceRow validates a classifier result against the schema. Every schema
// field must be present and coercible; unknown keys are rejected so typos
// never write to unintended columns.
func (a *Annotator) coerceRow(values map[string]any) (map[string]any, error) {
	if values == nil {
		return nil, fmt.Errorf("no classifier result")
	}
	fields := make(map[string]any, len(a.schema.Fields))
	for _, f := range a.schema.Fields {
		raw, ok := values[f.Name]
		if !ok {
			return nil, fmt.Errorf("field %s missing from classifier result", f.Name)
		}
		coerced, err := f.Coerce(raw)
		if err != nil {
			return nil, err
		}
		fields[f.Name] = coerced
	}
	for name := range values {
		if a.schema.Field(name) == nil {
			return nil, fmt.Errorf("unexpected field %q in classifier result", name)
		}
	}
	return fields, nil
}
