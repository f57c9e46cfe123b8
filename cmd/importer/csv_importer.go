package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/lychee-technology/crm"
	"github.com/lychee-technology/crm/internal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ImportError describes why a single CSV row was not imported.
type ImportError struct {
	RowNumber int    // 1-based, the header is row 1
	CSVColumn string // column that caused the error, if known
	Field     string // record field, if known
	RawValue  string
	Reason    string
}

func (e *ImportError) Error() string {
	if e.CSVColumn == "" && e.Field == "" {
		return fmt.Sprintf("row %d: %s", e.RowNumber, e.Reason)
	}
	return fmt.Sprintf("row %d, column %q -> field %q: value %q - %s",
		e.RowNumber, e.CSVColumn, e.Field, e.RawValue, e.Reason)
}

// ImportResult contains the results of a CSV import.
type ImportResult struct {
	TotalRows    int // data rows, header excluded
	SuccessCount int
	FailedCount  int
	CreatedIDs   []int64
	Errors       []*ImportError
	Duration     time.Duration
}

// Summary returns a human-readable summary of the import result.
func (r *ImportResult) Summary() string {
	return fmt.Sprintf("Import completed: %d/%d rows successful, %d failed, duration: %v",
		r.SuccessCount, r.TotalRows, r.FailedCount, r.Duration)
}

// RecordSink stores one mapped record body and returns the new id.
type RecordSink interface {
	Create(ctx context.Context, body []byte) (int64, error)
}

// serviceSink validates a body against the entity schema, decodes it and
// hands it to the record service.
type serviceSink[T any, P any] struct {
	entity    crm.EntityKind
	service   crm.RecordService[T, P]
	validator *internal.SchemaValidator
	id        func(T) int64
}

func newServiceSink[T any, P any](kind internal.EntityKind[T, P], service crm.RecordService[T, P], validator *internal.SchemaValidator) *serviceSink[T, P] {
	return &serviceSink[T, P]{
		entity:    kind.Name,
		service:   service,
		validator: validator,
		id:        kind.ID,
	}
}

func (s *serviceSink[T, P]) Create(ctx context.Context, body []byte) (int64, error) {
	record, err := decodeRecord[T](s.validator, s.entity, body)
	if err != nil {
		return 0, err
	}
	created, err := s.service.Create(ctx, record)
	if err != nil {
		return 0, err
	}
	return s.id(created), nil
}

// dryRunSink validates and decodes without storing anything.
type dryRunSink[T any] struct {
	entity    crm.EntityKind
	validator *internal.SchemaValidator
}

func (s *dryRunSink[T]) Create(_ context.Context, body []byte) (int64, error) {
	_, err := decodeRecord[T](s.validator, s.entity, body)
	return 0, err
}

func decodeRecord[T any](validator *internal.SchemaValidator, entity crm.EntityKind, body []byte) (T, error) {
	var record T
	if err := validator.ValidateCreate(entity, body); err != nil {
		return record, err
	}
	if err := json.Unmarshal(body, &record); err != nil {
		return record, crm.NewValidationError("body", err.Error()).WithCause(err)
	}
	return record, nil
}

// ImportOptions configures the CSV reader.
type ImportOptions struct {
	Delimiter  rune // default: comma
	Comment    rune // default: none
	LazyQuotes bool
}

// DefaultImportOptions returns the default import options.
func DefaultImportOptions() ImportOptions {
	return ImportOptions{Delimiter: ','}
}

// CSVImporter streams CSV rows through a RecordMapper into a RecordSink.
type CSVImporter struct {
	sink        RecordSink
	mapper      RecordMapper
	batchSize   int
	concurrency int
	logger      *zap.SugaredLogger
}

// NewCSVImporter creates a new CSVImporter. Rows are sent to the sink in
// batches of batchSize, at most concurrency rows at a time. Non-positive
// values fall back to 100 and 4.
func NewCSVImporter(sink RecordSink, mapper RecordMapper, batchSize, concurrency int) *CSVImporter {
	if batchSize <= 0 {
		batchSize = 100
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &CSVImporter{
		sink:        sink,
		mapper:      mapper,
		batchSize:   batchSize,
		concurrency: concurrency,
		logger:      zap.NewNop().Sugar(),
	}
}

// SetLogger sets a custom logger for the importer.
func (i *CSVImporter) SetLogger(logger *zap.SugaredLogger) {
	i.logger = logger
}

// ImportFromFile imports CSV data from a file.
func (i *CSVImporter) ImportFromFile(ctx context.Context, filePath string, opts ImportOptions) (*ImportResult, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	return i.ImportFromReader(ctx, file, opts)
}

type pendingRow struct {
	rowNumber int
	body      []byte
}

// ImportFromReader imports CSV data from reader. Row failures are collected
// in the result. Only header errors and context cancellation abort the
// import.
func (i *CSVImporter) ImportFromReader(ctx context.Context, reader io.Reader, opts ImportOptions) (*ImportResult, error) {
	startTime := time.Now()

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1
	if opts.Delimiter != 0 {
		csvReader.Comma = opts.Delimiter
	}
	csvReader.Comment = opts.Comment
	csvReader.LazyQuotes = opts.LazyQuotes

	header, err := csvReader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	for idx := range header {
		header[idx] = strings.TrimSpace(strings.TrimPrefix(header[idx], "\uFEFF"))
	}

	result := &ImportResult{Errors: make([]*ImportError, 0)}
	batch := make([]pendingRow, 0, i.batchSize)
	rowNum := 1

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		rowNum++
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			i.fail(result, &ImportError{RowNumber: rowNum, Reason: fmt.Sprintf("CSV parsing error: %v", err)})
			continue
		}
		result.TotalRows++

		row := make(map[string]string, len(header))
		for idx, col := range header {
			if idx < len(record) {
				row[col] = record[idx]
			}
		}

		attributes, err := i.mapper.MapRecord(row)
		if err != nil {
			i.fail(result, mappingFailure(rowNum, err))
			continue
		}
		body, err := json.Marshal(attributes)
		if err != nil {
			i.fail(result, &ImportError{RowNumber: rowNum, Reason: err.Error()})
			continue
		}

		batch = append(batch, pendingRow{rowNumber: rowNum, body: body})
		if len(batch) >= i.batchSize {
			i.processBatch(ctx, batch, result)
			batch = batch[:0]
		}
	}

	if len(batch) > 0 {
		i.processBatch(ctx, batch, result)
	}

	result.Duration = time.Since(startTime)
	i.logger.Infof("%s", result.Summary())
	return result, ctx.Err()
}

// processBatch stores every row of batch and folds the outcomes into result
// in row order.
func (i *CSVImporter) processBatch(ctx context.Context, batch []pendingRow, result *ImportResult) {
	ids := make([]int64, len(batch))
	errs := make([]error, len(batch))

	var g errgroup.Group
	g.SetLimit(i.concurrency)
	for idx, row := range batch {
		g.Go(func() error {
			ids[idx], errs[idx] = i.sink.Create(ctx, row.body)
			return nil
		})
	}
	_ = g.Wait()

	for idx, row := range batch {
		if errs[idx] != nil {
			i.fail(result, i.sinkFailure(row.rowNumber, errs[idx]))
			continue
		}
		result.SuccessCount++
		if ids[idx] != 0 {
			result.CreatedIDs = append(result.CreatedIDs, ids[idx])
		}
	}
	i.logger.Debugw("batch processed", "rows", len(batch), "firstRow", batch[0].rowNumber)
}

func (i *CSVImporter) fail(result *ImportResult, importErr *ImportError) {
	i.logger.Errorf("%s", importErr.Error())
	result.FailedCount++
	result.Errors = append(result.Errors, importErr)
}

func mappingFailure(rowNum int, err error) *ImportError {
	var mappingErr *MappingError
	if errors.As(err, &mappingErr) {
		return &ImportError{
			RowNumber: rowNum,
			CSVColumn: mappingErr.CSVColumn,
			Field:     mappingErr.Field,
			RawValue:  mappingErr.Value,
			Reason:    mappingErr.Message,
		}
	}
	return &ImportError{RowNumber: rowNum, Reason: fmt.Sprintf("mapping error: %v", err)}
}

// sinkFailure points a rejected record back at the CSV column of its first
// rejected field.
func (i *CSVImporter) sinkFailure(rowNum int, err error) *ImportError {
	importErr := &ImportError{RowNumber: rowNum, Reason: err.Error()}
	var crmErr *crm.CRMError
	if !errors.As(err, &crmErr) || len(crmErr.Fields) == 0 {
		return importErr
	}
	first := crmErr.Fields[0]
	importErr.Field = first.Field
	importErr.Reason = first.Message
	for _, mapping := range i.mapper.Mappings() {
		if mapping.Field == first.Field {
			importErr.CSVColumn = mapping.CSVColumn
			break
		}
	}
	return importErr
}
