package render

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/logflow/pmdash/pkg/analysis"
	lferrors "github.com/logflow/pmdash/pkg/errors"
)

// rowGroupSize bounds the rows per record batch.
const rowGroupSize = 64 * 1024

var timestampType = &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}

// EventSchema is the Arrow schema of the validated event table.
func EventSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "case_id", Type: arrow.BinaryTypes.String, Nullable: false},
		{Name: "activity", Type: arrow.BinaryTypes.String, Nullable: false},
		{Name: "start_time", Type: timestampType, Nullable: false},
		{Name: "end_time", Type: timestampType, Nullable: false},
		{Name: "duration_minutes", Type: arrow.PrimitiveTypes.Float64, Nullable: false},
	}, nil)
}

// Parquet writes the event table as a Parquet file.
type Parquet struct {
	codec compress.Compression
}

// NewParquet creates a Parquet renderer with the configured codec.
func NewParquet(opts Options) (*Parquet, error) {
	codec, err := parseCodec(opts.withDefaults().Compression)
	if err != nil {
		return nil, err
	}
	return &Parquet{codec: codec}, nil
}

func parseCodec(name string) (compress.Compression, error) {
	switch strings.ToLower(name) {
	case "snappy":
		return compress.Codecs.Snappy, nil
	case "gzip":
		return compress.Codecs.Gzip, nil
	case "zstd":
		return compress.Codecs.Zstd, nil
	case "lz4":
		return compress.Codecs.Lz4, nil
	case "none", "uncompressed":
		return compress.Codecs.Uncompressed, nil
	default:
		return compress.Codecs.Uncompressed, lferrors.New(lferrors.CodeInvalidFormat,
			fmt.Sprintf("unknown parquet compression %q", name))
	}
}

// Name implements Renderer.
func (*Parquet) Name() string { return NameParquet }

// ContentType implements Renderer.
func (*Parquet) ContentType() string { return "application/vnd.apache.parquet" }

// noCloseWriter keeps the parquet writer from closing w.
type noCloseWriter struct{ io.Writer }

// Render implements Renderer.
func (p *Parquet) Render(ctx context.Context, w io.Writer, b *analysis.Bundle) error {
	schema := EventSchema()
	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(p.codec),
		parquet.WithDictionaryDefault(true),
		parquet.WithDataPageSize(1024*1024), // 1MB
	)
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())

	fw, err := pqarrow.NewFileWriter(schema, noCloseWriter{w}, writerProps, arrowProps)
	if err != nil {
		return renderErr(fmt.Errorf("failed to create parquet writer: %w", err), NameParquet)
	}

	mem := memory.NewGoAllocator()
	bld := array.NewRecordBuilder(mem, schema)
	defer bld.Release()

	caseIDs := bld.Field(0).(*array.StringBuilder)
	activities := bld.Field(1).(*array.StringBuilder)
	starts := bld.Field(2).(*array.TimestampBuilder)
	ends := bld.Field(3).(*array.TimestampBuilder)
	durations := bld.Field(4).(*array.Float64Builder)

	flush := func() error {
		rec := bld.NewRecord()
		defer rec.Release()
		if rec.NumRows() == 0 {
			return nil
		}
		return fw.Write(rec)
	}

	for i, e := range b.Log.Events() {
		if i > 0 && i%rowGroupSize == 0 {
			if err := ctx.Err(); err != nil {
				fw.Close()
				return renderErr(err, NameParquet)
			}
			if err := flush(); err != nil {
				fw.Close()
				return renderErr(err, NameParquet)
			}
		}
		caseIDs.Append(e.CaseID)
		activities.Append(e.Activity)
		starts.Append(arrow.Timestamp(e.Start.UnixMicro()))
		ends.Append(arrow.Timestamp(e.End.UnixMicro()))
		durations.Append(e.DurationMinutes)
	}
	if err := flush(); err != nil {
		fw.Close()
		return renderErr(err, NameParquet)
	}
	return renderErr(fw.Close(), NameParquet)
}
