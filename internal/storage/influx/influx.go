package influx

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/dustin/go-humanize"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"lpValuer/internal/storage"
)

const measurement = "lp_valuation"

// PointWriter is the blocking write surface of an InfluxDB bucket.
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Sink writes valuation records as InfluxDB points.
type Sink struct {
	client influxdb2.Client
	writer PointWriter
}

// NewSink connects to an InfluxDB v2 server.
func NewSink(url, token, org, bucket string) (*Sink, error) {
	if url == "" || org == "" || bucket == "" {
		return nil, fmt.Errorf("influx url, org and bucket are required")
	}
	client := influxdb2.NewClient(url, token)
	return &Sink{client: client, writer: client.WriteAPIBlocking(org, bucket)}, nil
}

// NewSinkWithWriter wraps an existing writer.
func NewSinkWithWriter(writer PointWriter) *Sink {
	return &Sink{writer: writer}
}

func (s *Sink) Close() {
	if s.client != nil {
		s.client.Close()
	}
}

// PutRecords writes one point per record.
func (s *Sink) PutRecords(ctx context.Context, records []storage.Record) error {
	if len(records) == 0 {
		return nil
	}
	points := make([]*write.Point, 0, len(records))
	for _, rec := range records {
		points = append(points, Point(rec))
	}
	if err := s.writer.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("write points: %w", err)
	}
	return nil
}

// Point converts a record into a point stamped at its value date.
func Point(rec storage.Record) *write.Point {
	tags := map[string]string{
		"kind": rec.Kind,
		"pool": rec.PoolID,
		"size": sizeBucket(rec.PositionUSD),
	}
	fields := map[string]interface{}{
		"amount0":              rec.Amount0,
		"amount1":              rec.Amount1,
		"liquidity":            rec.Liquidity,
		"fees_usd":             rec.FeesUSD,
		"position_usd":         rec.PositionUSD,
		"impermanent_loss_usd": rec.ImpermanentLossUSD,
		"value":                rec.Value,
		"paths":                int64(rec.Paths),
	}
	ts := rec.ValueDate
	if ts.IsZero() {
		ts = time.Now()
	}
	return write.NewPoint(measurement, tags, fields, ts)
}

// sizeBucket floors a USD value to its power of ten so the tag stays low
// cardinality, e.g. 10500 becomes "10k".
func sizeBucket(usd float64) string {
	if !(usd >= 1) || math.IsInf(usd, 1) {
		return "0"
	}
	bucket := math.Pow(10, math.Floor(math.Log10(usd)+1e-9))
	// Nudged up so exact powers of a thousand land on the next prefix.
	number, suffix := humanize.ComputeSI(bucket * (1 + 1e-9))
	return humanize.Ftoa(number) + suffix
}
