package rpc

import (
	"fmt"
	"time"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/dynamic"

	"github.com/torosent/benchhub/internal/errdefs"
	"github.com/torosent/benchhub/internal/metrics"
	"github.com/torosent/benchhub/internal/registry"
	"github.com/torosent/benchhub/internal/service"
)

// field is one name/value pair written into a dynamic message.
type field struct {
	name  string
	value any
}

func setFields(msg *dynamic.Message, fields ...field) error {
	for _, f := range fields {
		if err := msg.TrySetFieldByName(f.name, f.value); err != nil {
			return fmt.Errorf("set %s.%s: %w", msg.GetMessageDescriptor().GetName(), f.name, err)
		}
	}
	return nil
}

// newMessage builds a message of md populated with fields.
func newMessage(md *desc.MessageDescriptor, fields ...field) (*dynamic.Message, error) {
	msg := dynamic.NewMessage(md)
	if err := setFields(msg, fields...); err != nil {
		return nil, err
	}
	return msg, nil
}

// messageType returns the type of the message-typed field name of md.
func messageType(md *desc.MessageDescriptor, name string) *desc.MessageDescriptor {
	return md.FindFieldByName(name).GetMessageType()
}

// fieldReader reads typed values out of a decoded message. The first
// mismatch is kept in err, wrapped as errdefs.ErrMalformed, and later reads
// return zero values.
type fieldReader struct {
	msg *dynamic.Message
	err error
}

func (r *fieldReader) value(name string) any {
	if r.err != nil {
		return nil
	}
	v, err := r.msg.TryGetFieldByName(name)
	if err != nil {
		r.err = fmt.Errorf("%w: %s.%s: %v", errdefs.ErrMalformed, r.msg.GetMessageDescriptor().GetName(), name, err)
		return nil
	}
	return v
}

func (r *fieldReader) mismatch(name string, v any) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: %s.%s has unexpected type %T", errdefs.ErrMalformed, r.msg.GetMessageDescriptor().GetName(), name, v)
	}
}

func (r *fieldReader) i64(name string) int64 {
	v := r.value(name)
	if v == nil {
		return 0
	}
	n, ok := v.(int64)
	if !ok {
		r.mismatch(name, v)
	}
	return n
}

func (r *fieldReader) str(name string) string {
	v := r.value(name)
	if v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		r.mismatch(name, v)
	}
	return s
}

// i64s returns nil for an empty repeated field.
func (r *fieldReader) i64s(name string) []int64 {
	list, ok := r.value(name).([]any)
	if !ok || len(list) == 0 {
		return nil
	}
	out := make([]int64, len(list))
	for i, v := range list {
		n, ok := v.(int64)
		if !ok {
			r.mismatch(name, v)
			return nil
		}
		out[i] = n
	}
	return out
}

func (r *fieldReader) f64s(name string) []float64 {
	list, ok := r.value(name).([]any)
	if !ok || len(list) == 0 {
		return nil
	}
	out := make([]float64, len(list))
	for i, v := range list {
		f, ok := v.(float64)
		if !ok {
			r.mismatch(name, v)
			return nil
		}
		out[i] = f
	}
	return out
}

// nested returns the message-typed field name, or nil when it is absent.
func (r *fieldReader) nested(name string) *dynamic.Message {
	if r.err != nil || !r.msg.HasFieldName(name) {
		return nil
	}
	v := r.value(name)
	m, ok := v.(*dynamic.Message)
	if !ok {
		r.mismatch(name, v)
		return nil
	}
	return m
}

func encodeClientConfig(md *desc.MessageDescriptor, cfg registry.ClientConfig) (*dynamic.Message, error) {
	return newMessage(md,
		field{"storage_name", cfg.StorageName},
		field{"readers", int64(cfg.Readers)},
		field{"writers", int64(cfg.Writers)},
		field{"max_connections", int64(cfg.MaxConnections)},
	)
}

func decodeClientConfig(msg *dynamic.Message) (registry.ClientConfig, error) {
	r := fieldReader{msg: msg}
	cfg := registry.ClientConfig{
		StorageName:    r.str("storage_name"),
		Readers:        int(r.i64("readers")),
		Writers:        int(r.i64("writers")),
		MaxConnections: int(r.i64("max_connections")),
	}
	return cfg, r.err
}

func encodeBatch(md *desc.MessageDescriptor, b metrics.SampleBatch) (*dynamic.Message, error) {
	return newMessage(md,
		field{"write_count", b.WriteCount},
		field{"write_bytes", b.WriteBytes},
		field{"write_latencies", b.WriteLatencies},
		field{"read_count", b.ReadCount},
		field{"read_bytes", b.ReadBytes},
		field{"read_latencies", b.ReadLatencies},
		field{"min_latency", b.MinLatency},
		field{"max_latency", b.MaxLatency},
		field{"discard_count", b.DiscardCount},
	)
}

func decodeBatch(msg *dynamic.Message) (metrics.SampleBatch, error) {
	r := fieldReader{msg: msg}
	b := metrics.SampleBatch{
		WriteCount:     r.i64("write_count"),
		WriteBytes:     r.i64("write_bytes"),
		WriteLatencies: r.i64s("write_latencies"),
		ReadCount:      r.i64("read_count"),
		ReadBytes:      r.i64("read_bytes"),
		ReadLatencies:  r.i64s("read_latencies"),
		MinLatency:     r.i64("min_latency"),
		MaxLatency:     r.i64("max_latency"),
		DiscardCount:   r.i64("discard_count"),
	}
	return b, r.err
}

func snapshotFields(snap service.ConfigSnapshot) []field {
	return []field{
		{"max_connections", snap.MaxConnections},
		{"zero_policy", snap.ZeroPolicy},
		{"queue_entries", int64(snap.QueueEntries)},
		{"queue_bytes", snap.QueueBytes},
		{"flush_interval_nanos", int64(snap.FlushInterval)},
		{"idle_interval_nanos", int64(snap.IdleInterval)},
		{"enqueue_timeout_nanos", int64(snap.EnqueueTimeout)},
		{"latency_unit", snap.LatencyUnit},
		{"min_latency", snap.MinLatency},
		{"max_latency", snap.MaxLatency},
		{"significant_figures", int64(snap.SignificantFigures)},
		{"percentiles", snap.Percentiles},
		{"connections", snap.Connections},
	}
}

func decodeSnapshot(msg *dynamic.Message) (service.ConfigSnapshot, error) {
	r := fieldReader{msg: msg}
	snap := service.ConfigSnapshot{
		MaxConnections:     r.i64("max_connections"),
		ZeroPolicy:         r.str("zero_policy"),
		QueueEntries:       int(r.i64("queue_entries")),
		QueueBytes:         r.i64("queue_bytes"),
		FlushInterval:      time.Duration(r.i64("flush_interval_nanos")),
		IdleInterval:       time.Duration(r.i64("idle_interval_nanos")),
		EnqueueTimeout:     time.Duration(r.i64("enqueue_timeout_nanos")),
		LatencyUnit:        r.str("latency_unit"),
		MinLatency:         r.i64("min_latency"),
		MaxLatency:         r.i64("max_latency"),
		SignificantFigures: int(r.i64("significant_figures")),
		Percentiles:        r.f64s("percentiles"),
		Connections:        r.i64("connections"),
	}
	return snap, r.err
}
