// Package worker is the producer side of benchhub: it registers with an
// aggregation server and streams sample batches to it at a controlled pace.
//
// A [Pump] pulls batches from a [Source] and hands them to a [Submitter]
// from a fixed number of goroutines. Pacing follows one of two arrival
// models:
//   - [ArrivalUniform]: batches at fixed intervals via a token bucket
//   - [ArrivalPoisson]: exponentially distributed gaps
//
// The server answers a full ingestion queue with a backpressure error. Wrap
// the submitter with [WithRetry] and [BackpressurePolicy] to back off and try
// again instead of dropping the batch:
//
//	sess, err := worker.Open(ctx, client, registry.ClientConfig{StorageName: "s3", Writers: 4})
//	if err != nil {
//		return err
//	}
//	defer sess.Close(context.Background())
//
//	p := worker.New(worker.Options{
//		Concurrency:   4,
//		RatePerSecond: 50,
//		Duration:      time.Minute,
//		Source:        worker.NewSyntheticSource(worker.SyntheticConfig{Writers: 4}),
//		Submitter:     worker.WithRetry(sess, worker.BackpressurePolicy(5)),
//	})
//	res := p.Run(ctx)
package worker
