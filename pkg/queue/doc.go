// Package queue is a small repository-agnostic task queue.
//
// An Enqueuer marshals payloads to JSON and stores them as Tasks; a Worker
// claims ready tasks and dispatches them to Handlers registered under the
// task name. By default the task name is the payload's qualified type name,
// so NewTaskHandler pairs with Enqueue without any string constants:
//
//	type BillSubscription struct{ SubscriptionID uuid.UUID }
//
//	enq, _ := queue.NewEnqueuer(storage)
//	_, err := enq.Enqueue(ctx, BillSubscription{SubscriptionID: id},
//	    queue.WithUniqueKey("bill:"+id.String()),
//	)
//
//	w, _ := queue.NewWorker(storage, queue.WithConfig(cfg))
//	w.RegisterHandlers(queue.NewTaskHandler(func(ctx context.Context, p BillSubscription) error {
//	    return nil
//	}))
//	g.Go(w.Run(ctx))
//
// Failed tasks are retried with a backoff up to MaxRetries times and then
// moved to the dead letter queue. Tasks whose name has no handler go to the
// dead letter queue immediately. A non-empty UniqueKey makes CreateTask
// reject a second task while the first one is pending or processing.
//
// MemoryStorage implements both repositories in process.
package queue
