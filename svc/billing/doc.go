// Package billing turns lifecycle billing requests into fees.
//
// Trigger implements subscription.BillingTrigger by enqueueing a
// BillSubscription task, deduplicated per subscription while it waits.
// Service.Handler consumes those tasks: it loads the subscription and its
// plan, reads usage for each charge from a UsageSource, prices it with
// chargemodel.Apply and hands the resulting Fee records to a FeeSink.
//
// Active subscriptions are billed for the base amount of pay-in-advance
// plans and for pay-in-advance charges. Terminated subscriptions are billed
// in arrears for everything else. No base fee is produced inside a trial.
//
//	enqueuer, _ := queue.NewEnqueuer(storage)
//	svc := subscription.NewService(store, catalog,
//		subscription.WithBillingTrigger(billing.NewTrigger(enqueuer)))
//
//	biller := billing.NewService(store, catalog, usage, invoices)
//	worker, _ := queue.NewWorker(storage)
//	worker.RegisterHandlers(biller.Handler())
package billing
