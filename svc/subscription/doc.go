// Package subscription implements the subscription lifecycle engine.
//
// A customer's subscriptions form a chain linked by PreviousSubscriptionID.
// At most one link is active and at most one pending successor waits behind
// it. CreateFromExternalRequest decides how a request changes the chain:
//
//   - no active subscription: a new active one is created
//   - same plan, or a replayed UniqueID: the existing result is returned
//   - more expensive plan (upgrade): the active subscription is terminated and
//     replaced right away, keeping the billing anchor
//   - cheaper or equally priced plan (downgrade): a pending successor is
//     created for the next period boundary and the active one is returned
//
// Any pending successor is canceled before a new decision is stored. Plans in
// different currencies are never compared and the request fails with
// ErrCurrencyMismatch.
//
// Requests for one customer are serialized by a Locker (KeyedLocker in
// process, redis.Locker across processes) and by Tx.Lock inside the store
// transaction. Billing is triggered through BillingTrigger only after the
// transaction commits.
//
// Errors wrap one of ErrValidation, ErrNotFound, ErrConflict or
// ErrConcurrencyConflict. Only the last one is worth retrying.
//
// Basic usage:
//
//	catalog, err := subscription.NewCatalog(ctx, subscription.NewYAMLFileSource("plans.yaml"))
//	if err != nil {
//		return err
//	}
//	svc := subscription.NewService(subscription.NewMemoryStore(), catalog,
//		subscription.WithBillingTrigger(trigger),
//		subscription.WithLogger(log),
//	)
//	sub, err := svc.CreateFromExternalRequest(ctx, subscription.CreateRequest{
//		OrganizationID:     orgID,
//		CustomerExternalID: "cus_42",
//		PlanCode:           "pro",
//		UniqueID:           requestID,
//	})
package subscription
