// Package statemachine provides a typed, declarative transition table that
// is kept apart from the state it is applied to.
//
// A Table is built once and shared. Callers hand it the state they loaded and
// persist the state it returns, which suits entities whose status lives in a
// database row:
//
//	var orders = statemachine.MustNew(
//		statemachine.Rule[Status, Event, *Order]{From: Placed, To: Paid, Event: Pay},
//		statemachine.Rule[Status, Event, *Order]{From: Paid, To: Shipped, Event: Ship,
//			Actions: []statemachine.Action[Status, Event, *Order]{stampShippedAt}},
//	)
//
//	next, err := orders.Fire(ctx, order.Status, Ship, order)
//	if errors.Is(err, statemachine.ErrNoTransition) {
//		...
//	}
//
// Guards veto a rule based on runtime data; when several rules share a
// (state, event) pair the first one whose guards pass wins. Actions run in
// order once a rule is chosen and an action error aborts the transition.
package statemachine
