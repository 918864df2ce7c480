// Package logger builds *slog.Logger values with functional options and
// injects request-scoped attributes from context.Context.
//
//	log := logger.New(logger.WithEnvironment(environment.Parse(cfg.Env), "billingd"))
//
// Attributes stored in a context with WithAttrs are added to every record
// logged with that context:
//
//	ctx = logger.WithAttrs(ctx, logger.OrganizationID(orgID), logger.CustomerID(ref))
//	log.InfoContext(ctx, "subscription upgraded", logger.SubscriptionID(sub.ID))
//
// The attribute helpers (OrganizationID, CustomerID, SubscriptionID, PlanCode,
// TaskID, Error...) keep key names consistent across packages and return an
// empty attribute for nil or empty values, which slog omits.
package logger
