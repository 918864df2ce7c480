package logger

import (
	"log/slog"
	"strconv"
	"time"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Errors groups multiple non-nil errors under the key "errors".
// If all errors are nil, it returns an empty Attr.
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// OrganizationID records the organization identifier under the key "organization_id".
func OrganizationID(id any) slog.Attr {
	return optional("organization_id", id)
}

// CustomerID records the customer identifier under the key "customer_id".
// Both internal ids and external customer references are accepted.
func CustomerID(id any) slog.Attr {
	return optional("customer_id", id)
}

// SubscriptionID records the subscription identifier under the key "subscription_id".
func SubscriptionID(id any) slog.Attr {
	return optional("subscription_id", id)
}

// PlanCode records the plan code under the key "plan_code".
func PlanCode(code string) slog.Attr {
	if code == "" {
		return slog.Attr{}
	}
	return slog.String("plan_code", code)
}

// TaskID records the queue task identifier under the key "task_id".
func TaskID(id any) slog.Attr {
	return optional("task_id", id)
}

// Decision records a lifecycle decision (create, upgrade, downgrade...) under the key "decision".
func Decision(name string) slog.Attr {
	return slog.String("decision", name)
}

// Duration records a duration under the key "duration".
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

func optional(key string, v any) slog.Attr {
	if v == nil {
		return slog.Attr{}
	}
	if s, ok := v.(string); ok && s == "" {
		return slog.Attr{}
	}
	return slog.Any(key, v)
}
