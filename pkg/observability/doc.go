/*
Package observability turns engine lifecycle events into metrics and logs.

Metrics registers Prometheus collectors and exposes them as domain.LifecycleHooks.
LoggingHooks does the same for a structured logger. Both can be combined with
domain.Merge and handed to the engine.
*/
package observability
