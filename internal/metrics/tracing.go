// Copyright 2025 The Hyperdrive Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/driveup/hyperdrive")

// StartSpan opens a span named op (e.g. "open", "read", "write",
// "checkout"), attaching path as an attribute when non-empty. The
// returned end func records err (if any) and closes the span; callers
// use it as `defer end(&err)` over a named error return.
func StartSpan(ctx context.Context, op, path string) (context.Context, func(errp *error)) {
	attrs := []attribute.KeyValue{attribute.String("op", op)}
	if path != "" {
		attrs = append(attrs, attribute.String("path", path))
	}
	ctx, span := tracer.Start(ctx, op, trace.WithAttributes(attrs...))
	return ctx, func(errp *error) {
		if errp != nil && *errp != nil {
			span.RecordError(*errp)
			span.SetStatus(codes.Error, (*errp).Error())
		}
		span.End()
	}
}
