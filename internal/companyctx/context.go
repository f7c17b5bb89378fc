// Package companyctx carries the authenticated company through request
// contexts. Handlers resolve the company once in middleware; services
// read it from the context instead of trusting request parameters.
package companyctx

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type contextKey struct{}

func WithCompanyID(ctx context.Context, id snowflake.ID) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

func CompanyIDFromContext(ctx context.Context) (snowflake.ID, bool) {
	id, ok := ctx.Value(contextKey{}).(snowflake.ID)
	return id, ok
}
