package db

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Gateway is the single entry point for transactional units of work and
// stored-routine calls. Engine services never manage connections directly.
type Gateway struct {
	db  *gorm.DB
	log *zap.Logger
}

type GatewayParam struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

func NewGateway(p GatewayParam) *Gateway {
	return &Gateway{
		db:  p.DB,
		log: p.Log.Named("db.gateway"),
	}
}

// DB exposes the underlying handle for read paths that do not need a
// unit of work.
func (g *Gateway) DB() *gorm.DB {
	return g.db
}

// WithTransaction runs fn inside exactly one database transaction.
// Commit on nil return, rollback otherwise; the pooled connection is
// always released. Driver failures are classified so callers can test
// retryability with IsRetryable.
func (g *Gateway) WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	err := g.db.WithContext(ctx).Transaction(fn)
	if err == nil {
		return nil
	}
	classified := ClassifyErr(err)
	if IsRetryable(classified) {
		g.log.Warn("transaction failed with retryable storage error", zap.Error(err))
	}
	return classified
}

// CallProcedure invokes a stored routine that reports results through
// session-scoped output variables. The @out initialization, the CALL and
// the trailing SELECT all run on tx's single held connection: session
// variables are connection state, so reading them from another pooled
// connection would return garbage. Raw session variables are never
// exposed to callers.
func (g *Gateway) CallProcedure(ctx context.Context, tx *gorm.DB, name string, inArgs []any, outNames []string) (map[string]any, error) {
	if tx == nil {
		tx = g.db
	}
	if err := validateIdent(name); err != nil {
		return nil, err
	}
	for _, out := range outNames {
		if err := validateIdent(out); err != nil {
			return nil, err
		}
		if err := tx.WithContext(ctx).Exec("SET @" + out + " := NULL").Error; err != nil {
			return nil, ClassifyErr(err)
		}
	}

	placeholders := make([]string, 0, len(inArgs)+len(outNames))
	for range inArgs {
		placeholders = append(placeholders, "?")
	}
	for _, out := range outNames {
		placeholders = append(placeholders, "@"+out)
	}
	call := fmt.Sprintf("CALL %s(%s)", name, strings.Join(placeholders, ", "))
	if err := tx.WithContext(ctx).Exec(call, inArgs...).Error; err != nil {
		return nil, ClassifyErr(err)
	}

	if len(outNames) == 0 {
		return map[string]any{}, nil
	}

	cols := make([]string, 0, len(outNames))
	for _, out := range outNames {
		cols = append(cols, fmt.Sprintf("@%s AS %s", out, out))
	}
	result := map[string]any{}
	if err := tx.WithContext(ctx).Raw("SELECT " + strings.Join(cols, ", ")).Scan(&result).Error; err != nil {
		return nil, ClassifyErr(err)
	}
	return result, nil
}

func validateIdent(ident string) error {
	if ident == "" {
		return fmt.Errorf("empty identifier")
	}
	for _, r := range ident {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' {
			continue
		}
		return fmt.Errorf("invalid identifier %q", ident)
	}
	return nil
}
