package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fixtrack/internal/clock"
	"github.com/smallbiznis/fixtrack/internal/config"
	"github.com/smallbiznis/fixtrack/internal/fixture"
	"github.com/smallbiznis/fixtrack/internal/ledger"
	"github.com/smallbiznis/fixtrack/internal/logger"
	"github.com/smallbiznis/fixtrack/internal/migration"
	"github.com/smallbiznis/fixtrack/internal/observability"
	"github.com/smallbiznis/fixtrack/internal/replacement"
	"github.com/smallbiznis/fixtrack/internal/usage"
	"github.com/smallbiznis/fixtrack/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		fixture.Module,
		ledger.Module,
		usage.Module,
		replacement.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
