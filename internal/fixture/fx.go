package fixture

import (
	"github.com/smallbiznis/fixtrack/internal/fixture/repository"
	"github.com/smallbiznis/fixtrack/internal/fixture/service"
	"go.uber.org/fx"
)

var Module = fx.Module("fixture.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
