package replacement

import (
	"github.com/smallbiznis/fixtrack/internal/replacement/repository"
	"github.com/smallbiznis/fixtrack/internal/replacement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("replacement.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
