package runner

import (
	"github.com/infracollect/zipdrop/internal/builder"
	"github.com/samber/do/v2"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// BuildContainer creates a new DI container with all dependencies registered.
// The builder is lazily initialized when first requested.
func BuildContainer(logger *zap.Logger, fs afero.Fs) *do.RootScope {
	injector := do.New()

	do.ProvideValue(injector, logger)
	do.ProvideValue[afero.Fs](injector, fs)

	do.Provide(injector, func(i do.Injector) (*builder.Builder, error) {
		log := do.MustInvoke[*zap.Logger](i)
		return builder.New(log.Named("builder"), do.MustInvoke[afero.Fs](i)), nil
	})

	return injector
}
