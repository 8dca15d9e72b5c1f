package container

import (
	app "image-similarity/internal/application"
	"image-similarity/internal/domain/port"
)

// Components адаптеры, из которых собирается сервис сравнения
type Components struct {
	Normalizer port.ImageNormalizer
	Extractors port.ExtractorProvider
	Semantic   port.SemanticScorer
	Structural port.StructuralScorer
	Matcher    port.KeypointMatcher
	Renderer   port.Renderer
}

type Container struct {
	UserService       *app.UserService
	ComparisonService *app.ComparisonService
}

func New(userRepo port.UserRepository, c Components, cfg app.ComparisonConfig) *Container {
	userService := app.NewUserService(userRepo)
	comparisonService := app.NewComparisonService(
		c.Normalizer,
		c.Extractors,
		c.Semantic,
		c.Structural,
		c.Matcher,
		c.Renderer,
		cfg,
	)

	return &Container{
		UserService:       userService,
		ComparisonService: comparisonService,
	}
}
