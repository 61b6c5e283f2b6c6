package cli

import (
	"errors"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/roach88/tramites/internal/diff"
	"github.com/roach88/tramites/internal/schema"
)

// EngineOptions selects the field-type declaration of a comparison.
type EngineOptions struct {
	SchemaPath string
	Resource   string
	// Composite adds composite fields on top of the declaration.
	Composite  []string
	Structural bool
}

// buildEngine loads the declaration and creates a change-detection engine.
// A missing datapackage is tolerated: every field is then scalar unless
// named in Composite.
func buildEngine(opts EngineOptions, logger logrus.FieldLogger) (*diff.Engine, error) {
	decl, err := schema.Load(opts.SchemaPath, opts.Resource)
	if err != nil {
		var le *schema.LoadError
		if !errors.As(err, &le) || le.Code != schema.ErrCodeNotFound || !errors.Is(err, os.ErrNotExist) {
			return nil, WrapExitError(ExitCommandError, "failed to load field declaration", err)
		}
		logger.WithField("path", opts.SchemaPath).Warn("no datapackage found, treating undeclared fields as scalar")
		decl = schema.Declaration{}
	}

	if len(opts.Composite) > 0 {
		kinds := map[string]schema.Kind{}
		for _, f := range decl.Composite() {
			kinds[f] = schema.Composite
		}
		for _, f := range opts.Composite {
			kinds[f] = schema.Composite
		}
		decl = schema.FromMap(kinds)
	}

	logger.WithField("composite", decl.Composite()).Debug("field declaration ready")
	return diff.NewEngine(decl, diff.Options{Structural: opts.Structural}, logger), nil
}
