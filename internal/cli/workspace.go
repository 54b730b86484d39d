package cli

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/davidthor/scdctl/pkg/engine"
	"github.com/davidthor/scdctl/pkg/logging"
	"github.com/davidthor/scdctl/pkg/project"
	"github.com/davidthor/scdctl/pkg/schema/catalog"
	"github.com/davidthor/scdctl/pkg/state"
)

// connector builds cloud clients for the engine. Tests replace it with an
// in-memory account.
var connector engine.Connector = engine.ConnectProfile

// workspace is a discovered project with its configuration files loaded.
// Files that do not exist are left nil; the engine reports which one an
// operation needs.
type workspace struct {
	layout    *project.Layout
	catalog   *catalog.CatalogFile
	bootstrap *catalog.BootstrapFile
	profiles  *catalog.ProfilesFile
}

func loadWorkspace() (*workspace, error) {
	layout, err := project.Load(projectOverride())
	if err != nil {
		return nil, err
	}

	ws := &workspace{layout: layout}
	if ws.catalog, err = loadOptional(layout.CatalogFile(), catalog.LoadCatalog); err != nil {
		return nil, err
	}
	if ws.bootstrap, err = loadOptional(layout.BootstrapFile(), catalog.LoadBootstrap); err != nil {
		return nil, err
	}
	if ws.profiles, err = catalog.LoadProfiles(layout.ProfilesFile()); err != nil {
		return nil, err
	}
	return ws, nil
}

// projectOverride is the --project flag, or the configured project root.
func projectOverride() string {
	return viper.GetString(ConfigKeyProject)
}

func loadOptional[T any](path string, load func(string) (*T, error)) (*T, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	return load(path)
}

// stateManager opens the environment state store. The state file names come
// from the bootstrap and catalog settings.
func (w *workspace) stateManager(flags backendFlags) (state.Manager, error) {
	files := state.Files{}
	if w.bootstrap != nil {
		files.Bootstrap = w.bootstrap.Settings.StateFile
	}
	if w.catalog != nil {
		files.Deploy = w.catalog.Settings.StateFile
	}
	return createStateManagerWithConfig(w.layout.DeployerDir(), flags, files)
}

// saveProfiles writes back profiles updated by connect.
func (w *workspace) saveProfiles() error {
	return catalog.SaveProfiles(w.layout.ProfilesFile(), w.profiles)
}

// createEngine creates the lifecycle engine for a command. Progress goes to
// the command's output and logs to its error stream.
func (w *workspace) createEngine(cmd *cobra.Command, mgr state.Manager, lock bool) (*engine.Engine, error) {
	logger, err := logging.New(logging.Config{
		Level:  viper.GetString(ConfigKeyLogLevel),
		Format: viper.GetString(ConfigKeyLogFormat),
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, err
	}

	return engine.New(engine.Options{
		State:        mgr,
		Catalog:      w.catalog,
		Bootstrap:    w.bootstrap,
		Profiles:     w.profiles,
		Connect:      connector,
		ProductsDir:  w.layout.ProductsDir(),
		Commit:       project.HeadCommit(w.layout.Root),
		Output:       cmd.OutOrStdout(),
		Logger:       logger,
		PollInterval: viper.GetDuration(ConfigKeyPollInterval),
		PollTimeout:  viper.GetDuration(ConfigKeyPollTimeout),
		Lock:         lock,
	}), nil
}

// openEngine loads the workspace and builds an engine over its state.
func openEngine(cmd *cobra.Command, flags backendFlags, lock bool) (*workspace, *engine.Engine, error) {
	ws, err := loadWorkspace()
	if err != nil {
		return nil, nil, err
	}
	mgr, err := ws.stateManager(flags)
	if err != nil {
		return nil, nil, err
	}
	eng, err := ws.createEngine(cmd, mgr, lock)
	if err != nil {
		return nil, nil, err
	}
	return ws, eng, nil
}

// openProfileEngine builds an engine for commands that only talk to the
// cloud account and never read environment state.
func openProfileEngine(cmd *cobra.Command) (*workspace, *engine.Engine, error) {
	ws, err := loadWorkspace()
	if err != nil {
		return nil, nil, err
	}
	eng, err := ws.createEngine(cmd, nil, false)
	if err != nil {
		return nil, nil, err
	}
	return ws, eng, nil
}
