// Package project locates and scaffolds deployer projects: a directory with a
// .deployer/ folder holding the profiles, bootstrap and catalog files and a
// products/ folder holding one template directory per product.
package project

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"

	"github.com/davidthor/scdctl/pkg/errors"
)

// DirName is the name of the configuration directory at the project root.
const DirName = ".deployer"

// Layout resolves the well-known paths of a project.
type Layout struct {
	Root string
}

func (l *Layout) DeployerDir() string   { return filepath.Join(l.Root, DirName) }
func (l *Layout) ProfilesFile() string  { return filepath.Join(l.DeployerDir(), "profiles.yaml") }
func (l *Layout) BootstrapFile() string { return filepath.Join(l.DeployerDir(), "bootstrap.yaml") }
func (l *Layout) CatalogFile() string   { return filepath.Join(l.DeployerDir(), "catalog.yaml") }
func (l *Layout) ProductsDir() string   { return filepath.Join(l.Root, "products") }
func (l *Layout) Gitignore() string     { return filepath.Join(l.Root, ".gitignore") }

// Discover walks up from start until it finds a directory whose .deployer/
// folder contains a catalog or bootstrap file.
func Discover(start string) (string, bool) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", false
	}
	for {
		deployer := filepath.Join(dir, DirName)
		if isDir(deployer) && (isFile(filepath.Join(deployer, "catalog.yaml")) || isFile(filepath.Join(deployer, "bootstrap.yaml"))) {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// Load returns the layout rooted at override, or discovers the project from
// the working directory when override is empty.
func Load(override string) (*Layout, error) {
	if override != "" {
		root, err := filepath.Abs(override)
		if err != nil {
			return nil, errors.ConfigurationError(fmt.Sprintf("invalid project path %q", override), err)
		}
		return &Layout{Root: root}, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, errors.ConfigurationError("failed to get working directory", err)
	}
	root, ok := Discover(cwd)
	if !ok {
		return nil, errors.ConfigurationError(
			fmt.Sprintf("could not find project root from %s (run `scdctl init` or pass --project)", cwd), nil)
	}
	return &Layout{Root: root}, nil
}

// DirFromName resolves a new project directory name against the working
// directory. The name must be a single plain path element.
func DirFromName(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.ConfigurationError("--name cannot be empty", nil)
	}
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) || filepath.IsAbs(name) {
		return "", errors.ConfigurationError("--name must be a single directory name (no slashes)", nil).
			WithDetail("name", name)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", errors.ConfigurationError("failed to get working directory", err)
	}
	return filepath.Join(cwd, name), nil
}

// HeadCommit returns the abbreviated HEAD commit of the git repository that
// contains root, or "" when root is not inside a repository or has no
// commits yet.
func HeadCommit(root string) string {
	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return ""
	}
	head, err := repo.Head()
	if err != nil {
		return ""
	}
	hash := head.Hash().String()
	if len(hash) > 7 {
		hash = hash[:7]
	}
	return hash
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
