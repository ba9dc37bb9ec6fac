package files

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// ErrFileExists is returned when a put, alias or move would overwrite an
// existing file. The storage layer checks names first; this is the last
// line of defense against a racing duplicate write.
var ErrFileExists = errors.New("file already exists")

// Repo maps (guild, name) pairs to files under a root directory: one
// directory per guild, one file per primary name, aliases as symlinks to
// the primary file's basename. Guild directories are created lazily.
type Repo struct {
	root string
}

func New(root string) (*Repo, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create sound root: %w", err)
	}
	return &Repo{root: root}, nil
}

// Path returns the on-disk location for a name. It does not check existence.
func (r *Repo) Path(guildID, name string) string {
	return filepath.Join(r.root, guildID, name)
}

// TempPath returns a fresh scratch location on the same filesystem as the
// stored sounds, so Put can move it into place atomically.
func (r *Repo) TempPath() string {
	return filepath.Join(r.root, ".tmp-"+uuid.NewString())
}

// Put moves src into place as the primary file for (guildID, name).
// Fails with ErrFileExists if the target already exists.
func (r *Repo) Put(guildID, name, src string) error {
	if err := r.ensureGuildDir(guildID); err != nil {
		return err
	}
	target := r.Path(guildID, name)
	if err := os.Link(src, target); err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%q: %w", name, ErrFileExists)
		}
		return fmt.Errorf("put %q: %w", name, err)
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("remove staged file: %w", err)
	}
	return nil
}

// Alias creates a symlink aliasName -> existingName inside the guild
// directory. The link shares the primary file's bytes; it is not a copy.
func (r *Repo) Alias(guildID, existingName, aliasName string) error {
	if err := r.ensureGuildDir(guildID); err != nil {
		return err
	}
	if err := os.Symlink(existingName, r.Path(guildID, aliasName)); err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%q: %w", aliasName, ErrFileExists)
		}
		return fmt.Errorf("alias %q: %w", aliasName, err)
	}
	return nil
}

// Move renames a file (or alias symlink) within a guild directory.
func (r *Repo) Move(guildID, oldName, newName string) error {
	target := r.Path(guildID, newName)
	if _, err := os.Lstat(target); err == nil {
		return fmt.Errorf("%q: %w", newName, ErrFileExists)
	}
	if err := os.Rename(r.Path(guildID, oldName), target); err != nil {
		return fmt.Errorf("move %q to %q: %w", oldName, newName, err)
	}
	return nil
}

// Retarget re-points an alias symlink at a new primary name.
func (r *Repo) Retarget(guildID, aliasName, target string) error {
	path := r.Path(guildID, aliasName)
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("retarget %q: %w", aliasName, err)
	}
	if err := os.Symlink(target, path); err != nil {
		return fmt.Errorf("retarget %q: %w", aliasName, err)
	}
	return nil
}

// Rename moves a primary file to a new name and re-points the given alias
// symlinks at it, so no alias is left dangling at the old basename. On
// failure every step already taken is undone, best effort.
func (r *Repo) Rename(guildID, oldName, newName string, aliases []string) error {
	if err := r.Move(guildID, oldName, newName); err != nil {
		return err
	}
	var done []string
	for _, alias := range aliases {
		if err := r.Retarget(guildID, alias, newName); err != nil {
			for _, b := range done {
				_ = r.Retarget(guildID, b, oldName)
			}
			_ = r.Move(guildID, newName, oldName)
			return err
		}
		done = append(done, alias)
	}
	return nil
}

// Remove deletes the file or alias symlink for a name.
func (r *Repo) Remove(guildID, name string) error {
	if err := os.Remove(r.Path(guildID, name)); err != nil {
		return fmt.Errorf("remove %q: %w", name, err)
	}
	return nil
}

// RemoveAll deletes several names in one guild, stopping at the first
// failure. Symlinks and their target may come in any order.
func (r *Repo) RemoveAll(guildID string, names []string) error {
	for _, name := range names {
		if err := r.Remove(guildID, name); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repo) ensureGuildDir(guildID string) error {
	if err := os.MkdirAll(filepath.Join(r.root, guildID), 0o755); err != nil {
		return fmt.Errorf("create guild dir: %w", err)
	}
	return nil
}
