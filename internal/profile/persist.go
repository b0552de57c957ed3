package profile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	backupPrefix = "auto_backup_"
	backupLayout = "20060102_150405.000000000"
)

// Backup describes one saved copy of the profile.
type Backup struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
	Size      int64     `json:"size"`
}

// Save validates p and writes it to path atomically. An existing file is
// first copied into a backups directory next to it, keeping the newest
// maxBackups copies.
func Save(path string, p Profile, maxBackups int) error {
	if p.Version == "" {
		p.Version = "1.0"
	}
	p.LastUpdated = time.Now().UTC()

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return eris.Wrap(err, "profile: marshal")
	}
	if err := Validate(data); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return eris.Wrap(err, "profile: create data dir")
	}

	if _, err := os.Stat(path); err == nil {
		if err := backup(path, maxBackups); err != nil {
			return err
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".user_profile_*.tmp")
	if err != nil {
		return eris.Wrap(err, "profile: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "profile: write temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "profile: sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "profile: close temp file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return eris.Wrap(err, "profile: replace profile")
	}

	zap.L().Info("profile: saved", zap.String("path", path))
	return nil
}

func backupDir(path string) string {
	return filepath.Join(filepath.Dir(path), "backups")
}

func backup(path string, maxBackups int) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrap(err, "profile: read for backup")
	}

	dir := backupDir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return eris.Wrap(err, "profile: create backup dir")
	}

	name := backupPrefix + time.Now().UTC().Format(backupLayout) + ".json"
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o600); err != nil {
		return eris.Wrap(err, "profile: write backup")
	}

	return pruneBackups(path, maxBackups)
}

func pruneBackups(path string, maxBackups int) error {
	if maxBackups <= 0 {
		return nil
	}
	backups, err := ListBackups(path)
	if err != nil {
		return err
	}
	for _, b := range backups[min(maxBackups, len(backups)):] {
		if err := os.Remove(b.Path); err != nil {
			return eris.Wrapf(err, "profile: remove backup %s", b.Name)
		}
	}
	return nil
}

// ListBackups returns the backups for the profile at path, newest first.
func ListBackups(path string) ([]Backup, error) {
	dir := backupDir(path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "profile: list backups")
	}

	var out []Backup
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, backupPrefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, backupPrefix), ".json")
		created, err := time.Parse(backupLayout, stamp)
		if err != nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Backup{Name: name, Path: filepath.Join(dir, name), CreatedAt: created, Size: info.Size()})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Restore replaces the profile at path with the named backup. The current
// profile is itself backed up first.
func Restore(path, backupName string, maxBackups int) (*Profile, error) {
	if filepath.Base(backupName) != backupName {
		return nil, eris.Errorf("profile: invalid backup name %q", backupName)
	}
	data, err := os.ReadFile(filepath.Join(backupDir(path), backupName))
	if err != nil {
		return nil, eris.Wrapf(err, "profile: read backup %s", backupName)
	}
	p, err := Parse(data, ".json")
	if err != nil {
		return nil, err
	}
	if err := Save(path, *p, maxBackups); err != nil {
		return nil, err
	}
	return p, nil
}
