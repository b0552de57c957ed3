package profile

import (
	"archive/zip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	manifestName      = "metadata.json"
	archiveProfile    = "data/user_profile.json"
	archiveConfig     = "config.yaml"
	archiveBackupsDir = "backups/"

	redactedValue = "[REDACTED]"

	// maxArchiveEntry bounds how much of one archive entry is read.
	maxArchiveEntry = 32 << 20
)

// sensitiveKeys are config keys whose values are never exported.
var sensitiveKeys = map[string]bool{
	"key":          true,
	"api_key":      true,
	"secret":       true,
	"password":     true,
	"token":        true,
	"database_url": true,
}

// ExportOptions selects what goes into an archive.
type ExportOptions struct {
	ProfilePath string
	// ConfigPath is optional; credentials in it are redacted.
	ConfigPath string
	AppVersion string
}

// ArchiveFile is one checksummed archive entry.
type ArchiveFile struct {
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
	SHA256    string `json:"checksum_sha256"`
}

// Manifest describes an export archive. It is stored as metadata.json.
type Manifest struct {
	ExportedAt     time.Time     `json:"export_timestamp"`
	AppVersion     string        `json:"app_version"`
	TotalSizeBytes int64         `json:"total_size_bytes"`
	FileCount      int           `json:"file_count"`
	Files          []ArchiveFile `json:"files"`
	Missing        []string      `json:"missing,omitempty"`
	Notes          string        `json:"notes,omitempty"`
}

// ImportResult summarizes an import.
type ImportResult struct {
	Manifest      *Manifest `json:"manifest,omitempty"`
	FilesRestored int       `json:"files_restored"`
	Warnings      []string  `json:"warnings,omitempty"`
}

// Export writes a zip archive of the profile, its backups and the redacted
// config to w. The profile is stored as JSON whatever its on-disk format.
func Export(w io.Writer, opts ExportOptions) (*Manifest, error) {
	zw := zip.NewWriter(w)
	m := &Manifest{ExportedAt: time.Now().UTC(), AppVersion: opts.AppVersion}

	add := func(name string, data []byte) error {
		f, err := zw.Create(name)
		if err != nil {
			return eris.Wrapf(err, "profile: add %s", name)
		}
		if _, err := f.Write(data); err != nil {
			return eris.Wrapf(err, "profile: write %s", name)
		}
		m.Files = append(m.Files, ArchiveFile{Path: name, SizeBytes: int64(len(data)), SHA256: checksum(data)})
		m.TotalSizeBytes += int64(len(data))
		return nil
	}

	raw, err := os.ReadFile(opts.ProfilePath)
	switch {
	case err == nil:
		p, err := Parse(raw, filepath.Ext(opts.ProfilePath))
		if err != nil {
			return nil, eris.Wrapf(err, "profile: export %s", opts.ProfilePath)
		}
		data, err := json.MarshalIndent(p, "", "  ")
		if err != nil {
			return nil, eris.Wrap(err, "profile: marshal")
		}
		if err := add(archiveProfile, data); err != nil {
			return nil, err
		}
	case errors.Is(err, fs.ErrNotExist):
		m.Missing = append(m.Missing, archiveProfile)
	default:
		return nil, eris.Wrapf(err, "profile: read %s", opts.ProfilePath)
	}

	backups, err := ListBackups(opts.ProfilePath)
	if err != nil {
		return nil, err
	}
	for _, b := range backups {
		data, err := os.ReadFile(b.Path)
		if err != nil {
			return nil, eris.Wrapf(err, "profile: read backup %s", b.Name)
		}
		if err := add(archiveBackupsDir+b.Name, data); err != nil {
			return nil, err
		}
	}
	if len(backups) == 0 {
		m.Missing = append(m.Missing, strings.TrimSuffix(archiveBackupsDir, "/"))
	}

	if opts.ConfigPath != "" {
		raw, err := os.ReadFile(opts.ConfigPath)
		if err != nil {
			return nil, eris.Wrapf(err, "profile: read config %s", opts.ConfigPath)
		}
		data, err := RedactConfig(raw)
		if err != nil {
			return nil, err
		}
		if err := add(archiveConfig, data); err != nil {
			return nil, err
		}
		m.Notes = "credentials redacted from config.yaml"
	} else {
		m.Missing = append(m.Missing, archiveConfig)
	}

	m.FileCount = len(m.Files)
	manifest, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "profile: marshal manifest")
	}
	f, err := zw.Create(manifestName)
	if err != nil {
		return nil, eris.Wrap(err, "profile: add manifest")
	}
	if _, err := f.Write(manifest); err != nil {
		return nil, eris.Wrap(err, "profile: write manifest")
	}
	if err := zw.Close(); err != nil {
		return nil, eris.Wrap(err, "profile: close archive")
	}

	zap.L().Info("profile: exported",
		zap.Int("files", m.FileCount),
		zap.Int64("bytes", m.TotalSizeBytes),
	)
	return m, nil
}

// Import verifies the archive in r against its manifest and restores the
// profile and its backups next to profilePath. The current profile is
// backed up by Save before it is replaced. The archived config is never
// restored so local credentials are kept.
func Import(r io.ReaderAt, size int64, profilePath string, maxBackups int) (*ImportResult, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, eris.Wrap(err, "profile: open archive")
	}

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	res := &ImportResult{}
	if mf, ok := files[manifestName]; ok {
		m, err := verifyManifest(mf, files)
		if err != nil {
			return nil, err
		}
		res.Manifest = m
	} else {
		res.Warnings = append(res.Warnings, "metadata.json not found, checksums not verified")
	}

	pf, ok := files[archiveProfile]
	if !ok {
		return nil, eris.Errorf("profile: archive has no %s", archiveProfile)
	}
	data, err := readEntry(pf)
	if err != nil {
		return nil, err
	}
	p, err := Parse(data, ".json")
	if err != nil {
		return nil, eris.Wrap(err, "profile: archived profile")
	}

	restored, warnings, err := restoreBackups(files, backupDir(profilePath))
	if err != nil {
		return nil, err
	}
	res.FilesRestored += restored
	res.Warnings = append(res.Warnings, warnings...)

	if err := Save(profilePath, *p, maxBackups); err != nil {
		return nil, err
	}
	res.FilesRestored++

	if _, ok := files[archiveConfig]; ok {
		res.Warnings = append(res.Warnings, "config.yaml not imported, local credentials kept")
	}

	zap.L().Info("profile: imported",
		zap.String("path", profilePath),
		zap.Int("files", res.FilesRestored),
	)
	return res, nil
}

func verifyManifest(mf *zip.File, files map[string]*zip.File) (*Manifest, error) {
	data, err := readEntry(mf)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrap(err, "profile: decode manifest")
	}

	for _, af := range m.Files {
		f, ok := files[af.Path]
		if !ok {
			return nil, eris.Errorf("profile: archive is missing %s", af.Path)
		}
		data, err := readEntry(f)
		if err != nil {
			return nil, err
		}
		if int64(len(data)) != af.SizeBytes {
			return nil, eris.Errorf("profile: size mismatch for %s: %d != %d", af.Path, len(data), af.SizeBytes)
		}
		if checksum(data) != af.SHA256 {
			return nil, eris.Errorf("profile: checksum mismatch for %s", af.Path)
		}
	}
	return &m, nil
}

// restoreBackups copies archived backups into dir, keeping any backup that
// already exists under the same name.
func restoreBackups(files map[string]*zip.File, dir string) (int, []string, error) {
	names := make([]string, 0, len(files))
	for name := range files {
		if strings.HasPrefix(name, archiveBackupsDir) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var restored int
	var warnings []string
	for _, name := range names {
		base := strings.TrimPrefix(name, archiveBackupsDir)
		if base == "" || filepath.Base(base) != base || !strings.HasPrefix(base, backupPrefix) {
			warnings = append(warnings, "skipped unexpected entry "+name)
			continue
		}
		target := filepath.Join(dir, base)
		if _, err := os.Stat(target); err == nil {
			continue
		}

		data, err := readEntry(files[name])
		if err != nil {
			return restored, warnings, err
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return restored, warnings, eris.Wrap(err, "profile: create backup dir")
		}
		if err := os.WriteFile(target, data, 0o600); err != nil {
			return restored, warnings, eris.Wrapf(err, "profile: restore backup %s", base)
		}
		restored++
	}
	return restored, warnings, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, eris.Wrapf(err, "profile: open %s", f.Name)
	}
	defer rc.Close() //nolint:errcheck

	data, err := io.ReadAll(io.LimitReader(rc, maxArchiveEntry+1))
	if err != nil {
		return nil, eris.Wrapf(err, "profile: read %s", f.Name)
	}
	if len(data) > maxArchiveEntry {
		return nil, eris.Errorf("profile: %s exceeds %d bytes", f.Name, maxArchiveEntry)
	}
	return data, nil
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// RedactConfig replaces the values of credential keys in a YAML config
// document, at any depth, keeping everything else intact.
func RedactConfig(data []byte) ([]byte, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "profile: decode config")
	}
	if len(doc.Content) == 0 {
		return data, nil
	}

	redactNode(&doc)
	out, err := yaml.Marshal(&doc)
	if err != nil {
		return nil, eris.Wrap(err, "profile: encode config")
	}
	return append([]byte("# credentials redacted on export\n"), out...), nil
}

func redactNode(n *yaml.Node) {
	if n.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, v := n.Content[i], n.Content[i+1]
			if v.Kind == yaml.ScalarNode && v.Value != "" && sensitiveKeys[strings.ToLower(k.Value)] {
				v.Value = redactedValue
				v.Tag = "!!str"
				v.Style = 0
				continue
			}
			redactNode(v)
		}
		return
	}
	for _, c := range n.Content {
		redactNode(c)
	}
}
