package manifest

import (
	"github.com/Masterminds/semver/v3"
)

// Info holds the identifying fields of a manifest used in status output.
type Info struct {
	Name            string
	Version         string
	ManifestVersion int
	DefaultLocale   string

	// SemVer is the coerced version, or nil when Version does not parse.
	// Extension versions allow four dot-separated parts, which semver rejects.
	SemVer *semver.Version
}

// ReadInfo reads the identifying fields of the manifest at manifestPath.
func ReadInfo(manifestPath string) (*Info, error) {
	_, root, err := load(manifestPath)
	if err != nil {
		return nil, err
	}

	info := &Info{
		Name:            root.Get("name").String(),
		Version:         root.Get("version").String(),
		ManifestVersion: int(root.Get("manifest_version").Int()),
		DefaultLocale:   root.Get("default_locale").String(),
	}

	if info.Version != "" {
		if v, verr := semver.NewVersion(info.Version); verr == nil {
			info.SemVer = v
		}
	}

	return info, nil
}

// DisplayVersion returns the normalized semantic version when available,
// falling back to the raw manifest value.
func (i *Info) DisplayVersion() string {
	if i.SemVer != nil {
		return i.SemVer.String()
	}

	if i.Version == "" {
		return "unversioned"
	}

	return i.Version
}
