// Package registrydoc models the npm registry's package metadata document
// and the narrower "abbreviated" variant, and knows how to rewrite one so
// that publications after a cutoff are invisible to a package manager.
package registrydoc

// Document is the full npm package metadata document, as returned for
// Accept: application/json.
type Document struct {
	Name           string                 `json:"name"`
	Description    string                 `json:"description,omitempty"`
	DistTags       map[string]string      `json:"dist-tags"`
	Versions       map[string]VersionInfo `json:"versions"`
	Time           map[string]string      `json:"time,omitempty"`
	Maintainers    []Maintainer           `json:"maintainers,omitempty"`
	Readme         string                 `json:"readme,omitempty"`
	ReadmeFilename string                 `json:"readmeFilename,omitempty"`
	Homepage       string                 `json:"homepage,omitempty"`
	Keywords       []string               `json:"keywords,omitempty"`
	Repository     *Repository            `json:"repository,omitempty"`
	Bugs           *Bugs                  `json:"bugs,omitempty"`
	License        any                    `json:"license,omitempty"`
	ID             string                 `json:"_id,omitempty"`
	Rev            string                 `json:"_rev,omitempty"`
}

// VersionInfo is one entry of Document.Versions.
type VersionInfo struct {
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	Description     string            `json:"description,omitempty"`
	Main            string            `json:"main,omitempty"`
	Dependencies    map[string]string `json:"dependencies,omitempty"`
	DevDependencies map[string]string `json:"devDependencies,omitempty"`
	Dist            Dist              `json:"dist"`
	Author          any               `json:"author,omitempty"`
	Maintainers     []Maintainer      `json:"maintainers,omitempty"`
	Keywords        []string          `json:"keywords,omitempty"`
	License         any               `json:"license,omitempty"`
	Homepage        string            `json:"homepage,omitempty"`
	Repository      *Repository       `json:"repository,omitempty"`
	Bugs            *Bugs             `json:"bugs,omitempty"`
	GitHead         string            `json:"gitHead,omitempty"`
	NodeVersion     string            `json:"_nodeVersion,omitempty"`
	NpmVersion      string            `json:"_npmVersion,omitempty"`
	ID              string            `json:"_id,omitempty"`
	Shasum          string            `json:"_shasum,omitempty"`
}

// Dist describes the tarball backing a VersionInfo. The Tarball URL is left
// untouched by the rewriter: it points at the CDN, not at this proxy.
type Dist struct {
	Shasum       string `json:"shasum"`
	Tarball      string `json:"tarball"`
	Integrity    string `json:"integrity,omitempty"`
	FileCount    int    `json:"fileCount,omitempty"`
	UnpackedSize int    `json:"unpackedSize,omitempty"`
}

type Maintainer struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

type Repository struct {
	Type      string `json:"type"`
	URL       string `json:"url"`
	Directory string `json:"directory,omitempty"`
}

type Bugs struct {
	URL   string `json:"url,omitempty"`
	Email string `json:"email,omitempty"`
}

// AbbreviatedDocument is the compact npm metadata variant returned for
// Accept: application/vnd.npm.install-v1+json. It has no Time map, which is
// why the rewriter needs a secondary full-document fetch to do its job (see
// pkg/proxy).
type AbbreviatedDocument struct {
	Name     string                         `json:"name"`
	DistTags map[string]string              `json:"dist-tags,omitempty"`
	Modified string                         `json:"modified,omitempty"`
	Versions map[string]AbbreviatedVersion `json:"versions,omitempty"`
}

// AbbreviatedVersion is one entry of AbbreviatedDocument.Versions.
type AbbreviatedVersion struct {
	Name                 string            `json:"name"`
	Version              string            `json:"version"`
	Dependencies         map[string]string `json:"dependencies,omitempty"`
	OptionalDependencies map[string]string `json:"optionalDependencies,omitempty"`
	DevDependencies      map[string]string `json:"devDependencies,omitempty"`
	PeerDependencies     map[string]string `json:"peerDependencies,omitempty"`
	Bin                  map[string]string `json:"bin,omitempty"`
	Dist                 Dist              `json:"dist"`
	Engines              map[string]string `json:"engines,omitempty"`
	Deprecated           string            `json:"deprecated,omitempty"`
	HasInstallScript     bool              `json:"hasInstallScript,omitempty"`
}

// reservedTimeKeys are Time map entries that are never version numbers.
var reservedTimeKeys = map[string]bool{
	"created":  true,
	"modified": true,
	"changed":  true,
	"unpublished": true,
}

// IsReservedTimeKey reports whether key is a known non-version Time entry.
func IsReservedTimeKey(key string) bool {
	return reservedTimeKeys[key]
}
