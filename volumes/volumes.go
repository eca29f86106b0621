// Package volumes is the L4 layer: a mapping from volume identifier to
// mounted filesystem, logical-name aliasing, and a default volume, per §2's
// volume registry row and §9's "mutable global state" design note. The
// registry is a plain value passed explicitly rather than a package-level
// singleton, since a process may legitimately hold more than one (tests
// mount several volumes side by side).
package volumes

import (
	"strings"

	"github.com/pkg/errors"

	"xferx/filesystem"
)

// ErrNotMounted is returned when a volume identifier has no mounted
// filesystem, either directly or through a logical-name alias.
var ErrNotMounted = errors.New("volume not mounted")

// ErrAlreadyMounted is returned by Mount when the identifier is already in
// use; Dismount it first.
var ErrAlreadyMounted = errors.New("volume already mounted")

// Volumes is the mount table for one process/session.
type Volumes struct {
	mounted map[string]filesystem.Filesystem
	aliases map[string]string
	def     string
}

// New returns an empty registry.
func New() *Volumes {
	return &Volumes{
		mounted: make(map[string]filesystem.Filesystem),
		aliases: make(map[string]string),
	}
}

func canon(id string) string {
	return strings.ToUpper(strings.TrimSuffix(strings.TrimSpace(id), ":"))
}

// Mount registers fs under volume identifier id (e.g. "DK", "T", "OU").
func (v *Volumes) Mount(id string, fs filesystem.Filesystem) error {
	id = canon(id)
	if id == "" {
		return errors.New("empty volume identifier")
	}
	if _, ok := v.mounted[id]; ok {
		return errors.Wrapf(ErrAlreadyMounted, "volume %s", id)
	}
	v.mounted[id] = fs
	if v.def == "" {
		v.def = id
	}
	return nil
}

// Dismount closes and removes the filesystem mounted at id, and drops any
// logical names and default-volume reference pointing at it.
func (v *Volumes) Dismount(id string) error {
	id = canon(id)
	fs, ok := v.mounted[id]
	if !ok {
		return errors.Wrapf(ErrNotMounted, "volume %s", id)
	}
	delete(v.mounted, id)
	for alias, target := range v.aliases {
		if target == id {
			delete(v.aliases, alias)
		}
	}
	if v.def == id {
		v.def = ""
		for other := range v.mounted {
			v.def = other
			break
		}
	}
	return fs.Close()
}

// Assign creates a logical name that resolves to the same filesystem as an
// existing device/logical identifier, per the ASSIGN command in §6.
func (v *Volumes) Assign(logical, device string) error {
	logical = canon(logical)
	device = canon(device)
	target, err := v.resolveID(device)
	if err != nil {
		return err
	}
	v.aliases[logical] = target
	return nil
}

// Deassign removes a logical name created by Assign.
func (v *Volumes) Deassign(logical string) {
	delete(v.aliases, canon(logical))
}

// resolveID follows at most one level of alias indirection to a mounted
// volume identifier.
func (v *Volumes) resolveID(id string) (string, error) {
	id = canon(id)
	if target, ok := v.aliases[id]; ok {
		id = target
	}
	if _, ok := v.mounted[id]; !ok {
		return "", errors.Wrapf(ErrNotMounted, "volume %s", id)
	}
	return id, nil
}

// Get resolves id (a volume identifier or logical-name alias) to its mounted
// filesystem. An empty id resolves to the default volume.
func (v *Volumes) Get(id string) (filesystem.Filesystem, error) {
	if strings.TrimSpace(id) == "" {
		if v.def == "" {
			return nil, errors.New("no default volume")
		}
		id = v.def
	}
	resolved, err := v.resolveID(id)
	if err != nil {
		return nil, err
	}
	return v.mounted[resolved], nil
}

// SetDefault designates id as the default volume resolved by an empty
// prefix (e.g. a bare "*.TXT" pattern with no "VOL:" prefix).
func (v *Volumes) SetDefault(id string) error {
	resolved, err := v.resolveID(id)
	if err != nil {
		return err
	}
	v.def = resolved
	return nil
}

// Default returns the current default volume identifier, or "" if none is
// mounted.
func (v *Volumes) Default() string { return v.def }

// List returns every mounted volume identifier, sorted by insertion order is
// not guaranteed; callers that need stable output should sort the result.
func (v *Volumes) List() []string {
	out := make([]string, 0, len(v.mounted))
	for id := range v.mounted {
		out = append(out, id)
	}
	return out
}

// Aliases returns the current logical-name -> device-identifier mapping.
func (v *Volumes) Aliases() map[string]string {
	out := make(map[string]string, len(v.aliases))
	for k, val := range v.aliases {
		out[k] = val
	}
	return out
}

// Split divides a "VOL:path" or "LOGICAL:path" reference into its volume
// identifier and path parts. A reference with no colon has an empty volume
// identifier, resolved to the default volume by Get.
func Split(ref string) (id, path string) {
	idx := strings.IndexByte(ref, ':')
	if idx < 0 {
		return "", ref
	}
	return ref[:idx], ref[idx+1:]
}
