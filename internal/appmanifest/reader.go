// SPDX-License-Identifier: MPL-2.0

// Package appmanifest reads application package manifests (AppxManifest.xml
// and bundle manifests) into normalized records.
//
// Real-world manifests are inconsistent about namespaces: modern packages
// declare the windows10 foundation namespace, legacy packages the 2010
// schema, repackaged ones sometimes neither. Element lookup therefore runs
// in three tiers: a namespace-qualified query against the root's declared
// bindings, then the positional direct-child convention, then a
// namespace-agnostic search by local name. Missing attributes degrade to
// sentinel values with a warning; only a missing Identity element is fatal.
package appmanifest

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/beevik/etree"

	"packmule/pkg/types"
	"packmule/pkg/version"
)

const (
	// ManifestFileName is the conventional package manifest file name.
	ManifestFileName = "AppxManifest.xml"
	// BundleMetadataDir holds bundle-level metadata inside a bundle tree.
	BundleMetadataDir = "AppxMetadata"
	// BundleManifestFileName is the bundle manifest file name.
	BundleManifestFileName = "AppxBundleManifest.xml"
)

// Schema namespace tokens that identify the manifest format generation.
const (
	modernSchemaToken = "foundation/windows10"
	legacySchemaToken = "/2010/manifest"
)

// Options selects which optional manifest sections are extracted.
// Identity and Properties are always read.
type Options struct {
	// IncludeDependencies extracts PackageDependency declarations.
	IncludeDependencies bool
	// IncludeCapabilities extracts capability declarations.
	IncludeCapabilities bool
	// IncludeApplications extracts Application entries.
	IncludeApplications bool
}

// Reader parses manifest documents. The zero value is usable; NewReader
// wires the default logger.
type Reader struct {
	Opts Options
	Log  *slog.Logger
}

// NewReader builds a Reader with the given extraction options.
func NewReader(opts Options) *Reader {
	return &Reader{Opts: opts, Log: slog.Default()}
}

func (r *Reader) logger() *slog.Logger {
	if r.Log != nil {
		return r.Log
	}
	return slog.Default()
}

// ReadDir locates and reads the manifest of an unpacked package directory.
// It tries the conventional AppxManifest.xml name (tolerating case
// variations), then the bundle metadata location.
func (r *Reader) ReadDir(dir string) (*Record, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, &ManifestNotFoundError{Dir: dir, Tried: []string{ManifestFileName}}
	}

	if path, ok := findFileFold(dir, ManifestFileName); ok {
		return r.ReadFile(path)
	}
	if metaDir, ok := findFileFold(dir, BundleMetadataDir); ok {
		if path, ok := findFileFold(metaDir, BundleManifestFileName); ok {
			return r.ReadFile(path)
		}
	}

	return nil, &ManifestNotFoundError{
		Dir:   dir,
		Tried: []string{ManifestFileName, filepath.Join(BundleMetadataDir, BundleManifestFileName)},
	}
}

// ReadFile reads and parses the manifest at path.
func (r *Reader) ReadFile(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &ManifestNotFoundError{Dir: filepath.Dir(path), Tried: []string{filepath.Base(path)}}
		}
		return nil, &InvalidDocumentError{Path: path, Reason: "unreadable", Cause: err}
	}
	return r.Parse(data, path)
}

// Parse interprets a manifest document. The path parameter is used only
// for diagnostics.
func (r *Reader) Parse(data []byte, path string) (*Record, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, &InvalidDocumentError{Path: path, Reason: "malformed XML", Cause: err}
	}

	root := doc.Root()
	if root == nil {
		return nil, &InvalidDocumentError{Path: path, Reason: "no root element"}
	}

	var isBundle bool
	switch root.Tag {
	case "Package":
		isBundle = false
	case "Bundle":
		isBundle = true
	default:
		return nil, &InvalidDocumentError{Path: path, Reason: "root element is " + root.Tag + ", expected Package or Bundle"}
	}

	ns := collectNamespaces(root)
	rec := &Record{
		Path:     path,
		IsBundle: isBundle,
	}

	identityEl := r.findElement(root, ns, "Identity", path)
	if identityEl == nil {
		return nil, &IdentityMissingError{Path: path}
	}
	rawVersion, versionOK := r.readIdentity(identityEl, rec, path)

	rec.ModernSchema = resolveSchemaVariant(ns, rawVersion, versionOK)

	if propsEl := r.findElement(root, ns, "Properties", path); propsEl != nil {
		rec.DisplayName = childText(propsEl, "DisplayName")
		rec.PublisherDisplayName = childText(propsEl, "PublisherDisplayName")
		rec.Description = childText(propsEl, "Description")
		rec.Logo = childText(propsEl, "Logo")
	}
	// Downstream consumers never branch on presence: absent display fields
	// carry the Unknown sentinel, matching identity attribute handling.
	if strings.TrimSpace(rec.DisplayName) == "" {
		rec.DisplayName = rec.Identity.Name
	}
	if strings.TrimSpace(rec.PublisherDisplayName) == "" {
		rec.PublisherDisplayName = UnknownPublisher
	}

	depsEl := r.findElement(root, ns, "Dependencies", path)
	if depsEl != nil {
		rec.MinOSVersion = r.readMinOSVersion(depsEl, path)
		if r.Opts.IncludeDependencies {
			rec.Dependencies = r.readDependencies(depsEl, path)
		}
	}

	if r.Opts.IncludeCapabilities {
		if capsEl := r.findElement(root, ns, "Capabilities", path); capsEl != nil {
			rec.Capabilities = readCapabilities(capsEl)
		}
	}

	if r.Opts.IncludeApplications && !isBundle {
		if appsEl := r.findElement(root, ns, "Applications", path); appsEl != nil {
			rec.Applications = readApplications(appsEl)
		}
	}

	return rec, nil
}

// readIdentity fills rec.Identity from the Identity element's attributes,
// substituting sentinels for whatever is missing. It reports the raw
// version string and whether it parsed, for schema variant inference.
func (r *Reader) readIdentity(identityEl *etree.Element, rec *Record, path string) (string, bool) {
	log := r.logger()

	name, ok := attrValue(identityEl, "Name")
	if !ok || strings.TrimSpace(name) == "" {
		log.Warn("manifest identity has no Name, using sentinel", "manifest", path)
		name = UnknownName
	}
	publisher, ok := attrValue(identityEl, "Publisher")
	if !ok || strings.TrimSpace(publisher) == "" {
		log.Warn("manifest identity has no Publisher, using sentinel", "manifest", path)
		publisher = UnknownPublisher
	}

	rawVersion, _ := attrValue(identityEl, "Version")
	ver, err := version.Parse(rawVersion)
	versionOK := err == nil
	if err != nil {
		log.Warn("manifest identity has no parsable Version, using 0.0.0.0", "manifest", path, "version", rawVersion)
		ver = version.Zero
	}

	rawArch, _ := attrValue(identityEl, "ProcessorArchitecture")
	arch, err := types.ParseArchitecture(rawArch)
	if err != nil {
		log.Warn("manifest identity has unknown architecture, using neutral", "manifest", path, "architecture", rawArch)
		arch = types.ArchNeutral
	}

	resourceID, _ := attrValue(identityEl, "ResourceId")

	rec.Identity = Identity{
		Name:         name,
		Publisher:    publisher,
		Version:      ver,
		Architecture: arch,
		ResourceID:   resourceID,
	}
	return rawVersion, versionOK
}

// readMinOSVersion returns the lowest MinVersion declared across target
// device families, or zero when none parses.
func (r *Reader) readMinOSVersion(depsEl *etree.Element, path string) version.QuadVersion {
	var (
		lowest version.QuadVersion
		found  bool
	)
	for _, child := range depsEl.ChildElements() {
		if child.Tag != "TargetDeviceFamily" {
			continue
		}
		raw, ok := attrValue(child, "MinVersion")
		if !ok {
			continue
		}
		ver, err := version.Parse(raw)
		if err != nil {
			r.logger().Warn("unparsable TargetDeviceFamily MinVersion", "manifest", path, "min_version", raw)
			continue
		}
		if !found || ver.Less(lowest) {
			lowest = ver
			found = true
		}
	}
	return lowest
}

func (r *Reader) readDependencies(depsEl *etree.Element, path string) []Dependency {
	var deps []Dependency
	for _, child := range depsEl.ChildElements() {
		if child.Tag != "PackageDependency" {
			continue
		}
		name, ok := attrValue(child, "Name")
		if !ok || strings.TrimSpace(name) == "" {
			r.logger().Warn("PackageDependency without Name skipped", "manifest", path)
			continue
		}

		dep := Dependency{Name: name}
		dep.Publisher, _ = attrValue(child, "Publisher")
		if raw, ok := attrValue(child, "MinVersion"); ok {
			if ver, err := version.Parse(raw); err == nil {
				dep.MinVersion = ver
			} else {
				r.logger().Warn("unparsable PackageDependency MinVersion", "manifest", path, "dependency", name, "min_version", raw)
			}
		}
		if raw, ok := attrValue(child, "Optional"); ok {
			dep.Optional = strings.EqualFold(raw, "true")
		}
		deps = append(deps, dep)
	}
	return deps
}

func readCapabilities(capsEl *etree.Element) []string {
	var (
		caps []string
		seen = map[string]struct{}{}
	)
	for _, child := range capsEl.ChildElements() {
		// Capability, rescap:Capability, and DeviceCapability all carry
		// their name in a Name attribute.
		if child.Tag != "Capability" && child.Tag != "DeviceCapability" {
			continue
		}
		name, ok := attrValue(child, "Name")
		if !ok || name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		caps = append(caps, name)
	}
	return caps
}

func readApplications(appsEl *etree.Element) []Application {
	var apps []Application
	for _, child := range appsEl.ChildElements() {
		if child.Tag != "Application" {
			continue
		}
		var app Application
		app.ID, _ = attrValue(child, "Id")
		app.Executable, _ = attrValue(child, "Executable")
		app.EntryPoint, _ = attrValue(child, "EntryPoint")
		apps = append(apps, app)
	}
	return apps
}

// nsInfo captures the root element's namespace declarations.
type nsInfo struct {
	// uris maps declared prefixes to namespace URIs; the empty prefix is
	// the default xmlns.
	uris map[string]string
	// mainPrefix is the prefix bound to the primary manifest namespace.
	mainPrefix string
	// hasMain is true when a primary manifest namespace was identified.
	hasMain bool
}

func collectNamespaces(root *etree.Element) nsInfo {
	ns := nsInfo{uris: map[string]string{}}
	for _, a := range root.Attr {
		switch {
		case a.Space == "xmlns":
			ns.uris[a.Key] = a.Value
		case a.Space == "" && a.Key == "xmlns":
			ns.uris[""] = a.Value
		}
	}

	// The primary namespace is whichever binding looks like a package
	// manifest schema, preferring the root element's own prefix, then the
	// default namespace.
	candidates := []string{root.Space, ""}
	for prefix := range ns.uris {
		candidates = append(candidates, prefix)
	}
	for _, prefix := range candidates {
		uri, ok := ns.uris[prefix]
		if !ok {
			continue
		}
		if strings.Contains(uri, modernSchemaToken) || strings.Contains(uri, legacySchemaToken) {
			ns.mainPrefix = prefix
			ns.hasMain = true
			return ns
		}
	}

	// No recognizable manifest namespace: fall back to the root's own
	// prefix or the default binding if either exists.
	for _, prefix := range []string{root.Space, ""} {
		if _, ok := ns.uris[prefix]; ok {
			ns.mainPrefix = prefix
			ns.hasMain = true
			return ns
		}
	}
	return ns
}

// resolveSchemaVariant decides the manifest generation. Declared namespace
// tokens win; without them, a fully parsed four-component identity version
// is taken as modern.
func resolveSchemaVariant(ns nsInfo, rawVersion string, versionOK bool) bool {
	for _, uri := range ns.uris {
		if strings.Contains(uri, modernSchemaToken) {
			return true
		}
	}
	for _, uri := range ns.uris {
		if strings.Contains(uri, legacySchemaToken) {
			return false
		}
	}
	return versionOK && strings.Count(rawVersion, ".") == 3
}

// findElement runs the three-tier lookup for a direct section of the
// manifest root. First success wins.
func (r *Reader) findElement(root *etree.Element, ns nsInfo, name, path string) *etree.Element {
	log := r.logger()

	if ns.hasMain {
		for _, child := range root.ChildElements() {
			if child.Tag == name && child.Space == ns.mainPrefix {
				log.Debug("manifest element resolved", "element", name, "tier", "namespace", "manifest", path)
				return child
			}
		}
	}

	for _, child := range root.ChildElements() {
		if child.Tag == name {
			log.Debug("manifest element resolved", "element", name, "tier", "positional", "manifest", path)
			return child
		}
	}

	if el := findLocalName(root, name); el != nil {
		log.Debug("manifest element resolved", "element", name, "tier", "local-name", "manifest", path)
		return el
	}
	return nil
}

// findLocalName searches the subtree for the first element with the given
// local name, in document order, ignoring namespaces entirely.
func findLocalName(el *etree.Element, name string) *etree.Element {
	for _, child := range el.ChildElements() {
		if child.Tag == name {
			return child
		}
		if found := findLocalName(child, name); found != nil {
			return found
		}
	}
	return nil
}

// childText returns the text of the first direct child with the given
// local name, searching the subtree as a fallback.
func childText(el *etree.Element, name string) string {
	for _, child := range el.ChildElements() {
		if child.Tag == name {
			return strings.TrimSpace(child.Text())
		}
	}
	if found := findLocalName(el, name); found != nil {
		return strings.TrimSpace(found.Text())
	}
	return ""
}

// attrValue returns the named attribute, preferring the unprefixed form
// and falling back to any prefixed attribute with the same local name.
func attrValue(el *etree.Element, key string) (string, bool) {
	for _, a := range el.Attr {
		if a.Space == "" && a.Key == key {
			return a.Value, true
		}
	}
	for _, a := range el.Attr {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// findFileFold resolves name inside dir case-insensitively, preferring an
// exact-case match.
func findFileFold(dir, name string) (string, bool) {
	exact := filepath.Join(dir, name)
	if _, err := os.Stat(exact); err == nil {
		return exact, true
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	for _, entry := range entries {
		if strings.EqualFold(entry.Name(), name) {
			return filepath.Join(dir, entry.Name()), true
		}
	}
	return "", false
}
