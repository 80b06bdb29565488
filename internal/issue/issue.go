// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

type Id int

const (
	ManifestNotFoundId Id = iota + 1
	ManifestInvalidId
	IdentityMissingId
	PackageNotInstalledId
	InventoryUnavailableId
	ToolNotFoundId
	ToolFailedId
	ToolTimeoutId
	DiskSpaceId
	RestrictedSourceId
	BuildFailedId
	ArchiveEmptyId
	PolicyViolationId
	HookFailedId
	ConfigLoadFailedId
	PermissionDeniedId
)

type MarkdownMsg string

type HttpLink string

type Renderer interface {
	Render(in string, stylePath string) (string, error)
}

type Issue struct {
	id       Id          // ID used to lookup the issue
	mdMsg    MarkdownMsg // Markdown text that will be rendered
	docLinks []HttpLink  // must never be empty, because we need to have docs about all issue types
	extLinks []HttpLink  // external links that might be useful for the user
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

func (i *Issue) Render(stylePath string) (string, error) {
	extraMd := ""
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		extraMd += "\n\n"
		extraMd += "## See also: "
		for _, link := range i.docLinks {
			extraMd += "- [" + string(link) + "]"
		}
		for _, link := range i.extLinks {
			extraMd += "- [" + string(link) + "]"
		}
	}
	return render(string(i.mdMsg)+extraMd, stylePath)
}

var (
	render = glamour.Render

	manifestNotFoundIssue = &Issue{
		id: ManifestNotFoundId,
		mdMsg: `
# Package manifest not found!

We looked for an AppxManifest.xml in the package directory but couldn't
find one.

## Things you can try:
- Check that the path points at a package root, not a parent directory:
~~~
$ packmule inspect /path/to/package
~~~

- For installed packages, pass the install location reported by the
  inventory:
~~~
$ packmule resolve "C:\Program Files\WindowsApps\<full-name>"
~~~

- If the package is a bundle, point at the extracted bundle root`,
	}

	manifestInvalidIssue = &Issue{
		id: ManifestInvalidId,
		mdMsg: `
# Package manifest could not be parsed!

The AppxManifest.xml exists but isn't well-formed, or its root element is
not a Package or Bundle.

## Things you can try:
- Validate the XML with any XML tool; look for unclosed tags or stray
  characters at the top of the file
- Check whether the file was truncated during a copy
- Re-extract the package and try again`,
	}

	identityMissingIssue = &Issue{
		id: IdentityMissingId,
		mdMsg: `
# Package manifest has no identity!

The manifest parsed fine, but no Identity element could be located under
any lookup strategy. Without at least a package name nothing downstream
can proceed.

## Things you can try:
- Open the manifest and check for an Identity element with a Name attribute
- If the manifest uses an unusual namespace, file a report with the first
  few lines of the document so the lookup strategies can be extended`,
	}

	packageNotInstalledIssue = &Issue{
		id: PackageNotInstalledId,
		mdMsg: `
# Package not installed!

No installed package with that name was found in the system inventory.

## Things you can try:
- List candidates with a broader pattern:
~~~
$ packmule resolve --json <install-location>
~~~

- Check the exact name:
~~~
PS> Get-AppxPackage -Name "*YourApp*" | Select Name
~~~

- If the app is installed for another user, run from that user's session`,
	}

	inventoryUnavailableIssue = &Issue{
		id: InventoryUnavailableId,
		mdMsg: `
# Package inventory unavailable!

Querying the installed-package inventory failed. On anything other than
Windows this is expected: there is no native inventory to ask.

## Things you can try:
- On Windows, check that PowerShell is on your PATH:
~~~
$ powershell -NoProfile -Command "Get-AppxPackage | Select -First 1"
~~~

- Dependency entries will be marked missing; the backup still proceeds
  with what is on disk`,
	}

	toolNotFoundIssue = &Issue{
		id: ToolNotFoundId,
		mdMsg: `
# Required tool not found!

An external tool needed for this operation is not on the PATH and not in
any known SDK location.

## Tools we look for:
- makeappx (Windows SDK) for native package builds
- powershell for inventory queries and certificate export

## Things you can try:
- Install the Windows SDK, or add its bin directory to PATH
- Point the config at the tool directly:
~~~cue
tools: makeappx: "C:\\Kits\\10\\bin\\10.0.22621.0\\x64\\makeappx.exe"
~~~

- Without the SDK tool, builds fall back to a structural ZIP container`,
	}

	toolFailedIssue = &Issue{
		id: ToolFailedId,
		mdMsg: `
# External tool failed!

The tool ran but exited with a failure status. The diagnostic above is
derived from the tool's own output.

## Things you can try:
- Re-run with --verbose to see the captured stdout/stderr excerpts
- Check the suggestions attached to the error; they are matched against
  known failure signatures
- Run the tool by hand with the same arguments to reproduce`,
	}

	toolTimeoutIssue = &Issue{
		id: ToolTimeoutId,
		mdMsg: `
# External tool timed out!

The tool exceeded its time budget and its whole process tree was
terminated.

## Things you can try:
- Raise the limit in your config:
~~~cue
exec: timeout_seconds: 900
~~~

- Large packages legitimately take a while; check disk throughput
- If the tool was waiting for input, that's a bug worth reporting: all
  tool invocations here must be non-interactive`,
	}

	diskSpaceIssue = &Issue{
		id: DiskSpaceId,
		mdMsg: `
# Not enough disk space!

Packaging needs room for the source tree, the staging copy, and the
output artifact. The estimate that failed is source size times a safety
multiplier plus a fixed margin.

## Things you can try:
- Free space on the output volume
- Point the scratch directory at a roomier volume:
~~~cue
build: scratch_dir: "D:\\scratch"
~~~

- Lower the multiplier if you know the source compresses well:
~~~cue
build: disk_multiplier: 1.5
~~~`,
	}

	restrictedSourceIssue = &Issue{
		id: RestrictedSourceId,
		mdMsg: `
# Source directory is restricted!

The package source sits in a protected location (for example WindowsApps)
and cannot be read in place, and every copy strategy failed.

## Things you can try:
- Run from an elevated prompt
- Take ownership of the directory, or grant read access to your user
- Copy the tree manually to a writable location and build from there`,
	}

	buildFailedIssue = &Issue{
		id: BuildFailedId,
		mdMsg: `
# Package build failed!

The package could not be produced from the source tree.

## Things you can try:
- Check the failure diagnostic above; known tool failures are translated
  into concrete causes
- Verify the manifest at the source root parses:
~~~
$ packmule inspect <source-dir>
~~~

- Try the build with --verbose to see each stage`,
	}

	archiveEmptyIssue = &Issue{
		id: ArchiveEmptyId,
		mdMsg: `
# Nothing to archive!

The staging area contains no package files, so there is nothing to
compose into a restore archive.

## Things you can try:
- Check that the source directory actually contains .msix/.appx files
- If you meant to build first, run:
~~~
$ packmule backup <package-name>
~~~
  which builds packages into staging before composing`,
	}

	policyViolationIssue = &Issue{
		id: PolicyViolationId,
		mdMsg: `
# Package violates policy!

One or more policy rules rejected this package's manifest (capabilities,
publisher, or platform constraints).

## Things you can try:
- Review the violations listed above
- Adjust the rules file if the rejection is too strict:
~~~cue
policy: rules_file: "./policy.yaml"
~~~

- Run without --strict to treat violations as warnings`,
	}

	hookFailedIssue = &Issue{
		id: HookFailedId,
		mdMsg: `
# Hook script failed!

A user-configured hook returned a non-zero status, so the surrounding
operation was aborted.

## Things you can try:
- Run the hook body by hand; the same script runs in the built-in shell
  interpreter
- Check the hook's tool requirements; version constraints are enforced
  before the script runs
- Remove the hook from your config, or pass --skip-hooks`,
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Configuration could not be loaded!

The config file exists but failed schema validation or parsing. Defaults
are in effect for this run.

## Things you can try:
- Check the CUE syntax of your config file:
~~~
$ packmule config show
~~~

- Regenerate a starter config:
~~~
$ packmule config init
~~~

- The error above names the offending field`,
	}

	permissionDeniedIssue = &Issue{
		id: PermissionDeniedId,
		mdMsg: `
# Permission denied!

You don't have permission to perform this operation.

## Common causes:
- Reading a package installed under a protected system directory
- Writing the output archive to a directory you don't own
- Exporting certificates without elevation

## Things you can try:
- Check file/directory permissions on the paths involved
- Run from an elevated prompt for system-installed packages
- Choose an output directory you own`,
	}

	issues = map[Id]*Issue{
		manifestNotFoundIssue.Id():     manifestNotFoundIssue,
		manifestInvalidIssue.Id():      manifestInvalidIssue,
		identityMissingIssue.Id():      identityMissingIssue,
		packageNotInstalledIssue.Id():  packageNotInstalledIssue,
		inventoryUnavailableIssue.Id(): inventoryUnavailableIssue,
		toolNotFoundIssue.Id():         toolNotFoundIssue,
		toolFailedIssue.Id():           toolFailedIssue,
		toolTimeoutIssue.Id():          toolTimeoutIssue,
		diskSpaceIssue.Id():            diskSpaceIssue,
		restrictedSourceIssue.Id():     restrictedSourceIssue,
		buildFailedIssue.Id():          buildFailedIssue,
		archiveEmptyIssue.Id():         archiveEmptyIssue,
		policyViolationIssue.Id():      policyViolationIssue,
		hookFailedIssue.Id():           hookFailedIssue,
		configLoadFailedIssue.Id():     configLoadFailedIssue,
		permissionDeniedIssue.Id():     permissionDeniedIssue,
	}
)

func Values() []*Issue {
	return maps.Values(issues)
}

func Get(id Id) *Issue {
	return issues[id]
}
