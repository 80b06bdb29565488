// SPDX-License-Identifier: MPL-2.0

package builder

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/beevik/etree"
)

// ContentTypesFileName is the OPC content-types part every package carries.
const ContentTypesFileName = "[Content_Types].xml"

const contentTypesNamespace = "http://schemas.openxmlformats.org/package/2006/content-types"

// standardContentTypes maps well-known extensions to their media types.
// Extensions found in the tree but not listed here default to the generic
// binary type.
var standardContentTypes = map[string]string{
	"dll":    "application/x-msdownload",
	"exe":    "application/x-msdownload",
	"winmd":  "application/vnd.ms-windows.winmd+xml",
	"xml":    "application/xml",
	"json":   "application/json",
	"txt":    "text/plain",
	"html":   "text/html",
	"css":    "text/css",
	"js":     "application/javascript",
	"png":    "image/png",
	"jpg":    "image/jpeg",
	"jpeg":   "image/jpeg",
	"gif":    "image/gif",
	"ico":    "image/x-icon",
	"svg":    "image/svg+xml",
	"ttf":    "application/font-sfnt",
	"otf":    "application/font-sfnt",
	"woff":   "application/font-woff",
	"wav":    "audio/wav",
	"mp3":    "audio/mpeg",
	"mp4":    "video/mp4",
	"pri":    "application/octet-stream",
	"config": "application/xml",
	"pdb":    "application/octet-stream",
}

const genericContentType = "application/octet-stream"

// ensureContentTypes regenerates the content-types part when the staged
// tree lacks one. Defaults are derived from every extension present in
// the tree so the packaging backend accepts all of it.
func ensureContentTypes(dir string) (bool, error) {
	path := filepath.Join(dir, ContentTypesFileName)
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}

	extensions, err := collectExtensions(dir)
	if err != nil {
		return false, err
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("Types")
	root.CreateAttr("xmlns", contentTypesNamespace)
	for _, ext := range extensions {
		def := root.CreateElement("Default")
		def.CreateAttr("Extension", ext)
		contentType, ok := standardContentTypes[ext]
		if !ok {
			contentType = genericContentType
		}
		def.CreateAttr("ContentType", contentType)
	}

	doc.Indent(2)
	if err := doc.WriteToFile(path); err != nil {
		return false, err
	}
	return true, nil
}

// collectExtensions returns the sorted set of lowercase file extensions in
// the tree, excluding the content-types part itself.
func collectExtensions(dir string) ([]string, error) {
	seen := map[string]struct{}{}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil || d.IsDir() {
			return walkErr
		}
		if d.Name() == ContentTypesFileName {
			return nil
		}
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(d.Name()), "."))
		if ext != "" {
			seen[ext] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	extensions := make([]string, 0, len(seen))
	for ext := range seen {
		extensions = append(extensions, ext)
	}
	sort.Strings(extensions)
	return extensions, nil
}
