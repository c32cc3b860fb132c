package snapshot

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Extension is the required suffix for snapshot files.
const Extension = ".bag"

const timestampFormat = "2006-01-02-15-04-05"

// resolvePath normalizes a requested destination name. An empty name
// yields "<prefix>_<timestamp>.bag"; a name without the extension gets
// "_<timestamp>.bag" appended; a name already ending in the extension
// is used verbatim. Relative results land in the configured output
// directory.
func (c *Coordinator) resolvePath(filename string, t time.Time) string {
	stamp := t.Format(timestampFormat)
	name := strings.TrimSpace(filename)
	switch {
	case name == "":
		name = fmt.Sprintf("%s_%s%s", c.opts.FilePrefix, stamp, Extension)
	case !strings.HasSuffix(name, Extension):
		name = fmt.Sprintf("%s_%s%s", name, stamp, Extension)
	}
	if !filepath.IsAbs(name) {
		name = filepath.Join(c.opts.OutputDir, name)
	}
	return name
}
