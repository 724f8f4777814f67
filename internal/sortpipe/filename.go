package sortpipe

import (
	"fmt"
	"strings"
)

// OutputFileName reproduces get_ofstream_name's exact templating: for
// index 0 it returns templ unchanged; for index>0 it strips a trailing
// ".dlt" extension if present, appends the index zero-padded to at least 3
// digits (indices of 1000 and above are appended unpadded), then
// re-appends ".dlt" regardless of whether templ originally had that
// extension.
func OutputFileName(index int, templ string) string {
	if index <= 0 {
		return templ
	}
	name := templ
	if strings.HasSuffix(name, ".dlt") {
		name = name[:len(name)-len(".dlt")]
	}
	return fmt.Sprintf("%s%03d.dlt", name, index)
}
