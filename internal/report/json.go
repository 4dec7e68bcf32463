package report

import (
	"encoding/json"
	"io"

	"github.com/depscan/depscan/pkg/models"
	"github.com/tidwall/pretty"
)

// PrintJSON writes the report as indented JSON, colorized when color is set.
func PrintJSON(r models.Report, w io.Writer, color bool) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}

	b = pretty.PrettyOptions(b, &pretty.Options{Indent: "  ", Width: 80})
	if color {
		b = pretty.Color(b, nil)
	}

	_, err = w.Write(b)

	return err
}
