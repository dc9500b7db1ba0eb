// -- internal/reporting/reporter.go --
package reporting

import (
	"fmt"
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/jsonguard/internal/engine"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Supported output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Reporter writes the results of analysis runs to an output.
type Reporter interface {
	// Write adds the results of one run.
	Write(report *engine.Report) error
	// Close finalizes the output and closes the file it was written to, if any.
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a reporter for format. An empty outputPath or "-" writes to
// stdout, which is never closed.
func New(format, outputPath string, stdout io.Writer) (Reporter, error) {
	switch format {
	case FormatText, FormatJSON:
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	var writer io.WriteCloser
	if outputPath == "" || outputPath == "-" {
		writer = &nopWriteCloser{stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}

	if format == FormatJSON {
		return NewJSONReporter(writer), nil
	}
	return NewTextReporter(writer), nil
}
