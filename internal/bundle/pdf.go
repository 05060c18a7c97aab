package bundle

import (
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// buildPDFMerge merges the PDF inputs, in order, into a single document.
// pdfcpu validates each input; a corrupt or encrypted PDF fails the build
// rather than producing a partial artifact.
func buildPDFMerge(inputs []string, out string) ([]string, error) {
	if err := api.MergeCreateFile(inputs, out, false, nil); err != nil {
		return nil, &Error{Code: CodeBuildFailed, Mode: ModePDFMerge, Path: out, Message: "merge PDFs", Err: err}
	}
	return nil, nil
}
