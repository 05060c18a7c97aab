package bundle

import (
	"archive/zip"
	"io"
	"os"

	"github.com/beevik/etree"
)

// docx is a zip container; the document body lives in this entry.
const docxDocumentEntry = "word/document.xml"

// buildDocxMerge splices the document bodies of the remaining inputs into the
// first one. The first input supplies styles, numbering, and section
// properties; later bodies are inserted before its final w:sectPr so page
// setup survives the merge.
//
// This intentionally merges bodies only. Inputs relying on per-document
// headers, footers, or conflicting style IDs keep the first document's
// versions.
func buildDocxMerge(inputs []string, out string) ([]string, error) {
	base, err := zip.OpenReader(inputs[0])
	if err != nil {
		return nil, &Error{Code: CodeBuildFailed, Mode: ModeDocxMerge, Path: inputs[0], Message: "open docx container", Err: err}
	}
	defer base.Close()

	baseDoc, err := readDocxDocument(&base.Reader, inputs[0])
	if err != nil {
		return nil, err
	}
	body := docxBody(baseDoc)
	if body == nil {
		return nil, &Error{Code: CodeBuildFailed, Mode: ModeDocxMerge, Path: inputs[0], Message: "docx has no w:body"}
	}

	// Splice point: before the base document's section properties when
	// present, otherwise at the end of the body.
	insertAt := len(body.ChildElements())
	if sect := body.SelectElement("w:sectPr"); sect != nil {
		insertAt = sect.Index()
	}

	for _, in := range inputs[1:] {
		next, err := zip.OpenReader(in)
		if err != nil {
			return nil, &Error{Code: CodeBuildFailed, Mode: ModeDocxMerge, Path: in, Message: "open docx container", Err: err}
		}
		doc, rerr := readDocxDocument(&next.Reader, in)
		next.Close()
		if rerr != nil {
			return nil, rerr
		}
		nextBody := docxBody(doc)
		if nextBody == nil {
			return nil, &Error{Code: CodeBuildFailed, Mode: ModeDocxMerge, Path: in, Message: "docx has no w:body"}
		}
		for _, child := range nextBody.ChildElements() {
			if child.Tag == "sectPr" {
				continue
			}
			body.InsertChildAt(insertAt, child.Copy())
			insertAt++
		}
	}

	merged, err := baseDoc.WriteToBytes()
	if err != nil {
		return nil, &Error{Code: CodeBuildFailed, Mode: ModeDocxMerge, Message: "serialize merged document", Err: err}
	}
	if err := writeDocxContainer(&base.Reader, merged, out); err != nil {
		return nil, err
	}
	return nil, nil
}

// readDocxDocument extracts and parses word/document.xml from a container.
func readDocxDocument(zr *zip.Reader, path string) (*etree.Document, error) {
	for _, f := range zr.File {
		if f.Name != docxDocumentEntry {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, &Error{Code: CodeBuildFailed, Mode: ModeDocxMerge, Path: path, Message: "open document entry", Err: err}
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, &Error{Code: CodeBuildFailed, Mode: ModeDocxMerge, Path: path, Message: "read document entry", Err: err}
		}
		doc := etree.NewDocument()
		if err := doc.ReadFromBytes(data); err != nil {
			return nil, &Error{Code: CodeBuildFailed, Mode: ModeDocxMerge, Path: path, Message: "parse document XML", Err: err}
		}
		return doc, nil
	}
	return nil, &Error{Code: CodeBuildFailed, Mode: ModeDocxMerge, Path: path, Message: "no word/document.xml entry"}
}

func docxBody(doc *etree.Document) *etree.Element {
	root := doc.Root()
	if root == nil {
		return nil
	}
	return root.SelectElement("w:body")
}

// writeDocxContainer rewrites the base container with document.xml replaced.
func writeDocxContainer(base *zip.Reader, document []byte, out string) error {
	f, err := os.Create(out)
	if err != nil {
		return &Error{Code: CodeBuildFailed, Mode: ModeDocxMerge, Path: out, Message: "create output", Err: err}
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, entry := range base.File {
		w, err := zw.Create(entry.Name)
		if err != nil {
			zw.Close()
			return &Error{Code: CodeBuildFailed, Mode: ModeDocxMerge, Path: out, Message: "create entry " + entry.Name, Err: err}
		}
		if entry.Name == docxDocumentEntry {
			if _, err := w.Write(document); err != nil {
				zw.Close()
				return &Error{Code: CodeBuildFailed, Mode: ModeDocxMerge, Path: out, Message: "write merged document", Err: err}
			}
			continue
		}
		rc, err := entry.Open()
		if err != nil {
			zw.Close()
			return &Error{Code: CodeBuildFailed, Mode: ModeDocxMerge, Path: out, Message: "reopen entry " + entry.Name, Err: err}
		}
		_, err = io.Copy(w, rc)
		rc.Close()
		if err != nil {
			zw.Close()
			return &Error{Code: CodeBuildFailed, Mode: ModeDocxMerge, Path: out, Message: "copy entry " + entry.Name, Err: err}
		}
	}
	if err := zw.Close(); err != nil {
		return &Error{Code: CodeBuildFailed, Mode: ModeDocxMerge, Path: out, Message: "finalize output", Err: err}
	}
	return f.Sync()
}
