package bundle

import (
	"bytes"
	"fmt"
	"os"
	"unicode/utf8"
)

// textSeparator joins concatenated inputs. Two bytes: a blank line between
// documents without trailing separator noise.
const textSeparator = "\n\n"

// buildTextConcat joins the inputs in order, separated by a blank line.
// Non-UTF8 inputs are coerced with the Unicode replacement character and
// reported as a manifest warning rather than failing the build.
func buildTextConcat(inputs []string, out string) ([]string, error) {
	var (
		buf      bytes.Buffer
		warnings []string
	)

	for i, in := range inputs {
		data, err := os.ReadFile(in)
		if err != nil {
			return nil, &Error{Code: CodeMissingInput, Mode: ModeTextConcat, Path: in, Message: "read input", Err: err}
		}
		if !utf8.Valid(data) {
			data = bytes.ToValidUTF8(data, []byte(string(utf8.RuneError)))
			warnings = append(warnings, fmt.Sprintf("non_utf8_input_coerced: %s", in))
		}
		if i > 0 {
			buf.WriteString(textSeparator)
		}
		buf.Write(data)
	}

	if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
		return nil, &Error{Code: CodeBuildFailed, Mode: ModeTextConcat, Path: out, Message: "write artifact", Err: err}
	}
	return warnings, nil
}
