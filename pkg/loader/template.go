package loader

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// artifactRefPattern matches `{{ steps.<id>.<stream> }}`-shaped references to
// another step's published artifacts. These are pkg/artifact runtime
// lookups, resolved against the actual artifact bus at step-execution time,
// never at config-load time — so they must survive the text/template pass
// untouched. Grounded on adest-aes-scripts's dsl/template.go escape/restore
// technique for the same kind of "two different template-ish syntaxes in
// one string" problem.
var artifactRefPattern = regexp.MustCompile(`\{\{\s*steps\.([A-Za-z0-9_.\[\]-]+)\.([A-Za-z0-9_]+)\s*\}\}`)

const placeholderFormat = "\x00ARTIFACTREF%d\x00"

func escapeArtifactRefs(s string) (string, []string) {
	var refs []string
	escaped := artifactRefPattern.ReplaceAllStringFunc(s, func(m string) string {
		refs = append(refs, m)
		return fmt.Sprintf(placeholderFormat, len(refs)-1)
	})
	return escaped, refs
}

func restoreArtifactRefs(s string, refs []string) string {
	for i, ref := range refs {
		s = strings.ReplaceAll(s, fmt.Sprintf(placeholderFormat, i), ref)
	}
	return s
}

// renderTemplate runs s through text/template with sprig's function map and
// data as the dot context, escaping and restoring artifact references
// around the pass so they reach the caller untouched.
func renderTemplate(s string, data map[string]interface{}) (string, error) {
	escaped, refs := escapeArtifactRefs(s)

	tmpl, err := template.New("wastfile").Funcs(sprig.TxtFuncMap()).Parse(escaped)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return restoreArtifactRefs(buf.String(), refs), nil
}

// resolveArtifactRefs substitutes each surviving `{{ steps.<id>.<stream> }}`
// reference in s with the joined string form of get(stream)'s values. Called
// by the generic shell step at Run time, once the artifact bus actually has
// data to offer.
func resolveArtifactRefs(s string, get func(name string) []interface{}) string {
	return artifactRefPattern.ReplaceAllStringFunc(s, func(m string) string {
		groups := artifactRefPattern.FindStringSubmatch(m)
		stream := groups[2]
		values := get(stream)
		parts := make([]string, len(values))
		for i, v := range values {
			parts[i] = fmt.Sprintf("%v", v)
		}
		return strings.Join(parts, " ")
	})
}
