package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/datalite/internal/harness"
	"github.com/roach88/datalite/internal/schema"
)

// attrDecl mirrors one attribute entry in a CUE schema file.
type attrDecl struct {
	Type        string `json:"type"`
	Cardinality string `json:"cardinality"`
	Unique      string `json:"unique,omitempty"`
	Index       bool   `json:"index,omitempty"`
	Fulltext    bool   `json:"fulltext,omitempty"`
	Doc         string `json:"doc,omitempty"`
}

// LoadSchemaDir loads attribute definitions from the CUE files in dir.
// The files declare a single top-level "attributes" struct keyed by
// printed idents:
//
//	attributes: {
//		":person/name": {
//			type:        ":db.type/string"
//			cardinality: ":db.cardinality/one"
//			unique:      ":db.unique/identity"
//		}
//	}
func LoadSchemaDir(dir string) (schema.Definition, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("schema directory not found: %s", dir))
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "access schema directory", err)
	}
	if !info.IsDir() {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("not a directory: %s", dir))
	}

	cueFiles, err := findCUEFiles(dir)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "scan schema directory", err)
	}
	if len(cueFiles) == 0 {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("no CUE files found in %s", dir))
	}

	instances := load.Instances(cueFiles, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, NewExitError(ExitCommandError, "no CUE instances loaded")
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, WrapExitError(ExitCommandError, "load CUE files", inst.Err)
	}

	value := cuecontext.New().BuildInstance(inst)
	if value.Err() != nil {
		return nil, WrapExitError(ExitCommandError, "build CUE instance", value.Err())
	}

	attrsValue := value.LookupPath(cue.ParsePath("attributes"))
	if attrsValue.Err() != nil {
		return nil, WrapExitError(ExitCommandError, `schema files must declare "attributes"`, attrsValue.Err())
	}

	decls := map[string]attrDecl{}
	if err := attrsValue.Decode(&decls); err != nil {
		return nil, WrapExitError(ExitCommandError, "decode attributes", err)
	}

	// Stable order; map iteration would reshuffle error messages.
	idents := make([]string, 0, len(decls))
	for ident := range decls {
		idents = append(idents, ident)
	}
	sort.Strings(idents)

	attrs := make([]harness.AttributeDef, 0, len(idents))
	for _, ident := range idents {
		d := decls[ident]
		attrs = append(attrs, harness.AttributeDef{
			Ident:       ident,
			Type:        d.Type,
			Cardinality: d.Cardinality,
			Unique:      d.Unique,
			Index:       d.Index,
			Fulltext:    d.Fulltext,
			Doc:         d.Doc,
		})
	}
	return harness.BuildDefinition(attrs)
}

// findCUEFiles returns the paths of all .cue files directly in dir.
func findCUEFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".cue") {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}
