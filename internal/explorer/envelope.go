package explorer

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Common errors returned while interpreting explorer payloads.
var (
	ErrMalformedEnvelope = errors.New("malformed source envelope")
	ErrEntryNotFound     = errors.New("entry contract not found in sources")
)

// lineOffset is the number of blank lines prepended to flattened single-file
// sources. The upstream explorer UI reports line numbers with this fixed
// header offset, and findings must stay comparable with it.
const lineOffset = 4

// Source is one contract's source tree as reported by an explorer, parsed
// into a form the staging pipeline can materialize.
type Source struct {
	ContractName    string
	CompilerVersion string // normalized major.minor.patch, or "" when unknown

	// Files maps workspace-relative paths to file contents.
	Files map[string]string

	// entry is set for single-file payloads, where the one written file is
	// the entry by construction.
	entry string
	multi bool
}

// Multi reports whether the payload was a multi-file source tree.
func (s *Source) Multi() bool { return s.multi }

// EntryFile returns the workspace-relative path of the file declaring the
// contract. For multi-file trees every file is scanned for the literal
// declaration `contract <name>` and the last match (in sorted path order)
// wins; no match is ErrEntryNotFound.
func (s *Source) EntryFile() (string, error) {
	if !s.multi {
		return s.entry, nil
	}

	paths := make([]string, 0, len(s.Files))
	for p := range s.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	decl := "contract " + s.ContractName
	entry := ""
	for _, p := range paths {
		if strings.Contains(s.Files[p], decl) {
			entry = p
		}
	}
	if entry == "" {
		return "", fmt.Errorf("%w: %s", ErrEntryNotFound, s.ContractName)
	}
	return entry, nil
}

// standardJSONSources is the multi-file payload shape: the `sources` mapping
// of Solidity standard JSON input.
type standardJSONSources struct {
	Sources map[string]struct {
		Content string `json:"content"`
	} `json:"sources"`
}

// ParseSource turns a raw explorer SourceCode payload into a Source. The
// discriminant is the payload's first byte: `{` means the SourceCode is a
// stringified standard JSON object (wrapped in an extra brace pair that must
// be stripped before decoding); anything else is a single flattened file
// named after the contract.
func ParseSource(rawCode, compilerVersion, contractName string) (*Source, error) {
	if rawCode == "" {
		return nil, fmt.Errorf("%w: empty SourceCode", ErrMalformedEnvelope)
	}

	src := &Source{
		ContractName:    contractName,
		CompilerVersion: VersionFromCompiler(compilerVersion),
	}

	if rawCode[0] != '{' {
		name := contractName + ".sol"
		src.Files = map[string]string{
			name: strings.Repeat("\n", lineOffset) + rawCode,
		}
		src.entry = name
		return src, nil
	}

	if len(rawCode) < 2 {
		return nil, fmt.Errorf("%w: truncated standard JSON payload", ErrMalformedEnvelope)
	}

	var std standardJSONSources
	if err := json.Unmarshal([]byte(rawCode[1:len(rawCode)-1]), &std); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if len(std.Sources) == 0 {
		return nil, fmt.Errorf("%w: standard JSON payload has no sources", ErrMalformedEnvelope)
	}

	src.multi = true
	src.Files = make(map[string]string, len(std.Sources))
	for path, file := range std.Sources {
		src.Files[path] = file.Content
	}
	return src, nil
}
