// Command gen_ortapi regenerates the OrtApi vtable mirror in ort/types.go
// from onnxruntime_c_api.h. The struct in the header is an append-only table
// of function pointers, so field ORDER is the only thing that matters; this
// tool exists to make bumping the runtime version a diffable operation
// instead of a hand-count.
//
// Usage:
//
//	go run ./tools/gen_ortapi.go /path/to/onnxruntime_c_api.h > ort/ortapi_gen.go
//
// The parser is regex-based and deliberately strict: it validates the total
// entry count and the positions of a few well-known entries, and fails loudly
// when the header stops looking like what it expects.
package main

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
)

type apiEntry struct {
	name string
	line int
}

var (
	structStartRe = regexp.MustCompile(`^struct OrtApi \{`)
	structEndRe   = regexp.MustCompile(`^\s*\};`)

	// ORT_API2_STATUS(Name, ...) covers the vast majority of entries.
	statusMacroRe = regexp.MustCompile(`ORT_API2_STATUS\((\w+),`)
	// Raw function pointers: "OrtStatus*(ORT_API_CALL* Name)" and the
	// handful of const char* / void returners.
	rawPointerRe = regexp.MustCompile(`^\s+(?:OrtStatus|OrtErrorCode|const char|void)\s*\*?\s*\(\s*ORT_API_CALL\s*\*\s*(\w+)\)`)
	// ORT_CLASS_RELEASE(Env) expands to ReleaseEnv.
	classReleaseRe = regexp.MustCompile(`ORT_CLASS_RELEASE\((\w+)\)`)
)

// knownPositions pins a few entries whose 1-indexed slots have been stable
// since ORT 1.0. A shift here means the parser broke, not the header.
var knownPositions = map[string]int{
	"CreateEnv":                      4,
	"CreateTensorWithDataAsOrtValue": 50,
	"CreateMemoryInfo":               69,
	"ReleaseEnv":                     93,
}

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <path-to-onnxruntime_c_api.h>\n", os.Args[0])
		os.Exit(2)
	}

	entries, structLine, err := parseHeader(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "gen_ortapi: %v\n", err)
		os.Exit(1)
	}

	if err := validateEntries(entries); err != nil {
		fmt.Fprintf(os.Stderr, "gen_ortapi: %v\n", err)
		os.Exit(1)
	}

	emitStruct(os.Stdout, entries, os.Args[1], structLine)
}

func parseHeader(path string) ([]apiEntry, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open header: %w", err)
	}
	defer file.Close()

	var (
		entries    []apiEntry
		inStruct   bool
		lineNum    int
		structLine int
	)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		if !inStruct {
			if structStartRe.MatchString(line) {
				inStruct = true
				structLine = lineNum
			}
			continue
		}
		if structEndRe.MatchString(line) {
			break
		}

		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "//") ||
			strings.HasPrefix(trimmed, "/*") || strings.HasPrefix(trimmed, "*") {
			continue
		}

		name := matchEntryName(line)
		if name != "" {
			entries = append(entries, apiEntry{name: name, line: lineNum})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read header: %w", err)
	}
	if !inStruct {
		return nil, 0, fmt.Errorf("struct OrtApi not found in %s", path)
	}

	return entries, structLine, nil
}

func matchEntryName(line string) string {
	if m := statusMacroRe.FindStringSubmatch(line); len(m) > 1 {
		return m[1]
	}
	if m := rawPointerRe.FindStringSubmatch(line); len(m) > 1 {
		return m[1]
	}
	if m := classReleaseRe.FindStringSubmatch(line); len(m) > 1 {
		return "Release" + m[1]
	}
	return ""
}

func validateEntries(entries []apiEntry) error {
	if len(entries) < 290 || len(entries) > 320 {
		return fmt.Errorf("parsed %d entries, expected roughly 305; header layout may have changed", len(entries))
	}

	seen := make(map[string]int, len(entries))
	for idx, entry := range entries {
		if prev, dup := seen[entry.name]; dup {
			return fmt.Errorf("duplicate entry %q at positions %d and %d", entry.name, prev, idx+1)
		}
		seen[entry.name] = idx + 1
	}

	for name, want := range knownPositions {
		got, ok := seen[name]
		if !ok {
			return fmt.Errorf("known entry %q not found; parser is likely broken", name)
		}
		if got != want {
			return fmt.Errorf("known entry %q parsed at position %d, expected %d; parser is likely broken", name, got, want)
		}
	}
	return nil
}

func emitStruct(out *os.File, entries []apiEntry, headerPath string, structLine int) {
	fmt.Fprintln(out, "package ort")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "// Code generated from %s (struct OrtApi at line %d); DO NOT EDIT.\n", headerPath, structLine)
	fmt.Fprintln(out, "//")
	fmt.Fprintln(out, "// OrtApi mirrors the ONNX Runtime C API function pointer table. Field")
	fmt.Fprintln(out, "// order must match the header exactly; every field is resolved by offset.")
	fmt.Fprintln(out, "type OrtApi struct {")
	for i, entry := range entries {
		fmt.Fprintf(out, "\t%-50s uintptr // entry %d\n", entry.name, i+1)
	}
	fmt.Fprintln(out, "}")
}
