// Package tracemap persists trace links recorded during generation as a
// source-map-v3 document mapping generated-output positions back to their
// originating template source positions (spec §9 Open Question (a)).
//
// The document is written by hand (source-map-v3's "mappings" field is a
// semicolon/comma-separated list of base64-VLQ segments) and read back
// with github.com/go-sourcemap/sourcemap, the library the teacher already
// uses for the consumer side of Dingo → Go position translation.
package tracemap

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/go-sourcemap/sourcemap"

	"github.com/mtlforge/mtlgen/internal/mtlast"
	"github.com/mtlforge/mtlgen/internal/mtlctx"
)

// Document is the JSON shape of a source-map-v3 file.
type Document struct {
	Version        int      `json:"version"`
	File           string   `json:"file"`
	SourceRoot     string   `json:"sourceRoot,omitempty"`
	Sources        []string `json:"sources"`
	Names          []string `json:"names"`
	Mappings       string   `json:"mappings"`
}

// Build converts recorded trace links for one output file into a V3
// source map document. sourceFile is the template module's path;
// outputFile is the generated file's path.
func Build(sourceFile, outputFile string, links []mtlctx.TraceLink) (*Document, error) {
	filtered := make([]mtlctx.TraceLink, 0, len(links))
	for _, l := range links {
		if l.OutputPath == outputFile {
			filtered = append(filtered, l)
		}
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].OutputLine < filtered[j].OutputLine })

	mappings := encodeMappings(filtered)
	return &Document{
		Version:  3,
		File:     outputFile,
		Sources:  []string{sourceFile},
		Names:    []string{},
		Mappings: mappings,
	}, nil
}

// Marshal renders doc as indented JSON, the format written alongside a
// generated output file as "<output>.map".
func Marshal(doc *Document) ([]byte, error) {
	return json.MarshalIndent(doc, "", "  ")
}

// encodeMappings builds the "mappings" field: one semicolon-separated
// group per generated line, each group a comma-separated list of VLQ
// segments [genColumn, sourceIndex, sourceLine, sourceColumn] relative to
// the previous segment's fields (source-map-v3 §"Mappings").
func encodeMappings(links []mtlctx.TraceLink) string {
	if len(links) == 0 {
		return ""
	}

	maxLine := 0
	for _, l := range links {
		if l.OutputLine > maxLine {
			maxLine = l.OutputLine
		}
	}

	byLine := make(map[int][]mtlctx.TraceLink, maxLine+1)
	for _, l := range links {
		byLine[l.OutputLine] = append(byLine[l.OutputLine], l)
	}

	var lineGroups []string
	prevSrcLine, prevSrcCol := 0, 0
	for line := 1; line <= maxLine; line++ { // OutputLine is 1-based; group 0 is line 1
		entries := byLine[line]
		var segments []string
		prevGenCol := 0
		for _, e := range entries {
			srcLine := e.Source.Line - 1
			srcCol := e.Source.Column - 1

			genColDelta := 0 - prevGenCol
			srcIdxDelta := 0
			srcLineDelta := srcLine - prevSrcLine
			srcColDelta := srcCol - prevSrcCol

			segments = append(segments, encodeVLQ(genColDelta)+encodeVLQ(srcIdxDelta)+encodeVLQ(srcLineDelta)+encodeVLQ(srcColDelta))

			prevGenCol = 0
			prevSrcLine = srcLine
			prevSrcCol = srcCol
		}
		lineGroups = append(lineGroups, strings.Join(segments, ","))
	}
	return strings.Join(lineGroups, ";")
}

const base64Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

// encodeVLQ encodes a signed integer using the base64-VLQ scheme used by
// source maps: the sign occupies the low bit, 5 data bits per digit, bit 5
// set on every digit but the last to signal continuation.
func encodeVLQ(n int) string {
	var value uint32
	if n < 0 {
		value = uint32(-n)<<1 | 1
	} else {
		value = uint32(n) << 1
	}

	var out strings.Builder
	for {
		digit := value & 0x1f
		value >>= 5
		if value > 0 {
			digit |= 0x20
		}
		out.WriteByte(base64Alphabet[digit])
		if value == 0 {
			break
		}
	}
	return out.String()
}

// Parse decodes a source-map-v3 document using go-sourcemap, exposing a
// position lookup from a generated (line, column) back to the original
// template source.
func Parse(data []byte) (*sourcemap.Consumer, error) {
	cons, err := sourcemap.Parse("", data)
	if err != nil {
		return nil, fmt.Errorf("tracemap: parse: %w", err)
	}
	return cons, nil
}

// Lookup resolves a generated (line, column) position (1-based, matching
// mtlast.Position) back to its originating source position.
func Lookup(cons *sourcemap.Consumer, genLine, genColumn int) (mtlast.Position, bool) {
	// go-sourcemap numbers lines from 1 and columns from 0.
	_, _, line, col, ok := cons.Source(genLine, genColumn-1)
	if !ok {
		return mtlast.Position{}, false
	}
	return mtlast.Position{Line: line, Column: col + 1}, true
}
