// Package format classifies uploaded files into extraction families.
package format

import (
	"path/filepath"
	"strings"
)

// Family is the closed set of format families the pipeline can extract.
type Family int

const (
	// Text covers plain text, markdown, HTML and other text-like containers.
	Text Family = iota
	LegacyWord
	ModernWord
	PDF
	Image
	Audio
	Spreadsheet
)

// GenericMediaType is the media type browsers send when they do not know better.
const GenericMediaType = "application/octet-stream"

var familyNames = map[Family]string{
	Text:        "text",
	LegacyWord:  "legacy_word",
	ModernWord:  "modern_word",
	PDF:         "pdf",
	Image:       "image",
	Audio:       "audio",
	Spreadsheet: "spreadsheet",
}

// Families returns every family in declaration order.
func Families() []Family {
	return []Family{Text, LegacyWord, ModernWord, PDF, Image, Audio, Spreadsheet}
}

func (f Family) String() string {
	if name, ok := familyNames[f]; ok {
		return name
	}
	return "unknown"
}

// BenefitsFromStructuring reports whether text from this family is worth sending to the language model.
// Text files already carry their own structure and spreadsheets are tabular.
func (f Family) BenefitsFromStructuring() bool {
	switch f {
	case PDF, LegacyWord, ModernWord, Audio, Image:
		return true
	default:
		return false
	}
}

var extFamilies = map[string]Family{
	".pdf":      PDF,
	".docx":     ModernWord,
	".docm":     ModernWord,
	".odt":      ModernWord,
	".doc":      LegacyWord,
	".rtf":      LegacyWord,
	".xlsx":     Spreadsheet,
	".xlsm":     Spreadsheet,
	".png":      Image,
	".jpg":      Image,
	".jpeg":     Image,
	".gif":      Image,
	".webp":     Image,
	".bmp":      Image,
	".tif":      Image,
	".tiff":     Image,
	".heic":     Image,
	".mp3":      Audio,
	".wav":      Audio,
	".m4a":      Audio,
	".ogg":      Audio,
	".flac":     Audio,
	".aac":      Audio,
	".webm":     Audio,
	".txt":      Text,
	".md":       Text,
	".markdown": Text,
	".html":     Text,
	".htm":      Text,
	".json":     Text,
	".xml":      Text,
	".csv":      Text,
	".log":      Text,
	".yaml":     Text,
	".yml":      Text,
}

// Classify maps a declared media type and file name to a family.
// Media type parameters are ignored. An empty or generic media type defers to the extension; an
// unrecognized media type also consults the extension before falling back to Text.
func Classify(mediaType, fileName string) Family {
	mt := normalizeMediaType(mediaType)
	if mt != "" && mt != GenericMediaType {
		if f, ok := fromMediaType(mt); ok {
			return f
		}
	}
	if f, ok := FromExtension(fileName); ok {
		return f
	}
	return Text
}

// FromExtension classifies by file name extension alone.
func FromExtension(fileName string) (Family, bool) {
	f, ok := extFamilies[strings.ToLower(filepath.Ext(fileName))]
	return f, ok
}

// Extensions returns the extensions known to the classifier.
func Extensions() []string {
	out := make([]string, 0, len(extFamilies))
	for ext := range extFamilies {
		out = append(out, ext)
	}
	return out
}

func normalizeMediaType(mediaType string) string {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt
}

func fromMediaType(mt string) (Family, bool) {
	switch {
	case strings.Contains(mt, "pdf"):
		return PDF, true
	case strings.Contains(mt, "wordprocessingml"), strings.Contains(mt, "opendocument.text"):
		return ModernWord, true
	case strings.Contains(mt, "msword"), strings.Contains(mt, "rtf"):
		return LegacyWord, true
	case strings.Contains(mt, "spreadsheetml"), strings.Contains(mt, "ms-excel"):
		return Spreadsheet, true
	case strings.HasPrefix(mt, "audio/"):
		return Audio, true
	case strings.HasPrefix(mt, "image/"):
		return Image, true
	case strings.Contains(mt, "markdown"), strings.Contains(mt, "html"),
		strings.Contains(mt, "json"), strings.Contains(mt, "xml"), strings.Contains(mt, "text"):
		return Text, true
	}
	return Text, false
}
