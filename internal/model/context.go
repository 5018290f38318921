package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Metadata keys shared between indexing, retrieval and prompting.
const (
	MetaType       = "type"
	MetaClassName  = "class_name"
	MetaMethodName = "method_name"
	MetaPackage    = "package"
	MetaFilePath   = "file_path"
	MetaLanguage   = "language"
	MetaKind       = "kind"
	MetaSource     = "source"
	MetaQuery      = "query"
	MetaSignature  = "method_signature"
)

// ContextItem type tags.
const (
	ItemClass                   = "class"
	ItemMethod                  = "method"
	ItemSmartAnalysis           = "smart_analysis"
	ItemSmartAnalysisDependency = "smart_analysis_dependency"
	ItemExternalLibrary         = "external_library"
	ItemCoreContext             = "core_context"
	ItemClassInfo               = "class_info"
	ItemImports                 = "imports"
	ItemDependencyContext       = "dependency_context"
	ItemErrorEnhanced           = "error_enhanced_context"
	ItemImportSuggestion        = "import_suggestion"
)

// ContextItem is the unit exchanged between retrieval and prompting.
// Lower Distance means more relevant.
type ContextItem struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
	Distance float64           `json:"distance"`
}

// NewContextItem builds an item whose ID is derived from its content and metadata.
func NewContextItem(content string, metadata map[string]string, distance float64) ContextItem {
	if metadata == nil {
		metadata = map[string]string{}
	}
	item := ContextItem{Content: content, Metadata: metadata, Distance: distance}
	item.ID = item.Identity()
	return item
}

// Type returns the item's kind tag.
func (c ContextItem) Type() string {
	return c.Metadata[MetaType]
}

// Identity returns the store id when present, else a hash of content and sorted metadata.
func (c ContextItem) Identity() string {
	if c.ID != "" {
		return c.ID
	}
	keys := make([]string, 0, len(c.Metadata))
	for k := range c.Metadata {
		// provenance does not change what the item is
		if k == MetaQuery {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	h := sha256.New()
	h.Write([]byte(c.Content))
	for _, k := range keys {
		fmt.Fprintf(h, "\x00%s=%s", k, c.Metadata[k])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// IsDefinitionOf reports whether the item holds a full definition of the named type:
// content longer than 100 characters containing "class X" or "record X".
func (c ContextItem) IsDefinitionOf(simpleName string) bool {
	if len(c.Content) <= 100 {
		return false
	}
	return containsWord(c.Content, "class "+simpleName) || containsWord(c.Content, "record "+simpleName)
}

// IsRecordDefinitionOf reports whether the item defines the record X.
func (c ContextItem) IsRecordDefinitionOf(simpleName string) bool {
	return len(c.Content) > 100 && containsWord(c.Content, "record "+simpleName)
}

func containsWord(text, phrase string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], phrase)
		if i < 0 {
			return false
		}
		end := idx + i + len(phrase)
		if end >= len(text) || !isIdentChar(text[end]) {
			return true
		}
		idx = end
	}
}

func isIdentChar(b byte) bool {
	return b == '_' || b == '$' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}
